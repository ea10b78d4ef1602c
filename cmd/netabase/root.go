package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/netabase"
)

const version = "0.1.0"

type app struct {
	flagConfigDir string
	flagVerbose   bool

	root    string
	manager string
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "netabase",
		Short:         "Inspect netabase manager directories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&a.flagConfigDir, "config-dir", "", "configuration directory (default: $"+envConfigDir+" or the user config dir)")
	cmd.PersistentFlags().String(cfgKeyRoot, "", "manager root directory")
	cmd.PersistentFlags().String(cfgKeyManager, "", "manager name, when the root holds several")
	cmd.PersistentFlags().BoolVarP(&a.flagVerbose, "verbose", "v", false, "log debug messages")

	cmd.AddCommand(a.newInfoCmd())
	cmd.AddCommand(a.newDefinitionsCmd())
	cmd.AddCommand(a.newTablesCmd())
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	a.logger = newLogger(os.Stderr, a.flagVerbose)
	slog.SetDefault(a.logger)

	configDir, err := resolveConfigDir(a.flagConfigDir)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	for _, key := range []string{cfgKeyRoot, cfgKeyManager} {
		if err := cfg.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return err
		}
	}
	a.root = cfg.GetString(cfgKeyRoot)
	a.manager = cfg.GetString(cfgKeyManager)
	a.logger.Debug("config loaded", "config_dir", configDir, "root", a.root, "manager", a.manager)
	return nil
}

// rootMetadata loads the root metadata of the selected manager. Without an
// explicit manager the root must hold exactly one.
func (a *app) rootMetadata() (*netabase.RootMetadata, error) {
	path := netabase.RootMetadataPath(a.root, a.manager)
	if a.manager == "" {
		paths, err := netabase.FindRootMetadata(a.root)
		if err != nil {
			return nil, err
		}
		switch len(paths) {
		case 0:
			return nil, fmt.Errorf("no netabase manager found in %s", a.root)
		case 1:
			path = paths[0]
		default:
			var names []string
			for _, p := range paths {
				names = append(names, strings.TrimSuffix(filepath.Base(p), ".root.netabase.toml"))
			}
			return nil, fmt.Errorf("%s holds several managers (%s), pick one with --manager", a.root, strings.Join(names, ", "))
		}
	}
	a.logger.Debug("reading root metadata", "path", path)
	return netabase.ReadRootMetadata(path)
}
