package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configFileName = "netabase"
	configFileType = "yaml"
	configFileExt  = "netabase.yaml"

	cfgKeyRoot    = "root"
	cfgKeyManager = "manager"

	envConfigDir = "NETABASE_CONFIG_DIR"
)

const defaultConfigYAML = `# netabase CLI configuration

# Directory holding <manager>.root.netabase.toml and one subdirectory per
# Definition (overridable by --root).
root: .

# Manager to inspect when root holds several (overridable by --manager).
# manager:
`

// resolveConfigDir picks --config-dir, then $NETABASE_CONFIG_DIR, then
// <user config dir>/netabase.
func resolveConfigDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if dir := os.Getenv(envConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "netabase"), nil
}

// loadConfig reads netabase.yaml from configDir, writing a default one on
// first run. NETABASE_ROOT and NETABASE_MANAGER override the file.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyRoot, ".")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("NETABASE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
