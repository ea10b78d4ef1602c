package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andreyvit/netabase"
)

func (a *app) newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <definition>",
		Short: "List the tables present in a Definition's store file",
		Long: `Tables opens <root>/<definition>/store.db read-only and lists every
table it holds with its row count and allocated bytes. It does not need the
Go schema, so it works on stores written by any version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := netabase.StorePath(a.root, args[0])
			a.logger.Debug("inspecting store", "path", path)
			infos, err := netabase.InspectFile(path)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tROWS\tALLOC\tNESTED")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Name, info.Rows, info.Alloc, strings.Join(info.Subs, ","))
			}
			return tw.Flush()
		},
	}
}
