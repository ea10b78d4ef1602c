package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the manager's root metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := a.rootMetadata()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "manager:     %s\n", md.Manager.Name)
			fmt.Fprintf(w, "id:          %s\n", md.Manager.ID)
			fmt.Fprintf(w, "version:     %s\n", md.Manager.Version)
			fmt.Fprintf(w, "root:        %s\n", md.Manager.RootPath)
			fmt.Fprintf(w, "created:     %s\n", md.Manager.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "updated:     %s\n", md.Manager.UpdatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "definitions: %s\n", list(md.Definitions.All))
			fmt.Fprintf(w, "loaded:      %s\n", list(md.Definitions.Loaded))
			fmt.Fprintf(w, "warm:        %s\n", list(md.Definitions.WarmOnAccess))
			for _, role := range md.Permissions {
				fmt.Fprintf(w, "role %s:   %s on %s\n", role.Name, role.Level, list(role.Definitions))
			}
			return nil
		},
	}
}

func list(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
