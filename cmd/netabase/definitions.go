package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/netabase"
)

func (a *app) newDefinitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "definitions",
		Short: "List every Definition with its trees and schema fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rmd, err := a.rootMetadata()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, name := range rmd.Definitions.All {
				md, err := netabase.ReadDefinitionMetadata(netabase.DefinitionMetadataPath(a.root, name))
				if err != nil {
					a.logger.Debug("no definition metadata", "definition", name, "err", err)
					fmt.Fprintf(w, "%s: never loaded\n", name)
					continue
				}
				fmt.Fprintf(w, "%s v%s %s\n", md.Definition.Name, md.Definition.Version, md.Metadata.SchemaHash)
				fmt.Fprintf(w, "  main:         %s\n", list(md.Trees.Main))
				fmt.Fprintf(w, "  secondary:    %s\n", list(md.Trees.Secondary))
				fmt.Fprintf(w, "  relational:   %s\n", list(md.Trees.Relational))
				fmt.Fprintf(w, "  subscription: %s\n", list(md.Trees.Subscription))
				fmt.Fprintf(w, "  references:   %s\n", list(md.Permissions.References))
			}
			return nil
		},
	}
}
