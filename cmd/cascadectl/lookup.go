package main

import (
	cascade "github.com/goliatone/go-cascade"
	"github.com/spf13/cobra"
)

func newLookupCmd(e *env) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "lookup <level> [query]",
		Short: "Fetch one level's entities from the provider",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.open()
			if err != nil {
				return err
			}
			defer s.close()
			level, err := s.level(args[0])
			if err != nil {
				return err
			}
			query := ""
			if len(args) > 1 {
				query = args[1]
			}
			var parentID *cascade.EntityID
			if parent != "" {
				parentID = cascade.IDPtr(cascade.EntityID(parent))
			}

			ctx, cancel := e.context(cmd)
			defer cancel()
			entities, err := s.provider.FetchChildren(ctx, level, parentID, cascade.NormalizeQuery(query))
			if err != nil {
				return err
			}
			return writeEntities(cmd.OutOrStdout(), s.format, entities)
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent entity id")
	return cmd
}
