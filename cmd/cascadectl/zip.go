package main

import (
	"github.com/spf13/cobra"
)

func newZipCmd(e *env) *cobra.Command {
	var levelName string
	cmd := &cobra.Command{
		Use:   "zip <code>",
		Short: "Search postal codes directly, without a committed locality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.open()
			if err != nil {
				return err
			}
			defer s.close()
			level, err := s.level(levelName)
			if err != nil {
				return err
			}
			resolver, err := s.resolver()
			if err != nil {
				return err
			}
			defer resolver.Close()

			ctx, cancel := e.context(cmd)
			defer cancel()
			entities, err := resolver.DirectSearch(ctx, level, args[0])
			if err != nil {
				return err
			}
			return writeEntities(cmd.OutOrStdout(), s.format, entities)
		},
	}
	cmd.Flags().StringVar(&levelName, "level", "zip_code", "level searched by code")
	return cmd
}
