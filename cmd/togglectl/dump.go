package main

import (
	"github.com/spf13/cobra"

	"toggle-client/internal/app"
)

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump-features",
		Short: "Fetch the toggle definitions once and print them as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return app.DumpFeatures(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}
