package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"toggle-client/internal/app"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the toggle service and serve local evaluations over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), cfg, log.Logger)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().Duration("poll-interval", 15*time.Second, "toggle fetch interval")
	cmd.Flags().Duration("metrics-interval", 60*time.Second, "usage report interval")
	cmd.Flags().Bool("disable-metrics", false, "do not report usage")
	cmd.Flags().Bool("default-enabled", false, "answer for unknown features")
	return cmd
}
