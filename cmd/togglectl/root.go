package main

import (
	"os"

	"github.com/spf13/cobra"

	"toggle-client/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "togglectl",
		Short:         "Feature toggle client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default configs/togglectl.yaml)")
	root.PersistentFlags().String("api-url", "", "toggle service API root (UNLEASH_API_URL)")
	root.PersistentFlags().String("app-name", "", "application name (UNLEASH_APP_NAME)")
	root.PersistentFlags().String("instance-id", "", "instance id (UNLEASH_INSTANCE_ID)")
	root.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().String("project", "", "only fetch features of this project")
	root.PersistentFlags().String("name-prefix", "", "only fetch features with this name prefix")

	root.AddCommand(newServeCmd(), newDumpCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	config.SetupLogging(cfg.LogLevel, os.Stderr)
	return cfg, nil
}
