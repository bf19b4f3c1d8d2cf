package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://localhost:8080"

func newRootCommand() *cobra.Command {
	var apiFlag string
	var configFlag string
	var jsonFlag bool

	ctx := newCommandContext(&apiFlag, &configFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "mediactl",
		Short:         "Operate the media relay job pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultAPI := os.Getenv("MEDIACTL_API_URL")
	if defaultAPI == "" {
		defaultAPI = defaultAPIURL
	}
	defaultConfig := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/worker-service/config.yaml"
	}

	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", defaultAPI, "Base URL of the API service")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", defaultConfig, "Worker configuration file (cookies command)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print raw JSON")

	rootCmd.AddCommand(newEnqueueCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newCookiesCommand(ctx))

	return rootCmd
}
