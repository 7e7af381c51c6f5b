package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "commerce-bot",
		Short:         "WhatsApp commerce automation bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "config", "Directory containing config.yaml")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newTokenCmd(&configPath))
	return cmd
}
