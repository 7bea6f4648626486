package main

import (
	"github.com/spf13/cobra"

	"folio/internal/logging"
	"folio/internal/ui"
)

func newChatCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a terminal chat against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if serverURL != "" {
				cfg.Client.ServerURL = serverURL
			}
			defer logging.Close()
			return ui.Run(cfg.Client.ServerURL, cfg.Client.WatchdogCeiling)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "backend URL (overrides config)")
	return cmd
}
