package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"folio/internal/config"
	"folio/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "folio",
		Short: "Streaming portfolio analyst",
		Long: `Folio is a portfolio analyst you talk to. The serve command runs the
backend that drives model runs and tool calls; the chat command opens a
terminal chat streaming answers from it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.folio/config.yaml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("folio version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads and validates configuration, wiring logging from it.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Version = version

	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.File {
		if dir, derr := config.Dir(); derr == nil {
			if lerr := logging.EnableFileLogging(dir, level); lerr != nil {
				fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", lerr)
			}
		}
	}
	return cfg, nil
}
