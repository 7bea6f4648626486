package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"folio/internal/config"
	"folio/internal/conversation"
	"folio/internal/logging"
	"folio/internal/provider"
	"folio/internal/ratelimit"
	"folio/internal/runner"
	"folio/internal/server"
	"folio/internal/tools"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analyst backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	defer logging.Close()

	primary, err := provider.NewFromConfig(ctx, cfg.Provider.Primary, cfg)
	if err != nil {
		return fmt.Errorf("failed to create primary provider: %w", err)
	}
	defer primary.Close()

	var fallback provider.Client
	if cfg.Provider.Fallback != "" {
		fallback, err = provider.NewFromConfig(ctx, cfg.Provider.Fallback, cfg)
		if err != nil {
			return fmt.Errorf("failed to create fallback provider: %w", err)
		}
		defer fallback.Close()
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterPortfolioTools(registry, tools.NewDemoBook()); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	logging.Info("tools registered", "tools", registry.Names())

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		TokensPerMinute:   cfg.RateLimit.TokensPerMinute,
		BurstSize:         cfg.RateLimit.BurstSize,
	})

	r := runner.New(runner.Options{
		Primary:  primary,
		Fallback: fallback,
		Retry: provider.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			RetryDelay:  cfg.Retry.RetryDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		Limiter:           limiter,
		Dispatcher:        tools.NewDispatcher(registry, cfg.Runner.ToolConcurrency),
		MaxToolIterations: cfg.Runner.MaxToolIterations,
	})

	srv := server.New(cfg, conversation.NewStore(), r, registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
