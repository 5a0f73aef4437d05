package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/api"
	"github.com/mediavault/mediavault/internal/logger"
	"github.com/mediavault/mediavault/internal/metrics"
	"github.com/mediavault/mediavault/pkg/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the MediaVault reconciliation service",
	Long: `Start the HTTP service exposing the reconciliation API.

The service connects to the media bucket and the reference database at
startup and fails fast if either is unreachable.

Examples:
  # Start with default config location
  mediavault start

  # Start with custom config file
  mediavault start --config /etc/mediavault/config.yaml

  # Environment variable overrides
  MEDIAVAULT_LOGGING_LEVEL=DEBUG mediavault start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	engine, blobStore, relStore, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := relStore.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()

	engine.SetMetrics(metrics.New(prometheus.DefaultRegisterer))

	server := api.NewServer(cfg.Server, engine, blobStore, relStore)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Service is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("Service stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("Service stopped")
	}

	return nil
}
