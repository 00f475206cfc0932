// refresh-worker consumes refresh requests from AMQP and rebuilds the
// snapshot cache. Run it next to the API server when refreshes come from a
// queue instead of cron.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"donorpulse/internal/backend"
	"donorpulse/internal/config"
	"donorpulse/internal/log"
	"donorpulse/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.WithComponent(log.Setup(cfg.LogLevel), "refresh-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the refresh worker")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	built, err := backend.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to assemble pipeline", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Error("Cleanup error", "error", err)
		}
	}()
	if built.AMQP == nil {
		logger.Error("AMQP connection unavailable, worker cannot start")
		os.Exit(1)
	}

	refreshWorker := worker.NewRefreshWorker(built.Pipeline, built.AMQP)
	if err := refreshWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Refresh worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Refresh worker stopped gracefully")
}
