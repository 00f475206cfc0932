// donorpulse-refresh drops the local cache, rebuilds the snapshot from the
// upstream source, and publishes a refresh event when messaging is enabled.
// With -enqueue it instead hands the rebuild to a running refresh worker.
// Meant for operators and cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"donorpulse/internal/backend"
	"donorpulse/internal/config"
	"donorpulse/internal/log"
)

func main() {
	enqueue := flag.Bool("enqueue", false, "publish a refresh request to the worker queue instead of rebuilding in-process")
	requestedBy := flag.String("requested-by", "donorpulse-refresh", "requester name recorded on the refresh request")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
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

	if *enqueue {
		if built.AMQP == nil {
			logger.Error("Cannot enqueue refresh request: AMQP is not configured")
			os.Exit(1)
		}
		if err := built.AMQP.PublishRefreshRequest(ctx, *requestedBy); err != nil {
			logger.Error("Failed to publish refresh request", "error", err)
			os.Exit(1)
		}
		fmt.Println("Refresh request enqueued")
		return
	}

	logger.Info("Refreshing snapshot", "source_backend", cfg.SourceBackend)
	snap, err := built.Pipeline.Refresh(ctx)
	if err != nil {
		logger.Error("Refresh failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Refreshed snapshot: %d pledges, %d payments, loaded at %s\n",
		len(snap.Pledges), len(snap.Payments), snap.LoadedAt.Format("2006-01-02 15:04:05 MST"))
}
