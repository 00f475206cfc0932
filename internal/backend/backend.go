// Package backend assembles the pipeline from configuration: record source,
// currency converter, cache repository, and optional AMQP client.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"donorpulse/internal/amqp"
	"donorpulse/internal/config"
	"donorpulse/internal/fx"
	"donorpulse/internal/loader"
	"donorpulse/internal/services"
	"donorpulse/internal/source"
	"donorpulse/internal/source/file"
	gsource "donorpulse/internal/source/google"
	"donorpulse/internal/source/httpjson"
	"donorpulse/internal/storage"

	"github.com/shopspring/decimal"
)

// CleanupFunc releases the resources behind a built pipeline.
type CleanupFunc func() error

// Result holds the assembled pipeline and its collaborators.
type Result struct {
	Pipeline *services.Pipeline
	AMQP     *amqp.Client // nil when messaging is disabled
	Cleanup  CleanupFunc
}

// Build wires source → loader → pipeline according to cfg. The returned
// cleanup closes the cache database and AMQP connection on every exit path.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Result, error) {
	src, err := buildSource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build record source: %w", err)
	}

	converter, err := buildConverter(cfg)
	if err != nil {
		return nil, fmt.Errorf("build currency converter: %w", err)
	}

	store, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open cache repository: %w", err)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			// Messaging is optional glue; the pipeline works without it.
			logger.Warn("Failed to initialize AMQP client, continuing without messaging", "error", err)
		} else {
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange)
		}
	}

	var notifier services.Notifier
	if amqpClient != nil {
		notifier = amqpClient
	}
	pipeline := services.NewPipeline(loader.New(src, converter, store), store, notifier)

	logger.Info("Pipeline assembled",
		"source_backend", cfg.SourceBackend,
		"fx_backend", cfg.FXBackend,
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	cleanup := func() error {
		var errs []error
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
		if len(errs) > 0 {
			return fmt.Errorf("cleanup: %v", errs)
		}
		return nil
	}

	return &Result{Pipeline: pipeline, AMQP: amqpClient, Cleanup: cleanup}, nil
}

func buildSource(ctx context.Context, cfg *config.Config) (source.RecordSource, error) {
	switch cfg.SourceBackend {
	case "file":
		return file.New(cfg.PledgesPath, cfg.PaymentsPath), nil
	case "http":
		return httpjson.New(cfg.PledgesURL, cfg.PaymentsURL), nil
	case "sheets":
		return gsource.New(ctx, gsource.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			PledgesSheet:  cfg.PledgesSheet,
			PaymentsSheet: cfg.PaymentsSheet,
		})
	}
	return nil, fmt.Errorf("unsupported source backend %q", cfg.SourceBackend)
}

func buildConverter(cfg *config.Config) (fx.Converter, error) {
	switch cfg.FXBackend {
	case "frankfurter":
		return fx.NewFrankfurter(
			fx.WithBaseURL(cfg.FrankfurterURL),
			fx.WithConcurrency(cfg.FXConcurrency),
		), nil
	case "static":
		raw, err := config.ParseStaticRates(cfg.FXStaticRates)
		if err != nil {
			return nil, err
		}
		rates := make(map[string]decimal.Decimal, len(raw))
		for code, rate := range raw {
			rates[code] = decimal.NewFromFloat(rate)
		}
		return fx.NewStaticTable(rates), nil
	}
	return nil, fmt.Errorf("unsupported fx backend %q", cfg.FXBackend)
}
