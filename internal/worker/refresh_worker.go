// Package worker rebuilds the snapshot when a refresh request arrives.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"donorpulse/internal/amqp"
	"donorpulse/internal/services"
)

// RefreshWorker consumes refresh requests and rebuilds the pipeline
// snapshot. Rebuilds are serialized by the pipeline's writer lock, so a
// burst of requests cannot produce interleaved cache writes.
type RefreshWorker struct {
	pipeline *services.Pipeline
	client   *amqp.Client
}

func NewRefreshWorker(pipeline *services.Pipeline, client *amqp.Client) *RefreshWorker {
	return &RefreshWorker{pipeline: pipeline, client: client}
}

// Run blocks consuming refresh requests until the context is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Refresh worker started")
	return w.client.ConsumeRefreshRequests(ctx, w.handleRefreshRequest)
}

func (w *RefreshWorker) handleRefreshRequest(ctx context.Context, msg *amqp.RefreshRequest) error {
	slog.InfoContext(ctx, "Processing refresh request",
		"requested_by", msg.RequestedBy,
		"requested_at", msg.Timestamp)

	snap, err := w.pipeline.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot refreshed",
		"pledges", len(snap.Pledges),
		"payments", len(snap.Payments))
	return nil
}
