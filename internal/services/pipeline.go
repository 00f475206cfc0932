// Package services orchestrates the pipeline: load → join → metrics. A
// snapshot is built once, then shared immutably by any number of concurrent
// metric computations; only Refresh rewrites it, under a single-writer lock.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"donorpulse/internal/amqp"
	"donorpulse/internal/core"
	"donorpulse/internal/join"
	"donorpulse/internal/loader"
	"donorpulse/internal/metrics"
	"donorpulse/internal/storage"
	"donorpulse/internal/window"
)

// Snapshot is one immutable view of the normalized tables. Metric
// computations read it without coordination; nothing mutates it after build.
type Snapshot struct {
	Pledges  []core.Pledge
	Payments []core.Payment
	Joined   []core.JoinedPayment
	LoadedAt time.Time
}

// Notifier publishes snapshot-refresh events. Satisfied by *amqp.Client.
type Notifier interface {
	PublishSnapshotRefreshed(ctx context.Context, msg *amqp.SnapshotRefreshed) error
}

type Pipeline struct {
	loader   *loader.Loader
	store    *storage.Repository
	notifier Notifier

	mu   sync.RWMutex
	snap *Snapshot
}

// NewPipeline wires the pipeline. Store and notifier may be nil.
func NewPipeline(l *loader.Loader, store *storage.Repository, notifier Notifier) *Pipeline {
	return &Pipeline{loader: l, store: store, notifier: notifier}
}

// NewPipelineFromSnapshot builds a pipeline over a fixed snapshot, for tests
// and offline evaluation.
func NewPipelineFromSnapshot(snap *Snapshot) *Pipeline {
	return &Pipeline{snap: snap}
}

// Load builds the snapshot if it does not exist yet and returns it.
func (p *Pipeline) Load(ctx context.Context) (*Snapshot, error) {
	p.mu.RLock()
	snap := p.snap
	p.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snap != nil {
		return p.snap, nil
	}

	snap, err := p.build(ctx)
	if err != nil {
		return nil, err
	}
	p.snap = snap
	return snap, nil
}

// Snapshot returns the current snapshot, or nil before the first Load.
func (p *Pipeline) Snapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Refresh invalidates the on-disk cache, rebuilds the snapshot from source,
// swaps it in atomically, and notifies subscribers. Readers keep using the
// previous snapshot until the swap.
func (p *Pipeline) Refresh(ctx context.Context) (*Snapshot, error) {
	if p.store != nil {
		if err := p.store.Invalidate(ctx); err != nil {
			return nil, fmt.Errorf("invalidate cache: %w", err)
		}
	}

	snap, err := p.build(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()

	if p.notifier != nil {
		msg := &amqp.SnapshotRefreshed{
			Pledges:   len(snap.Pledges),
			Payments:  len(snap.Payments),
			LoadedAt:  snap.LoadedAt,
			Timestamp: time.Now(),
		}
		if err := p.notifier.PublishSnapshotRefreshed(ctx, msg); err != nil {
			// The snapshot is already rebuilt; a lost event only delays
			// downstream cache drops.
			slog.WarnContext(ctx, "Failed to publish snapshot refreshed", "error", err)
		}
	}

	return snap, nil
}

func (p *Pipeline) build(ctx context.Context) (*Snapshot, error) {
	pledges, _, err := p.loader.LoadPledges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pledges: %w", err)
	}
	payments, _, err := p.loader.LoadPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	joined, err := join.Join(pledges, payments)
	if err != nil {
		return nil, fmt.Errorf("join payments to pledges: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot built",
		"pledges", len(pledges),
		"payments", len(payments))

	return &Snapshot{
		Pledges:  pledges,
		Payments: payments,
		Joined:   joined,
		LoadedAt: time.Now().UTC(),
	}, nil
}

// MetricNames lists every metric Compute can dispatch, in display order.
func MetricNames() []string {
	return []string{
		metrics.MetricMoneyMoved,
		metrics.MetricCounterfactualMoneyMoved,
		metrics.MetricActiveARR,
		metrics.MetricFutureARR,
		metrics.MetricAttritionRate,
		metrics.MetricActiveDonorCount,
		metrics.MetricActivePledgeCount,
		metrics.MetricChapterARR,
	}
}

// Compute runs one metric by name against the snapshot.
func Compute(snap *Snapshot, name string, w window.Window, g metrics.Grouping) ([]metrics.Result, error) {
	if snap == nil {
		return nil, fmt.Errorf("%s: %w", name, core.ErrInsufficientData)
	}
	switch name {
	case metrics.MetricMoneyMoved:
		return metrics.MoneyMoved(snap.Joined, w, g)
	case metrics.MetricCounterfactualMoneyMoved:
		return metrics.CounterfactualMoneyMoved(snap.Joined, w, g)
	case metrics.MetricActiveARR:
		return metrics.ActiveARR(snap.Pledges, w, g)
	case metrics.MetricFutureARR:
		return metrics.FutureARR(snap.Pledges, w, g)
	case metrics.MetricAttritionRate:
		return metrics.AttritionRate(snap.Pledges, w, g)
	case metrics.MetricActiveDonorCount:
		return metrics.ActiveDonorCount(snap.Pledges, w, g)
	case metrics.MetricActivePledgeCount:
		return metrics.ActivePledgeCount(snap.Pledges, w, g)
	case metrics.MetricChapterARR:
		return metrics.ChapterARR(snap.Pledges, w, g)
	}
	return nil, fmt.Errorf("unknown metric %q", name)
}
