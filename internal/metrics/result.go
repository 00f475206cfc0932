// Package metrics computes the donation-program KPIs. Every metric is a pure
// function over immutable tables: it receives its window explicitly, holds no
// state, and can run concurrently with any other metric on the same snapshot.
package metrics

import (
	"fmt"
	"sort"

	"donorpulse/internal/core"
	"donorpulse/internal/window"

	"github.com/shopspring/decimal"
)

// ValueKind distinguishes a computed value (possibly zero) from a metric
// that could not be computed at all.
type ValueKind string

const (
	KindValue  ValueKind = "value"
	KindNoData ValueKind = "no_data"
)

// Result is one per-metric output row, consumable as structured data by the
// dashboard and the insight generator.
type Result struct {
	Metric   string          `json:"metric_name"`
	GroupKey string          `json:"group_key,omitempty"`
	Window   window.Window   `json:"window"`
	Kind     ValueKind       `json:"value_kind"`
	Value    decimal.Decimal `json:"value"`

	// Excluded counts rows skipped because their USD amount is unknown.
	// Skipping is flagged here, never silently folded into the sum.
	Excluded int `json:"excluded_rows,omitempty"`
}

func value(metric, key string, w window.Window, v decimal.Decimal, excluded int) Result {
	return Result{Metric: metric, GroupKey: key, Window: w, Kind: KindValue, Value: v, Excluded: excluded}
}

func noData(metric, key string, w window.Window) Result {
	return Result{Metric: metric, GroupKey: key, Window: w, Kind: KindNoData, Value: decimal.Zero}
}

func insufficient(metric string) error {
	return fmt.Errorf("%s: %w", metric, core.ErrInsufficientData)
}

func sortResults(results []Result) []Result {
	sort.Slice(results, func(i, j int) bool { return results[i].GroupKey < results[j].GroupKey })
	return results
}
