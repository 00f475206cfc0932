package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"donorpulse/internal/core"
	"donorpulse/internal/metrics"
	"donorpulse/internal/window"

	"github.com/shopspring/decimal"
)

func testSnapshot() *Snapshot {
	pledge := core.Pledge{
		ID:        "p1",
		DonorID:   "d1",
		Chapter:   "Harvard",
		Status:    core.StatusActiveDonor,
		Frequency: core.FrequencyMonthly,
		StartsAt:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.RequireFromString("50"),
		Currency:  "USD",
		AmountUSD: decimal.RequireFromString("50"),
		USDKnown:  true,
	}
	payment := core.Payment{
		ID:                "pay1",
		DonorID:           "d1",
		PledgeID:          "p1",
		Portfolio:         "OFTW Top Picks",
		Amount:            decimal.RequireFromString("50"),
		Currency:          "USD",
		Date:              time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Counterfactuality: 0.8,
		AmountUSD:         decimal.RequireFromString("50"),
		USDKnown:          true,
	}
	return &Snapshot{
		Pledges:  []core.Pledge{pledge},
		Payments: []core.Payment{payment},
		Joined: []core.JoinedPayment{{
			Payment:        payment,
			PledgeResolved: true,
			PledgeStatus:   pledge.Status,
			Chapter:        pledge.Chapter,
			Frequency:      pledge.Frequency,
		}},
		LoadedAt: time.Now().UTC(),
	}
}

func janWindow(t *testing.T) window.Window {
	t.Helper()
	w, err := window.New(
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

func TestComputeDispatchesEveryMetric(t *testing.T) {
	snap := testSnapshot()
	w := janWindow(t)

	// One active USD donor pledging $50 monthly with one $50 payment at
	// counterfactuality 0.8 pins down every headline number.
	want := map[string]string{
		metrics.MetricMoneyMoved:               "50",
		metrics.MetricCounterfactualMoneyMoved: "40",
		metrics.MetricActiveARR:                "600",
		metrics.MetricFutureARR:                "0",
		metrics.MetricActiveDonorCount:         "1",
		metrics.MetricActivePledgeCount:        "1",
	}

	for _, name := range MetricNames() {
		results, err := Compute(snap, name, w, metrics.GroupNone)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(results) == 0 {
			t.Fatalf("%s: no results", name)
		}
		if expected, ok := want[name]; ok {
			if !results[0].Value.Equal(decimal.RequireFromString(expected)) {
				t.Fatalf("%s = %s, want %s", name, results[0].Value, expected)
			}
		}
	}
}

func TestComputeUnknownMetric(t *testing.T) {
	if _, err := Compute(testSnapshot(), "net_promoter_score", janWindow(t), metrics.GroupNone); err == nil {
		t.Fatalf("expected error for unknown metric")
	}
}

func TestComputeNilSnapshot(t *testing.T) {
	_, err := Compute(nil, metrics.MetricMoneyMoved, janWindow(t), metrics.GroupNone)
	if !errors.Is(err, core.ErrInsufficientData) {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
}

func TestPipelineFromSnapshot(t *testing.T) {
	snap := testSnapshot()
	p := NewPipelineFromSnapshot(snap)

	if p.Snapshot() != snap {
		t.Fatalf("snapshot not exposed")
	}
	got, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != snap {
		t.Fatalf("load rebuilt an injected snapshot")
	}
}

func TestMetricNamesCoversDispatch(t *testing.T) {
	snap := testSnapshot()
	w := janWindow(t)
	for _, name := range MetricNames() {
		if _, err := Compute(snap, name, w, metrics.GroupNone); err != nil {
			t.Fatalf("listed metric %s does not dispatch: %v", name, err)
		}
	}
}
