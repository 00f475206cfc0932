package metrics

import (
	"errors"
	"testing"
	"time"

	"donorpulse/internal/core"
	"donorpulse/internal/window"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustWindow(t *testing.T, start, end time.Time) window.Window {
	t.Helper()
	w, err := window.New(start, end)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

func usd(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(s)
}

func payment(amount string, date time.Time, portfolio string, cf float64) core.JoinedPayment {
	return core.JoinedPayment{
		Payment: core.Payment{
			Portfolio:         portfolio,
			Amount:            decimal.RequireFromString(amount),
			Currency:          "USD",
			Date:              date,
			Counterfactuality: cf,
			AmountUSD:         decimal.RequireFromString(amount),
			USDKnown:          true,
		},
	}
}

func TestMoneyMoved(t *testing.T) {
	w := mustWindow(t, day(2025, 1, 1), day(2025, 1, 31))
	payments := []core.JoinedPayment{
		payment("100", day(2025, 1, 10), "OFTW Top Picks", 0.5),
		payment("50", day(2025, 1, 20), "", 0.5),
		payment("999", day(2025, 1, 15), "One for the World Discretionary Fund", 0.5),
		payment("999", day(2025, 1, 15), "One for the World Operating Costs", 0.5),
		payment("999", day(2024, 12, 31), "OFTW Top Picks", 0.5), // before window
		payment("999", day(2025, 2, 1), "OFTW Top Picks", 0.5),   // after window
	}

	results, err := MoneyMoved(payments, w, GroupNone)
	if err != nil {
		t.Fatalf("money moved: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].Value.Equal(usd(t, "150")) {
		t.Fatalf("got %s, want 150", results[0].Value)
	}
	if results[0].Kind != KindValue {
		t.Fatalf("kind = %s, want value", results[0].Kind)
	}
}

func TestMoneyMovedCaseSensitiveExclusion(t *testing.T) {
	w := mustWindow(t, day(2025, 1, 1), day(2025, 1, 31))
	// Differs from the internal fund name only by case, so it counts.
	payments := []core.JoinedPayment{
		payment("75", day(2025, 1, 10), "one for the world discretionary fund", 1),
	}
	results, err := MoneyMoved(payments, w, GroupNone)
	if err != nil {
		t.Fatalf("money moved: %v", err)
	}
	if !results[0].Value.Equal(usd(t, "75")) {
		t.Fatalf("got %s, want 75", results[0].Value)
	}
}

func TestMoneyMovedBoundaryDatesIncluded(t *testing.T) {
	w := mustWindow(t, day(2025, 1, 1), day(2025, 1, 31))
	payments := []core.JoinedPayment{
		payment("10", day(2025, 1, 1), "", 1),
		payment("20", day(2025, 1, 31), "", 1),
	}
	results, err := MoneyMoved(payments, w, GroupNone)
	if err != nil {
		t.Fatalf("money moved: %v", err)
	}
	if !results[0].Value.Equal(usd(t, "30")) {
		t.Fatalf("got %s, want 30", results[0].Value)
	}
}

func TestMoneyMovedUnknownCurrencyFlagged(t *testing.T) {
	w := mustWindow(t, day(2025, 1, 1), day(2025, 1, 31))
	unknown := payment("100", day(2025, 1, 10), "", 1)
	unknown.USDKnown = false
	payments := []core.JoinedPayment{
		payment("40", day(2025, 1, 5), "", 1),
		unknown,
	}
	results, err := MoneyMoved(payments, w, GroupNone)
	if err != nil {
		t.Fatalf("money moved: %v", err)
	}
	if !results[0].Value.Equal(usd(t, "40")) {
		t.Fatalf("got %s, want 40 (unknown-currency row must not contribute)", results[0].Value)
	}
	if results[0].Excluded != 1 {
		t.Fatalf("excluded = %d, want 1", results[0].Excluded)
	}
}

func TestMoneyMovedNilInput(t *testing.T) {
	w := mustWindow(t, day(2025, 1, 1), day(2025, 1, 31))
	if _, err := MoneyMoved(nil, w, GroupNone); !errors.Is(err, core.ErrInsufficientData) {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
}

func TestMoneyMovedEmptyWindowIsZeroValue(t *testing.T) {
	// No qualifying payments is a true zero, not missing data.
	w := mustWindow(t, day(2025, 1, 1), day(2025, 1, 31))
	payments := []core.JoinedPayment{
		payment("100", day(2024, 6, 1), "", 1),
	}
	results, err := MoneyMoved(payments, w, GroupNone)
	if err != nil {
		t.Fatalf("money moved: %v", err)
	}
	if results[0].Kind != KindValue || !results[0].Value.IsZero() {
		t.Fatalf("got kind=%s value=%s, want value 0", results[0].Kind, results[0].Value)
	}
}

func TestCounterfactualNeverExceedsMoneyMoved(t *testing.T) {
	w := mustWindow(t, day(2025, 1, 1), day(2025, 1, 31))
	payments := []core.JoinedPayment{
		payment("100", day(2025, 1, 10), "", 0.8),
		payment("50", day(2025, 1, 12), "", 0.3),
		payment("25", day(2025, 1, 14), "", 1),
		payment("10", day(2025, 1, 16), "", 0),
	}

	mm, err := MoneyMoved(payments, w, GroupNone)
	if err != nil {
		t.Fatalf("money moved: %v", err)
	}
	cmm, err := CounterfactualMoneyMoved(payments, w, GroupNone)
	if err != nil {
		t.Fatalf("counterfactual: %v", err)
	}

	if cmm[0].Value.GreaterThan(mm[0].Value) {
		t.Fatalf("counterfactual %s exceeds money moved %s", cmm[0].Value, mm[0].Value)
	}
	if !cmm[0].Value.Equal(usd(t, "120")) { // 80 + 15 + 25 + 0
		t.Fatalf("got %s, want 120", cmm[0].Value)
	}
}

func TestMoneyMovedGroupedByChapter(t *testing.T) {
	w := mustWindow(t, day(2025, 1, 1), day(2025, 1, 31))

	resolved := payment("100", day(2025, 1, 10), "", 1)
	resolved.PledgeResolved = true
	resolved.Chapter = "Harvard"

	resolvedEmpty := payment("30", day(2025, 1, 11), "", 1)
	resolvedEmpty.PledgeResolved = true

	orphan := payment("20", day(2025, 1, 12), "", 1)

	results, err := MoneyMoved([]core.JoinedPayment{resolved, resolvedEmpty, orphan}, w, GroupChapter)
	if err != nil {
		t.Fatalf("money moved: %v", err)
	}

	got := map[string]string{}
	for _, r := range results {
		got[r.GroupKey] = r.Value.String()
	}
	want := map[string]string{
		"Harvard":      "100",
		"(none)":       "30",
		"(unresolved)": "20",
	}
	for key, v := range want {
		if got[key] != v {
			t.Fatalf("group %q = %q, want %q (all: %v)", key, got[key], v, got)
		}
	}
}

func TestMoneyMovedGroupedByMonthSorted(t *testing.T) {
	w := mustWindow(t, day(2025, 1, 1), day(2025, 3, 31))
	payments := []core.JoinedPayment{
		payment("10", day(2025, 3, 5), "", 1),
		payment("20", day(2025, 1, 5), "", 1),
		payment("30", day(2025, 2, 5), "", 1),
	}
	results, err := MoneyMoved(payments, w, GroupMonth)
	if err != nil {
		t.Fatalf("money moved: %v", err)
	}
	keys := make([]string, 0, len(results))
	for _, r := range results {
		keys = append(keys, r.GroupKey)
	}
	want := []string{"2025-01", "2025-02", "2025-03"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}
