// Package loader turns raw source records into the normalized, USD-converted
// tables the metric engine reads. It also maintains the on-disk cache: a
// present snapshot is authoritative and is only replaced after an explicit
// invalidation.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"donorpulse/internal/core"
	"donorpulse/internal/fx"
	"donorpulse/internal/source"
	"donorpulse/internal/storage"

	"github.com/shopspring/decimal"
)

// Required source columns, by record set.
var (
	pledgeColumns = []string{
		"pledge_id", "donor_id", "donor_chapter", "chapter_type",
		"pledge_status", "pledge_created_at", "pledge_starts_at", "pledge_ended_at",
		"contribution_amount", "currency", "frequency", "payment_platform",
	}
	paymentColumns = []string{
		"id", "donor_id", "payment_platform", "portfolio",
		"amount", "currency", "date", "counterfactuality", "pledge_id",
	}
)

// Report summarizes what normalization did to one record set. Nothing is
// dropped or excluded silently; every adjustment is counted here.
type Report struct {
	Source                      string
	FromCache                   bool
	Rows                        int
	Dropped                     int
	UnrecognizedStatuses        int
	UnrecognizedFrequencies     int
	UnknownCurrencies           int
	OutOfRangeCounterfactuality int
	MalformedValues             int
}

// Loader fetches, normalizes, converts, and caches the two record sets.
// The store may be nil, in which case every load fetches from source.
type Loader struct {
	source source.RecordSource
	fx     fx.Converter
	store  *storage.Repository
}

func New(src source.RecordSource, converter fx.Converter, store *storage.Repository) *Loader {
	return &Loader{source: src, fx: converter, store: store}
}

// LoadPayments returns the normalized payment table, reading the cache when
// present and regenerating it from source otherwise.
//
// Unknown-currency policy: a payment whose currency has no rate keeps its
// original amount but is marked USDKnown=false; metrics exclude it from USD
// sums and surface the exclusion count. No amount is ever passed through 1:1.
func (l *Loader) LoadPayments(ctx context.Context) ([]core.Payment, *Report, error) {
	cached, hit, err := l.cachedPayments(ctx)
	if err != nil {
		return nil, nil, err
	}
	if hit {
		return cached, &Report{Source: storage.SourcePayments, FromCache: true, Rows: len(cached)}, nil
	}

	records, err := l.source.FetchPayments(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch payments: %w", err)
	}
	if err := checkSchema("payments", records, paymentColumns); err != nil {
		return nil, nil, err
	}

	report := &Report{Source: storage.SourcePayments, Rows: len(records)}
	payments := make([]core.Payment, 0, len(records))
	for _, rec := range records {
		payments = append(payments, normalizePayment(rec, report))
	}

	if err := l.convertPayments(ctx, payments, report); err != nil {
		return nil, nil, err
	}

	if l.store != nil {
		if err := l.store.SavePayments(ctx, payments); err != nil {
			return nil, nil, fmt.Errorf("cache payments: %w", err)
		}
	}

	logReport(ctx, report)
	return payments, report, nil
}

// LoadPledges returns the normalized pledge table. Beyond per-row
// normalization it reconciles pledges against payment history, as the
// upstream data requires:
//
//   - failed/churned/error pledges with no end date are data errors, dropped;
//   - "Updated" pledges missing an end date get it backfilled from their
//     last payment; "Updated" pledges with no payments are dropped;
//   - any other non-"Pledged donor" pledge with zero payments is dropped.
func (l *Loader) LoadPledges(ctx context.Context) ([]core.Pledge, *Report, error) {
	cached, hit, err := l.cachedPledges(ctx)
	if err != nil {
		return nil, nil, err
	}
	if hit {
		return cached, &Report{Source: storage.SourcePledges, FromCache: true, Rows: len(cached)}, nil
	}

	payments, _, err := l.LoadPayments(ctx)
	if err != nil {
		return nil, nil, err
	}

	records, err := l.source.FetchPledges(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch pledges: %w", err)
	}
	if err := checkSchema("pledges", records, pledgeColumns); err != nil {
		return nil, nil, err
	}

	report := &Report{Source: storage.SourcePledges, Rows: len(records)}
	pledges := make([]core.Pledge, 0, len(records))
	for _, rec := range records {
		pledges = append(pledges, normalizePledge(rec, report))
	}

	pledges = reconcile(pledges, payments, report)

	if err := l.convertPledges(ctx, pledges, report); err != nil {
		return nil, nil, err
	}

	if l.store != nil {
		if err := l.store.SavePledges(ctx, pledges); err != nil {
			return nil, nil, fmt.Errorf("cache pledges: %w", err)
		}
	}

	logReport(ctx, report)
	return pledges, report, nil
}

func (l *Loader) cachedPayments(ctx context.Context) ([]core.Payment, bool, error) {
	if l.store == nil {
		return nil, false, nil
	}
	ok, err := l.store.HasSnapshot(ctx, storage.SourcePayments)
	if err != nil || !ok {
		return nil, false, err
	}
	payments, err := l.store.Payments(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("read cached payments: %w", err)
	}
	return payments, true, nil
}

func (l *Loader) cachedPledges(ctx context.Context) ([]core.Pledge, bool, error) {
	if l.store == nil {
		return nil, false, nil
	}
	ok, err := l.store.HasSnapshot(ctx, storage.SourcePledges)
	if err != nil || !ok {
		return nil, false, err
	}
	pledges, err := l.store.Pledges(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("read cached pledges: %w", err)
	}
	return pledges, true, nil
}

func (l *Loader) convertPayments(ctx context.Context, payments []core.Payment, report *Report) error {
	queries := make([]fx.Query, 0, len(payments))
	for _, p := range payments {
		if p.Currency != "USD" && p.Currency != "" {
			queries = append(queries, fx.Query{Currency: p.Currency, Date: p.Date})
		}
	}
	l.preload(ctx, queries)

	for i := range payments {
		p := &payments[i]
		if p.Currency == "" {
			report.UnknownCurrencies++
			continue
		}
		usd, err := l.fx.ToUSD(ctx, p.Amount, p.Currency, p.Date)
		if err != nil {
			var unknown *core.UnknownCurrencyError
			if errors.As(err, &unknown) {
				report.UnknownCurrencies++
				continue
			}
			return fmt.Errorf("convert payment %s: %w", p.ID, err)
		}
		p.AmountUSD = usd
		p.USDKnown = true
	}
	return nil
}

func (l *Loader) convertPledges(ctx context.Context, pledges []core.Pledge, report *Report) error {
	queries := make([]fx.Query, 0, len(pledges))
	for _, p := range pledges {
		if p.Currency != "USD" && p.Currency != "" {
			queries = append(queries, fx.Query{Currency: p.Currency, Date: p.StartsAt})
		}
	}
	l.preload(ctx, queries)

	for i := range pledges {
		p := &pledges[i]
		if p.Currency == "" {
			report.UnknownCurrencies++
			continue
		}
		// Contributions convert at the pledge start date, the same
		// date-sensitive convention payments use.
		usd, err := l.fx.ToUSD(ctx, p.Amount, p.Currency, p.StartsAt)
		if err != nil {
			var unknown *core.UnknownCurrencyError
			if errors.As(err, &unknown) {
				report.UnknownCurrencies++
				continue
			}
			return fmt.Errorf("convert pledge %s: %w", p.ID, err)
		}
		p.AmountUSD = usd
		p.USDKnown = true
	}
	return nil
}

func (l *Loader) preload(ctx context.Context, queries []fx.Query) {
	preloader, ok := l.fx.(fx.Preloader)
	if !ok || len(queries) == 0 {
		return
	}
	// Best effort: per-row conversion repeats the lookup and reports the
	// precise failure, so a batch error only costs parallelism.
	if err := preloader.Preload(ctx, queries); err != nil {
		slog.WarnContext(ctx, "Rate preload incomplete", "error", err)
	}
}

func normalizePayment(rec source.Record, report *Report) core.Payment {
	p := core.Payment{
		ID:        strings.TrimSpace(rec["id"]),
		DonorID:   strings.TrimSpace(rec["donor_id"]),
		Platform:  strings.TrimSpace(rec["payment_platform"]),
		Portfolio: rec["portfolio"],
		PledgeID:  strings.TrimSpace(rec["pledge_id"]),
		Currency:  normalizeCurrency(rec["currency"]),
	}

	var ok bool
	if p.Date, ok = parseDate(rec["date"]); !ok {
		report.MalformedValues++
	}
	if p.Amount, ok = parseAmount(rec["amount"]); !ok {
		report.MalformedValues++
		p.Currency = "" // no amount to convert
	}

	cf, ok := parseFloat(rec["counterfactuality"])
	if !ok {
		report.MalformedValues++
	}
	// Counterfactuality is a probability; values outside [0, 1] are a data
	// quality error. They are clamped but always counted in the report.
	if cf < 0 || cf > 1 {
		report.OutOfRangeCounterfactuality++
		cf = min(max(cf, 0), 1)
	}
	p.Counterfactuality = cf

	return p
}

func normalizePledge(rec source.Record, report *Report) core.Pledge {
	p := core.Pledge{
		ID:          strings.TrimSpace(rec["pledge_id"]),
		DonorID:     strings.TrimSpace(rec["donor_id"]),
		Chapter:     strings.TrimSpace(rec["donor_chapter"]),
		ChapterType: strings.TrimSpace(rec["chapter_type"]),
		Platform:    strings.TrimSpace(rec["payment_platform"]),
		Currency:    normalizeCurrency(rec["currency"]),
	}

	p.Status = core.PledgeStatus(strings.TrimSpace(rec["pledge_status"]))
	p.StatusRecognized = core.KnownStatus(p.Status)
	if !p.StatusRecognized {
		report.UnrecognizedStatuses++
	}

	p.Frequency = core.Frequency(strings.TrimSpace(rec["frequency"]))
	p.FrequencyRecognized = core.KnownFrequency(p.Frequency)
	if !p.FrequencyRecognized && p.Frequency != "" {
		report.UnrecognizedFrequencies++
	}

	var ok bool
	if p.CreatedAt, ok = parseDate(rec["pledge_created_at"]); !ok {
		report.MalformedValues++
	}
	if p.StartsAt, ok = parseDate(rec["pledge_starts_at"]); !ok {
		report.MalformedValues++
	}
	if rec["pledge_ended_at"] != "" {
		if p.EndedAt, ok = parseDate(rec["pledge_ended_at"]); !ok {
			report.MalformedValues++
		}
	}
	if p.Amount, ok = parseAmount(rec["contribution_amount"]); !ok {
		report.MalformedValues++
		p.Currency = ""
	}

	return p
}

// reconcile applies the payment-history corrections to the pledge table.
func reconcile(pledges []core.Pledge, payments []core.Payment, report *Report) []core.Pledge {
	type stats struct {
		count int
		last  time.Time
	}
	byPledge := make(map[string]*stats, len(pledges))
	for _, payment := range payments {
		if payment.PledgeID == "" {
			continue
		}
		s, ok := byPledge[payment.PledgeID]
		if !ok {
			s = &stats{}
			byPledge[payment.PledgeID] = s
		}
		s.count++
		if payment.Date.After(s.last) {
			s.last = payment.Date
		}
	}

	kept := pledges[:0]
	for _, p := range pledges {
		if s, ok := byPledge[p.ID]; ok {
			p.PaymentCount = s.count
			p.LastPaymentAt = s.last
		}

		// Terminal-status pledges with no end date cannot be placed on a
		// timeline; upstream marks these as entry errors.
		switch p.Status {
		case core.StatusError, core.StatusPaymentFailure, core.StatusChurnedDonor:
			if p.EndedAt.IsZero() {
				report.Dropped++
				continue
			}
		}

		if p.Status == core.StatusUpdated {
			if p.PaymentCount == 0 {
				report.Dropped++
				continue
			}
			if p.EndedAt.IsZero() {
				p.EndedAt = p.LastPaymentAt
			}
		}

		if p.PaymentCount == 0 && p.Status != core.StatusPledgedDonor {
			report.Dropped++
			continue
		}

		kept = append(kept, p)
	}
	return kept
}

func checkSchema(name string, records []source.Record, required []string) error {
	if len(records) == 0 {
		return nil
	}
	var missing []string
	for _, col := range required {
		if _, ok := records[0][col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &core.SchemaMismatchError{Source: name, Missing: missing}
	}
	return nil
}

func normalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseDate reports ok=true for an empty value: absence is legitimate (open
// pledges), only a present-but-unparseable value is malformed.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(24 * time.Hour), true
		}
	}
	return time.Time{}, false
}

func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func logReport(ctx context.Context, r *Report) {
	slog.InfoContext(ctx, "Record set normalized",
		"source", r.Source,
		"rows", r.Rows,
		"dropped", r.Dropped,
		"unrecognized_statuses", r.UnrecognizedStatuses,
		"unrecognized_frequencies", r.UnrecognizedFrequencies,
		"unknown_currencies", r.UnknownCurrencies,
		"counterfactuality_out_of_range", r.OutOfRangeCounterfactuality,
		"malformed_values", r.MalformedValues)
}
