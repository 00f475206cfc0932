package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	countSnapshot      = `SELECT COUNT(*) FROM snapshots WHERE source = ?`
	upsertSnapshot     = `INSERT INTO snapshots (source, loaded_at, row_count) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET loaded_at = excluded.loaded_at, row_count = excluded.row_count`
	deleteAllSnapshots = `DELETE FROM snapshots`
	deleteAllPledges   = `DELETE FROM pledges`
	deleteAllPayments  = `DELETE FROM payments`

	insertPledge = `INSERT INTO pledges (
		pledge_id, donor_id, chapter, chapter_type,
		status, status_recognized,
		created_at, starts_at, ended_at,
		amount, currency,
		frequency, frequency_recognized,
		platform, amount_usd, usd_known,
		payment_count, last_payment_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectPledges = `SELECT
		pledge_id, donor_id, chapter, chapter_type,
		status, status_recognized,
		created_at, starts_at, ended_at,
		amount, currency,
		frequency, frequency_recognized,
		platform, amount_usd, usd_known,
		payment_count, last_payment_at
	FROM pledges ORDER BY rowid`

	insertPayment = `INSERT INTO payments (
		payment_id, donor_id, platform, portfolio, pledge_id,
		amount, currency, date,
		counterfactuality, amount_usd, usd_known
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectPayments = `SELECT
		payment_id, donor_id, platform, portfolio, pledge_id,
		amount, currency, date,
		counterfactuality, amount_usd, usd_known
	FROM payments ORDER BY rowid`
)

// Times are stored as RFC 3339 strings; the zero time is the empty string so
// open-ended pledges survive the round trip.
func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func decodeDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}
