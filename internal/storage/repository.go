// Package storage persists the normalized record tables in a local SQLite
// database. The cache is authoritative while present: a loaded snapshot is
// never refreshed automatically, only dropped explicitly via Invalidate.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"donorpulse/internal/core"

	_ "modernc.org/sqlite"
)

// Source names keying the cached tables.
const (
	SourcePledges  = "pledges"
	SourcePayments = "payments"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// HasSnapshot reports whether a cached table exists for the source. Presence
// means "use as-is".
func (r *Repository) HasSnapshot(ctx context.Context, source string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, countSnapshot, source).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check snapshot %s: %w", source, err)
	}
	return count > 0, nil
}

// Invalidate drops the cached tables for every source. The next load fetches
// and regenerates from the raw source.
func (r *Repository) Invalidate(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invalidate: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{deleteAllPayments, deleteAllPledges, deleteAllSnapshots} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("invalidate cache: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invalidate: %w", err)
	}

	slog.InfoContext(ctx, "Cache invalidated")
	return nil
}

// SavePledges replaces the cached pledge table in one transaction.
func (r *Repository) SavePledges(ctx context.Context, pledges []core.Pledge) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save pledges: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteAllPledges); err != nil {
		return fmt.Errorf("clear pledges: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertPledge)
	if err != nil {
		return fmt.Errorf("prepare insert pledge: %w", err)
	}
	defer stmt.Close()

	for _, p := range pledges {
		_, err := stmt.ExecContext(ctx,
			p.ID, p.DonorID, p.Chapter, p.ChapterType,
			string(p.Status), boolInt(p.StatusRecognized),
			encodeTime(p.CreatedAt), encodeTime(p.StartsAt), encodeTime(p.EndedAt),
			p.Amount.String(), p.Currency,
			string(p.Frequency), boolInt(p.FrequencyRecognized),
			p.Platform, p.AmountUSD.String(), boolInt(p.USDKnown),
			p.PaymentCount, encodeTime(p.LastPaymentAt),
		)
		if err != nil {
			return fmt.Errorf("insert pledge %s: %w", p.ID, err)
		}
	}

	if err := upsertSnapshotTx(ctx, tx, SourcePledges, len(pledges)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save pledges: %w", err)
	}

	slog.InfoContext(ctx, "Pledges cached", "rows", len(pledges))
	return nil
}

// SavePayments replaces the cached payment table in one transaction.
func (r *Repository) SavePayments(ctx context.Context, payments []core.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save payments: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteAllPayments); err != nil {
		return fmt.Errorf("clear payments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertPayment)
	if err != nil {
		return fmt.Errorf("prepare insert payment: %w", err)
	}
	defer stmt.Close()

	for _, p := range payments {
		_, err := stmt.ExecContext(ctx,
			p.ID, p.DonorID, p.Platform, p.Portfolio, p.PledgeID,
			p.Amount.String(), p.Currency, encodeTime(p.Date),
			p.Counterfactuality, p.AmountUSD.String(), boolInt(p.USDKnown),
		)
		if err != nil {
			return fmt.Errorf("insert payment %s: %w", p.ID, err)
		}
	}

	if err := upsertSnapshotTx(ctx, tx, SourcePayments, len(payments)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save payments: %w", err)
	}

	slog.InfoContext(ctx, "Payments cached", "rows", len(payments))
	return nil
}

// Pledges reads the cached pledge table.
func (r *Repository) Pledges(ctx context.Context) ([]core.Pledge, error) {
	rows, err := r.db.QueryContext(ctx, selectPledges)
	if err != nil {
		return nil, fmt.Errorf("select pledges: %w", err)
	}
	defer rows.Close()

	pledges := make([]core.Pledge, 0)
	for rows.Next() {
		var (
			p                            core.Pledge
			status, frequency            string
			createdAt, startsAt, endedAt string
			lastPaymentAt                string
			amount, amountUSD            string
			statusRec, freqRec, usdKnown int
		)
		err := rows.Scan(
			&p.ID, &p.DonorID, &p.Chapter, &p.ChapterType,
			&status, &statusRec,
			&createdAt, &startsAt, &endedAt,
			&amount, &p.Currency,
			&frequency, &freqRec,
			&p.Platform, &amountUSD, &usdKnown,
			&p.PaymentCount, &lastPaymentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pledge: %w", err)
		}

		p.Status = core.PledgeStatus(status)
		p.Frequency = core.Frequency(frequency)
		p.StatusRecognized = statusRec != 0
		p.FrequencyRecognized = freqRec != 0
		p.USDKnown = usdKnown != 0

		if p.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, fmt.Errorf("decode pledge %s created_at: %w", p.ID, err)
		}
		if p.StartsAt, err = decodeTime(startsAt); err != nil {
			return nil, fmt.Errorf("decode pledge %s starts_at: %w", p.ID, err)
		}
		if p.EndedAt, err = decodeTime(endedAt); err != nil {
			return nil, fmt.Errorf("decode pledge %s ended_at: %w", p.ID, err)
		}
		if p.LastPaymentAt, err = decodeTime(lastPaymentAt); err != nil {
			return nil, fmt.Errorf("decode pledge %s last_payment_at: %w", p.ID, err)
		}
		if p.Amount, err = decodeDecimal(amount); err != nil {
			return nil, fmt.Errorf("decode pledge %s amount: %w", p.ID, err)
		}
		if p.AmountUSD, err = decodeDecimal(amountUSD); err != nil {
			return nil, fmt.Errorf("decode pledge %s amount_usd: %w", p.ID, err)
		}

		pledges = append(pledges, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pledges: %w", err)
	}

	return pledges, nil
}

// Payments reads the cached payment table.
func (r *Repository) Payments(ctx context.Context) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx, selectPayments)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	payments := make([]core.Payment, 0)
	for rows.Next() {
		var (
			p                 core.Payment
			date              string
			amount, amountUSD string
			usdKnown          int
		)
		err := rows.Scan(
			&p.ID, &p.DonorID, &p.Platform, &p.Portfolio, &p.PledgeID,
			&amount, &p.Currency, &date,
			&p.Counterfactuality, &amountUSD, &usdKnown,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}

		p.USDKnown = usdKnown != 0
		if p.Date, err = decodeTime(date); err != nil {
			return nil, fmt.Errorf("decode payment %s date: %w", p.ID, err)
		}
		if p.Amount, err = decodeDecimal(amount); err != nil {
			return nil, fmt.Errorf("decode payment %s amount: %w", p.ID, err)
		}
		if p.AmountUSD, err = decodeDecimal(amountUSD); err != nil {
			return nil, fmt.Errorf("decode payment %s amount_usd: %w", p.ID, err)
		}

		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}

	return payments, nil
}

func upsertSnapshotTx(ctx context.Context, tx *sql.Tx, source string, rows int) error {
	_, err := tx.ExecContext(ctx, upsertSnapshot, source, time.Now().UTC().Format(time.RFC3339), rows)
	if err != nil {
		return fmt.Errorf("record snapshot %s: %w", source, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
