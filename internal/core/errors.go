package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSourceUnavailable means the raw record source could not be fetched.
	// Fatal for that load; never retried at this layer.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInsufficientData means a metric cannot compute because its inputs
	// are missing. Distinct from a legitimate zero result.
	ErrInsufficientData = errors.New("insufficient data")
)

// SchemaMismatchError reports required columns absent from a raw source.
type SchemaMismatchError struct {
	Source  string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in %s: missing columns %s",
		e.Source, strings.Join(e.Missing, ", "))
}

// UnknownCurrencyError reports a currency with no available USD rate.
// Callers must never substitute a 1:1 rate in its place.
type UnknownCurrencyError struct {
	Currency string
	Date     time.Time
}

func (e *UnknownCurrencyError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("unknown currency %q", e.Currency)
	}
	return fmt.Sprintf("unknown currency %q as of %s", e.Currency, e.Date.Format("2006-01-02"))
}

// DuplicatePledgeIDError reports a pledge ID that appears more than once in
// the pledge source. Pledge IDs are defined unique, so this is a data
// anomaly that fails the join rather than silently picking one row.
type DuplicatePledgeIDError struct {
	PledgeID string
	Count    int
}

func (e *DuplicatePledgeIDError) Error() string {
	return fmt.Sprintf("duplicate pledge id %q appears %d times", e.PledgeID, e.Count)
}
