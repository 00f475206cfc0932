// Package fx converts monetary amounts to USD.
//
// Conversion is date-sensitive: each lookup uses the rate valid on the
// transaction date (dates in the future are clamped to the current day).
// The same Converter instance is injected everywhere amounts are converted,
// so every metric uses a single conversion convention.
//
// A missing rate is an UnknownCurrencyError. There is no silent 1:1
// fallback: conflating unconverted amounts with real USD amounts is a data
// integrity bug, so callers must exclude or fail explicitly.
package fx

import (
	"context"
	"time"

	"donorpulse/internal/core"

	"github.com/shopspring/decimal"
)

// Converter converts an amount in a given currency to USD as of a date.
type Converter interface {
	ToUSD(ctx context.Context, amount decimal.Decimal, currency string, asOf time.Time) (decimal.Decimal, error)
}

// Query identifies one rate lookup.
type Query struct {
	Currency string
	Date     time.Time
}

// Preloader is implemented by converters that can fetch a batch of rates up
// front. The loader deduplicates (date, currency) pairs and preloads them
// before converting row by row.
type Preloader interface {
	Preload(ctx context.Context, queries []Query) error
}

// StaticTable is a fixed-snapshot converter backed by an in-memory rate
// table (units of USD per unit of currency). The as-of date is ignored.
// Used for tests and offline runs.
type StaticTable struct {
	rates map[string]decimal.Decimal
}

// NewStaticTable builds a converter from a currency->rate map. USD is
// implicit at 1.0.
func NewStaticTable(rates map[string]decimal.Decimal) *StaticTable {
	table := make(map[string]decimal.Decimal, len(rates)+1)
	for code, rate := range rates {
		table[code] = rate
	}
	table["USD"] = decimal.NewFromInt(1)
	return &StaticTable{rates: table}
}

func (t *StaticTable) ToUSD(_ context.Context, amount decimal.Decimal, currency string, asOf time.Time) (decimal.Decimal, error) {
	rate, ok := t.rates[currency]
	if !ok {
		return decimal.Zero, &core.UnknownCurrencyError{Currency: currency, Date: asOf}
	}
	return amount.Mul(rate), nil
}
