package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"donorpulse/internal/cache"
	"donorpulse/internal/core"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFrankfurterURL = "https://api.frankfurter.dev"
	defaultConcurrency    = 10
	rateCacheSize         = 16384
)

// Frankfurter looks up historical exchange rates from the Frankfurter API
// (one request per distinct date-currency pair). Rates are immutable once
// published, so results are memoized in a bounded LRU.
type Frankfurter struct {
	baseURL     string
	client      *http.Client
	concurrency int
	now         func() time.Time
	rates       *cache.LRU[string, decimal.Decimal]
}

// FrankfurterOption customizes the client.
type FrankfurterOption func(*Frankfurter)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(u string) FrankfurterOption {
	return func(f *Frankfurter) { f.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) FrankfurterOption {
	return func(f *Frankfurter) { f.client = c }
}

// WithConcurrency bounds parallel rate fetches during Preload.
func WithConcurrency(n int) FrankfurterOption {
	return func(f *Frankfurter) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithClock overrides the clock used to clamp future dates (used by tests).
func WithClock(now func() time.Time) FrankfurterOption {
	return func(f *Frankfurter) { f.now = now }
}

func NewFrankfurter(opts ...FrankfurterOption) *Frankfurter {
	f := &Frankfurter{
		baseURL:     defaultFrankfurterURL,
		client:      &http.Client{Timeout: 15 * time.Second},
		concurrency: defaultConcurrency,
		now:         time.Now,
		rates:       cache.NewLRU[string, decimal.Decimal](rateCacheSize),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ToUSD converts amount to USD at the rate valid on asOf. USD amounts pass
// through unchanged. Dates beyond today are clamped to today, since no rate
// exists yet for them.
func (f *Frankfurter) ToUSD(ctx context.Context, amount decimal.Decimal, currency string, asOf time.Time) (decimal.Decimal, error) {
	if currency == "USD" {
		return amount, nil
	}
	rate, err := f.rate(ctx, currency, f.clamp(asOf))
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// Preload fetches rates for all distinct (date, currency) pairs in queries,
// at most f.concurrency requests in flight. A pair whose currency is unknown
// fails the whole batch; callers decide whether that aborts the load.
func (f *Frankfurter) Preload(ctx context.Context, queries []Query) error {
	seen := make(map[string]Query)
	for _, q := range queries {
		if q.Currency == "USD" {
			continue
		}
		clamped := f.clamp(q.Date)
		key := rateKey(q.Currency, clamped)
		if _, ok := f.rates.Get(key); ok {
			continue
		}
		seen[key] = Query{Currency: q.Currency, Date: clamped}
	}
	if len(seen) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Fetching exchange rates", "pairs", len(seen))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, q := range seen {
		g.Go(func() error {
			_, err := f.rate(ctx, q.Currency, q.Date)
			return err
		})
	}
	return g.Wait()
}

func (f *Frankfurter) rate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	key := rateKey(currency, date)
	if rate, ok := f.rates.Get(key); ok {
		return rate, nil
	}

	rate, err := f.fetch(ctx, currency, date)
	if err != nil {
		return decimal.Zero, err
	}
	f.rates.Set(key, rate)
	return rate, nil
}

func (f *Frankfurter) fetch(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v1/%s?base=%s&symbols=USD",
		f.baseURL, date.Format("2006-01-02"), url.QueryEscape(currency))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate for %s on %s: %w",
			currency, date.Format("2006-01-02"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		// The API answers 404/400 for currencies it does not track.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return decimal.Zero, &core.UnknownCurrencyError{Currency: currency, Date: date}
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch rate for %s on %s: unexpected status %d",
			currency, date.Format("2006-01-02"), resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}

	usd, ok := body.Rates["USD"]
	if !ok {
		return decimal.Zero, &core.UnknownCurrencyError{Currency: currency, Date: date}
	}
	return decimal.NewFromFloat(usd), nil
}

func (f *Frankfurter) clamp(date time.Time) time.Time {
	today := f.now().UTC().Truncate(24 * time.Hour)
	if date.After(today) {
		return today
	}
	return date
}

func rateKey(currency string, date time.Time) string {
	return date.Format("2006-01-02") + "|" + currency
}
