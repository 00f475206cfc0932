// Package httpjson fetches pledge and payment records from stable URLs
// serving the same JSON documents the file backend reads locally.
package httpjson

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"donorpulse/internal/core"
	"donorpulse/internal/source"
	"donorpulse/internal/source/file"
)

// maxBodyBytes caps a single record-set download. The full payment history
// is a few megabytes; anything near this limit is a broken source.
const maxBodyBytes = 256 << 20

type Source struct {
	pledgesURL  string
	paymentsURL string
	client      *http.Client
}

var _ source.RecordSource = (*Source)(nil)

func New(pledgesURL, paymentsURL string) *Source {
	return &Source{
		pledgesURL:  pledgesURL,
		paymentsURL: paymentsURL,
		client:      &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient overrides the HTTP client (used by tests).
func (s *Source) WithHTTPClient(c *http.Client) *Source {
	s.client = c
	return s
}

func (s *Source) FetchPledges(ctx context.Context) ([]source.Record, error) {
	return s.fetch(ctx, s.pledgesURL)
}

func (s *Source) FetchPayments(ctx context.Context) ([]source.Record, error) {
	return s.fetch(ctx, s.paymentsURL)
}

func (s *Source) fetch(ctx context.Context, url string) ([]source.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", core.ErrSourceUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: fetch %s: status %d", core.ErrSourceUnavailable, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", core.ErrSourceUnavailable, url, err)
	}

	records, err := file.DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return records, nil
}
