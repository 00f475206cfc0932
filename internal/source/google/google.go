// Package google reads pledge and payment records from two tabs of a Google
// spreadsheet, using service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"donorpulse/internal/core"
	"donorpulse/internal/source"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Source struct {
	svc           *gsheet.Service
	spreadsheetID string
	pledgesSheet  string
	paymentsSheet string
}

var _ source.RecordSource = (*Source)(nil)

// Config identifies the spreadsheet and its two tabs.
type Config struct {
	SpreadsheetID string
	PledgesSheet  string
	PaymentsSheet string
}

// New creates a Sheets-backed source. Credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.PledgesSheet == "" {
		cfg.PledgesSheet = "Pledges"
	}
	if cfg.PaymentsSheet == "" {
		cfg.PaymentsSheet = "Payments"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Source{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		pledgesSheet:  cfg.PledgesSheet,
		paymentsSheet: cfg.PaymentsSheet,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	credentialsFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var creds []byte
	switch {
	case credentialsJSON != "":
		creds = []byte(credentialsJSON)
	case credentialsFile != "":
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func (s *Source) FetchPledges(ctx context.Context) ([]source.Record, error) {
	return s.fetchSheet(ctx, s.pledgesSheet)
}

func (s *Source) FetchPayments(ctx context.Context) ([]source.Record, error) {
	return s.fetchSheet(ctx, s.paymentsSheet)
}

func (s *Source) fetchSheet(ctx context.Context, sheet string) ([]source.Record, error) {
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.spreadsheetID, sheet).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", core.ErrSourceUnavailable, sheet, err)
	}
	return recordsFromValues(resp.Values), nil
}

// recordsFromValues converts a Sheets values matrix into records using the
// first row as column headers. Short rows are padded with empty strings.
func recordsFromValues(values [][]any) []source.Record {
	if len(values) == 0 {
		return nil
	}

	headers := make([]string, len(values[0]))
	for i, h := range values[0] {
		headers[i] = strings.TrimSpace(fmt.Sprint(h))
	}

	records := make([]source.Record, 0, len(values)-1)
	for _, row := range values[1:] {
		rec := make(source.Record, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			if i < len(row) && row[i] != nil {
				rec[header] = fmt.Sprint(row[i])
			} else {
				rec[header] = ""
			}
		}
		records = append(records, rec)
	}
	return records
}
