// Package file reads pledge and payment records from local JSON files, each
// holding an array of flat objects.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"donorpulse/internal/core"
	"donorpulse/internal/source"
)

type Source struct {
	pledgesPath  string
	paymentsPath string
}

var _ source.RecordSource = (*Source)(nil)

func New(pledgesPath, paymentsPath string) *Source {
	return &Source{pledgesPath: pledgesPath, paymentsPath: paymentsPath}
}

func (s *Source) FetchPledges(ctx context.Context) ([]source.Record, error) {
	return readRecords(s.pledgesPath)
}

func (s *Source) FetchPayments(ctx context.Context) ([]source.Record, error) {
	return readRecords(s.paymentsPath)
}

func readRecords(path string) ([]source.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", core.ErrSourceUnavailable, path, err)
	}
	records, err := DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

// DecodeRecords parses a JSON array of flat objects into records. Scalar
// values are stringified; null becomes the empty string. Shared with the
// HTTP backend, which serves the same document over the network.
func DecodeRecords(data []byte) ([]source.Record, error) {
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}

	records := make([]source.Record, len(rows))
	for i, row := range rows {
		rec := make(source.Record, len(row))
		for key, value := range row {
			rec[key] = stringify(value)
		}
		records[i] = rec
	}
	return records, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
