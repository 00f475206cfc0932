// Package source defines the ports for raw record retrieval. Backends fetch
// the two record sets as untyped rows; all typing and validation happens in
// the loader.
package source

import "context"

// Record is one raw row keyed by source column name.
type Record map[string]string

// RecordSource fetches the raw pledge and payment record sets. A failed
// fetch is reported as core.ErrSourceUnavailable; backends never retry.
type RecordSource interface {
	FetchPledges(ctx context.Context) ([]Record, error)
	FetchPayments(ctx context.Context) ([]Record, error)
}
