// Package results persists committed review runs. Items are append-only:
// a run's rows are written once as a single batch and never mutated, so
// historical runs can be diffed safely.
package results

import (
	"context"

	"github.com/tenderops/bid-reviewer/internal/review"
)

// Sink accepts one review run's items as a single logical batch. All items in
// a batch share the same review_run_id.
type Sink interface {
	SaveBatch(ctx context.Context, items []review.ReviewItem) error
}

// MemorySink keeps batches in memory. Used by tests and dry runs.
type MemorySink struct {
	Batches [][]review.ReviewItem
}

// SaveBatch appends a copy of the batch.
func (m *MemorySink) SaveBatch(_ context.Context, items []review.ReviewItem) error {
	batch := make([]review.ReviewItem, len(items))
	copy(batch, items)
	m.Batches = append(m.Batches, batch)
	return nil
}
