// Package numerator provides domain contracts for per-owner sequence numbers.
// Implementations live in infrastructure layer.
package numerator

import (
	"context"

	"kardex/internal/core/id"
)

// Sequencer issues gap-free increasing numbers per (owner, operation type).
//
// Next must run inside the caller's transaction: the counter row stays locked
// until that transaction ends, so concurrent callers on one key are
// serialized and a rolled back caller gives its number back.
type Sequencer interface {
	Next(ctx context.Context, ownerID id.ID, operationType string) (int64, error)

	// Peek returns the last issued number without locking (0 if none).
	Peek(ctx context.Context, ownerID id.ID, operationType string) (int64, error)
}
