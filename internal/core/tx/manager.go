// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the pgx implementation lives in
// infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK, and nested transaction support.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with snapshot reads.
type ReadOnlyManager interface {
	Manager

	// Snapshot executes fn in a read-only repeatable-read transaction so every
	// query inside fn observes the same committed state.
	Snapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

// SavepointManager makes nested rollback scopes explicit.
type SavepointManager interface {
	Manager

	// Savepoint runs fn inside SAVEPOINT name of the transaction already
	// present in ctx. On error only the work done since the savepoint is
	// rolled back and the error is returned; the outer transaction stays usable.
	// Calling Savepoint without a transaction in ctx is an error.
	Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error
}
