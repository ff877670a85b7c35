// Package numerator provides PostgreSQL implementation of sequence numbering.
// This is the infrastructure layer - it implements core/numerator.Sequencer.
package numerator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
	corenumerator "kardex/internal/core/numerator"
	"kardex/internal/infrastructure/storage/postgres"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service issues numbers from sys_sequences.
type Service struct {
	// inTx returns the transaction of ctx, if any.
	inTx func(ctx context.Context) (Querier, bool)
	// reader serves Peek outside of transactions.
	reader func(ctx context.Context) Querier
}

// Ensure compile-time interface compliance.
var _ corenumerator.Sequencer = (*Service)(nil)

// New creates a sequencer bound to the transaction manager.
func New(txm *postgres.TxManager) *Service {
	return &Service{
		inTx: func(ctx context.Context) (Querier, bool) {
			if tx := txm.GetTx(ctx); tx != nil {
				return tx.Tx, true
			}
			return nil, false
		},
		reader: func(ctx context.Context) Querier { return txm.GetQuerier(ctx) },
	}
}

// NewWithQuerier creates a sequencer that treats q as the current
// transaction. Use for testing scenarios.
func NewWithQuerier(q Querier) *Service {
	return &Service{
		inTx:   func(context.Context) (Querier, bool) { return q, true },
		reader: func(context.Context) Querier { return q },
	}
}

// Next increments the counter with one UPSERT + RETURNING. The row lock taken
// by the upsert is held until the caller's transaction ends.
func (s *Service) Next(ctx context.Context, ownerID id.ID, operationType string) (int64, error) {
	if operationType == "" {
		return 0, apperror.NewValidation("operation type is required")
	}
	q, ok := s.inTx(ctx)
	if !ok {
		return 0, apperror.NewInternal(fmt.Errorf("sequence %s: no transaction in context", operationType))
	}

	var num int64
	err := q.QueryRow(ctx, `
        INSERT INTO sys_sequences (owner_id, operation_type, last_number)
        VALUES ($1, $2, 1)
        ON CONFLICT (owner_id, operation_type) DO UPDATE SET last_number = sys_sequences.last_number + 1
        RETURNING last_number
	`, ownerID, operationType).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", operationType, err)
	}
	return num, nil
}

// Peek returns the last issued number, 0 when the counter does not exist.
func (s *Service) Peek(ctx context.Context, ownerID id.ID, operationType string) (int64, error) {
	var num int64
	err := s.reader(ctx).QueryRow(ctx, `
		SELECT last_number FROM sys_sequences WHERE owner_id = $1 AND operation_type = $2
	`, ownerID, operationType).Scan(&num)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("peek sequence %s: %w", operationType, err)
	}
	return num, nil
}

// Set moves the counter so the next number issued is value+1 (for migration
// purposes). Requires a transaction like Next.
func (s *Service) Set(ctx context.Context, ownerID id.ID, operationType string, value int64) error {
	if value < 0 {
		return apperror.NewValidation("sequence value must not be negative")
	}
	q, ok := s.inTx(ctx)
	if !ok {
		return apperror.NewInternal(fmt.Errorf("sequence %s: no transaction in context", operationType))
	}

	var result int64
	err := q.QueryRow(ctx, `
		INSERT INTO sys_sequences (owner_id, operation_type, last_number)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, operation_type) DO UPDATE SET last_number = $3
		RETURNING last_number
	`, ownerID, operationType, value).Scan(&result)
	if err != nil {
		return fmt.Errorf("set sequence %s: %w", operationType, err)
	}
	return nil
}
