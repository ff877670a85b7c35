// Package period_repo reads accounting period locks.
package period_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"kardex/internal/core/id"
	"kardex/internal/domain/periods"
	"kardex/internal/infrastructure/storage/postgres"
)

// PeriodRepo implements periods.LockRepository over sys_period_locks.
type PeriodRepo struct {
	txm *postgres.TxManager
}

// NewPeriodRepo creates a new period lock repository.
func NewPeriodRepo(txm *postgres.TxManager) *PeriodRepo {
	return &PeriodRepo{txm: txm}
}

// ClosedUntil implements periods.LockRepository.
func (r *PeriodRepo) ClosedUntil(ctx context.Context, ownerID id.ID) (*time.Time, error) {
	var closedUntil time.Time
	err := r.txm.GetQuerier(ctx).QueryRow(ctx,
		`SELECT closed_until FROM sys_period_locks WHERE owner_id = $1`, ownerID,
	).Scan(&closedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get period lock: %w", err)
	}
	return &closedUntil, nil
}

// Close moves the lock of owner to closedUntil. Periods never reopen
// implicitly: an earlier date than the stored one is ignored.
func (r *PeriodRepo) Close(ctx context.Context, ownerID id.ID, closedUntil time.Time) error {
	_, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_period_locks (owner_id, closed_until, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (owner_id) DO UPDATE
		SET closed_until = GREATEST(sys_period_locks.closed_until, EXCLUDED.closed_until),
		    updated_at = NOW()
	`, ownerID, closedUntil)
	if err != nil {
		return fmt.Errorf("close period: %w", err)
	}
	return nil
}

var _ periods.LockRepository = (*PeriodRepo)(nil)
