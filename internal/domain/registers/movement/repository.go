// Package movement provides the movement ledger: the ordered record of stock
// entries, exits and adjustments with their computed costs.
package movement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/entity"
	"kardex/internal/core/id"
)

// Repository defines movement persistence. Movements are returned with
// their consumed lots, ordered by (effective_date, id).
type Repository interface {
	// Create inserts the movement and its consumed lots.
	Create(ctx context.Context, m *entity.Movement) error

	Get(ctx context.Context, movementID id.ID) (*entity.Movement, error)

	// FindFrom returns movements with effective_date >= from.
	FindFrom(ctx context.Context, unitID id.ID, from time.Time) ([]*entity.Movement, error)

	// Range returns movements with from <= effective_date <= to.
	Range(ctx context.Context, unitID id.ID, from, to time.Time) ([]*entity.Movement, error)

	// LastBefore returns the last movement with effective_date < before,
	// nil when there is none.
	LastBefore(ctx context.Context, unitID id.ID, before time.Time) (*entity.Movement, error)

	// ExistsAfter reports whether any movement has effective_date > date.
	ExistsAfter(ctx context.Context, unitID id.ID, date time.Time) (bool, error)

	// UpdateCosts rewrites cost fields, balances and consumed lots.
	UpdateCosts(ctx context.Context, movements []*entity.Movement) error

	// Totals aggregates signed quantity and signed total cost of movements
	// with effective_date < before.
	Totals(ctx context.Context, unitID id.ID, before time.Time) (Totals, error)
}

// Totals is an aggregate of signed movement values.
type Totals struct {
	Quantity decimal.Decimal `db:"quantity" json:"quantity"`
	Value    decimal.Decimal `db:"value" json:"value"`
	Count    int64           `db:"movement_count" json:"count"`
}
