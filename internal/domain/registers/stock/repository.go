// Package stock provides the lot and stock unit ledgers.
//
// A stock unit is the (product, warehouse) aggregate; its quantity always
// equals the sum of its active lots. All mutation goes through Ledger, which
// applies movements to an in-memory Position and persists the result in the
// caller's transaction.
package stock

import (
	"context"
	"time"

	"kardex/internal/core/entity"
	"kardex/internal/core/id"
)

// Repository defines persistence for stock units and lots.
type Repository interface {
	// Units

	// GetUnit returns StockUnitNotFound when absent.
	GetUnit(ctx context.Context, unitID id.ID) (*entity.StockUnit, error)

	// GetUnitForUpdate reads the unit with a row lock held until the
	// transaction ends.
	GetUnitForUpdate(ctx context.Context, unitID id.ID) (*entity.StockUnit, error)

	// FindUnit returns nil, nil when no unit exists for the pair.
	FindUnit(ctx context.Context, productID, warehouseID id.ID) (*entity.StockUnit, error)

	// CreateUnit inserts the unit, or returns the existing one when another
	// transaction created it first.
	CreateUnit(ctx context.Context, unit *entity.StockUnit) (*entity.StockUnit, error)

	// SaveUnit persists quantity and average cost and bumps Version.
	SaveUnit(ctx context.Context, unit *entity.StockUnit) error

	// Lots

	CreateLot(ctx context.Context, lot *entity.Lot) error

	// ActiveLots returns active lots with quantity left, ordered by
	// (entry_date, id).
	ActiveLots(ctx context.Context, unitID id.ID) ([]entity.Lot, error)

	// SaveLots persists current quantity and active flag.
	SaveLots(ctx context.Context, lots []entity.Lot) error

	// Replay support

	// RestoreConsumedFrom gives lots entered before from back the quantities
	// consumed by movements dated on or after from, then deletes the
	// consumption rows of those movements. Returns the restored lot ids.
	RestoreConsumedFrom(ctx context.Context, unitID id.ID, from time.Time) ([]id.ID, error)

	// ResetLotsFrom sets lots entered on or after from back to full and
	// active. Returns the reset lot ids.
	ResetLotsFrom(ctx context.Context, unitID id.ID, from time.Time) ([]id.ID, error)
}
