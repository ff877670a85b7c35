// Package entity provides core domain entities.
// Entities reference each other by id only; repositories fetch on demand.
package entity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	Validate(ctx context.Context) error
}

// CostingMethod is the valuation policy configured for a stock unit.
type CostingMethod string

const (
	CostingWeightedAverage CostingMethod = "weighted_average"
	CostingFIFO            CostingMethod = "fifo"
)

// Valid reports whether m is a known method.
func (m CostingMethod) Valid() bool {
	return m == CostingWeightedAverage || m == CostingFIFO
}

// StockUnit is the (product, warehouse) aggregate of quantity and cost.
type StockUnit struct {
	ID          id.ID `db:"id" json:"id"`
	ProductID   id.ID `db:"product_id" json:"productId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// CostingMethod is fixed when the unit is created.
	CostingMethod CostingMethod `db:"costing_method" json:"costingMethod"`

	CurrentQuantity    decimal.Decimal `db:"current_quantity" json:"currentQuantity"`
	CurrentAverageCost decimal.Decimal `db:"current_average_cost" json:"currentAverageCost"`

	// Version increments on every mutation.
	Version int64 `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewStockUnit creates an empty unit.
func NewStockUnit(productID, warehouseID id.ID, method CostingMethod) *StockUnit {
	now := time.Now().UTC()
	return &StockUnit{
		ID:                 id.New(),
		ProductID:          productID,
		WarehouseID:        warehouseID,
		CostingMethod:      method,
		CurrentQuantity:    decimal.Zero,
		CurrentAverageCost: decimal.Zero,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Validate checks unit invariants.
func (u *StockUnit) Validate(_ context.Context) error {
	if id.IsNil(u.ProductID) || id.IsNil(u.WarehouseID) {
		return apperror.NewValidation("stock unit requires product and warehouse")
	}
	if !u.CostingMethod.Valid() {
		return apperror.NewValidation("unknown costing method").WithDetail("costing_method", u.CostingMethod)
	}
	if u.CurrentQuantity.IsNegative() || u.CurrentAverageCost.IsNegative() {
		return apperror.NewValidation("stock unit quantity and cost must not be negative").
			WithDetail("stock_unit_id", u.ID)
	}
	return nil
}

// Lot is a batch received by one ENTRY movement.
type Lot struct {
	ID          id.ID `db:"id" json:"id"`
	StockUnitID id.ID `db:"stock_unit_id" json:"stockUnitId"`

	// MovementID is the ENTRY movement that created the lot.
	MovementID id.ID `db:"movement_id" json:"movementId"`

	EntryDate       time.Time       `db:"entry_date" json:"entryDate"`
	InitialQuantity decimal.Decimal `db:"initial_quantity" json:"initialQuantity"`
	CurrentQuantity decimal.Decimal `db:"current_quantity" json:"currentQuantity"`
	UnitCost        decimal.Decimal `db:"unit_cost" json:"unitCost"`
	ExpirationDate  *time.Time      `db:"expiration_date" json:"expirationDate,omitempty"`

	// Active is false once the lot is depleted. Never physically deleted.
	Active bool `db:"active" json:"active"`
}

// Validate checks lot invariants.
func (l *Lot) Validate(_ context.Context) error {
	if !l.InitialQuantity.IsPositive() {
		return apperror.NewValidation("lot initial quantity must be positive").WithDetail("lot_id", l.ID)
	}
	if l.CurrentQuantity.IsNegative() || l.CurrentQuantity.GreaterThan(l.InitialQuantity) {
		return apperror.NewValidation("lot current quantity out of range").WithDetail("lot_id", l.ID)
	}
	if l.UnitCost.IsNegative() {
		return apperror.NewValidation("lot unit cost must not be negative").WithDetail("lot_id", l.ID)
	}
	return nil
}

// Less orders lots for FIFO consumption: entry date, then id.
func (l *Lot) Less(other *Lot) bool {
	if !l.EntryDate.Equal(other.EntryDate) {
		return l.EntryDate.Before(other.EntryDate)
	}
	return id.Compare(l.ID, other.ID) < 0
}
