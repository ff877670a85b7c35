package movement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
)

// Draft is a movement not yet recorded.
type Draft struct {
	// ID is generated when nil.
	ID            id.ID
	StockUnitID   id.ID
	Kind          entity.MovementKind
	EffectiveDate time.Time
	DocumentID    *id.ID
	Quantity      decimal.Decimal

	// UnitCost and ExpirationDate apply to ENTRY only.
	UnitCost       decimal.Decimal
	ExpirationDate *time.Time
}

// Validate checks draft invariants.
func (d *Draft) Validate(_ context.Context) error {
	if id.IsNil(d.StockUnitID) {
		return apperror.NewValidation("movement requires a stock unit")
	}
	if !d.Kind.Valid() {
		return apperror.NewValidation("unknown movement kind").WithDetail("kind", d.Kind)
	}
	if d.EffectiveDate.IsZero() {
		return apperror.NewValidation("movement requires an effective date")
	}
	if !d.Quantity.IsPositive() {
		return apperror.NewValidation("movement quantity must be positive").
			WithDetail("quantity", d.Quantity.String())
	}
	if d.Kind == entity.MovementEntry && d.UnitCost.IsNegative() {
		return apperror.NewValidation("entry unit cost must not be negative").
			WithDetail("unit_cost", d.UnitCost.String())
	}
	return nil
}

func (d *Draft) toMovement() *entity.Movement {
	mid := d.ID
	if id.IsNil(mid) {
		mid = id.New()
	}
	return &entity.Movement{
		ID:            mid,
		StockUnitID:   d.StockUnitID,
		Kind:          d.Kind,
		EffectiveDate: d.EffectiveDate,
		DocumentID:    d.DocumentID,
		Quantity:      d.Quantity,
		CreatedAt:     time.Now().UTC(),
	}
}
