package entity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
)

// MovementKind defines the direction of a stock movement.
type MovementKind string

const (
	// MovementEntry receives stock and creates a lot.
	MovementEntry MovementKind = "ENTRY"
	// MovementExit issues stock (sale, transfer out).
	MovementExit MovementKind = "EXIT"
	// MovementAdjustment writes stock off (shrinkage, count difference).
	MovementAdjustment MovementKind = "ADJUSTMENT"
)

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	return k == MovementEntry || k == MovementExit || k == MovementAdjustment
}

// Consumes reports whether the kind draws from lots.
func (k MovementKind) Consumes() bool {
	return k == MovementExit || k == MovementAdjustment
}

// ConsumedLot is one slice of a lot drawn by a consuming movement.
type ConsumedLot struct {
	LotID    id.ID           `db:"lot_id" json:"lotId"`
	Quantity decimal.Decimal `db:"quantity" json:"quantity"`
	UnitCost decimal.Decimal `db:"unit_cost" json:"unitCost"`
}

// Movement is one stock entry, exit or adjustment of a stock unit.
// Quantity is always positive; Kind gives the sign.
type Movement struct {
	ID            id.ID        `db:"id" json:"id"`
	StockUnitID   id.ID        `db:"stock_unit_id" json:"stockUnitId"`
	Kind          MovementKind `db:"kind" json:"kind"`
	EffectiveDate time.Time    `db:"effective_date" json:"effectiveDate"`
	DocumentID    *id.ID       `db:"document_id" json:"documentId,omitempty"`

	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
	UnitCost  decimal.Decimal `db:"unit_cost" json:"unitCost"`
	TotalCost decimal.Decimal `db:"total_cost" json:"totalCost"`

	// Unit state right after this movement.
	BalanceQuantity decimal.Decimal `db:"balance_quantity" json:"balanceQuantity"`
	BalanceUnitCost decimal.Decimal `db:"balance_unit_cost" json:"balanceUnitCost"`

	ConsumedLots []ConsumedLot `db:"-" json:"consumedLots,omitempty"`

	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	RecalculatedAt *time.Time `db:"recalculated_at" json:"recalculatedAt,omitempty"`
}

// Validate checks movement invariants.
func (m *Movement) Validate(_ context.Context) error {
	if !m.Kind.Valid() {
		return apperror.NewValidation("unknown movement kind").WithDetail("kind", m.Kind)
	}
	if !m.Quantity.IsPositive() {
		return apperror.NewValidation("movement quantity must be positive").WithDetail("movement_id", m.ID)
	}
	if m.UnitCost.IsNegative() {
		return apperror.NewValidation("movement unit cost must not be negative").WithDetail("movement_id", m.ID)
	}
	if len(m.ConsumedLots) > 0 {
		sum := decimal.Zero
		for _, c := range m.ConsumedLots {
			sum = sum.Add(c.Quantity)
		}
		if !sum.Equal(m.Quantity) {
			return apperror.NewValidation("consumed lot quantities do not add up to movement quantity").
				WithDetail("movement_id", m.ID).
				WithDetail("consumed", sum.String()).
				WithDetail("quantity", m.Quantity.String())
		}
	}
	return nil
}

// Less is the authoritative replay order: effective date, then id.
func (m *Movement) Less(other *Movement) bool {
	if !m.EffectiveDate.Equal(other.EffectiveDate) {
		return m.EffectiveDate.Before(other.EffectiveDate)
	}
	return id.Compare(m.ID, other.ID) < 0
}

// SignedQuantity returns quantity with sign: entries positive, consumption negative.
func (m *Movement) SignedQuantity() decimal.Decimal {
	if m.Kind.Consumes() {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// SignedTotal returns total cost with the same sign convention as SignedQuantity.
func (m *Movement) SignedTotal() decimal.Decimal {
	if m.Kind.Consumes() {
		return m.TotalCost.Neg()
	}
	return m.TotalCost
}

// CostsEqual reports whether the recomputable fields of m and other match.
func (m *Movement) CostsEqual(other *Movement) bool {
	if !m.UnitCost.Equal(other.UnitCost) || !m.TotalCost.Equal(other.TotalCost) ||
		!m.BalanceQuantity.Equal(other.BalanceQuantity) || !m.BalanceUnitCost.Equal(other.BalanceUnitCost) ||
		len(m.ConsumedLots) != len(other.ConsumedLots) {
		return false
	}
	for i := range m.ConsumedLots {
		a, b := m.ConsumedLots[i], other.ConsumedLots[i]
		if a.LotID != b.LotID || !a.Quantity.Equal(b.Quantity) || !a.UnitCost.Equal(b.UnitCost) {
			return false
		}
	}
	return true
}
