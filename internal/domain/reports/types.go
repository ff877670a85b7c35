// Package reports projects the kardex of a stock unit: the opening balance
// and one row per movement with running balances.
package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/entity"
	"kardex/internal/core/id"
)

// Balance is a running quantity and value.
type Balance struct {
	Quantity decimal.Decimal `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
	UnitCost decimal.Decimal `json:"unitCost"`
}

// Row is one movement of the kardex.
type Row struct {
	MovementID    id.ID               `json:"movementId"`
	EffectiveDate time.Time           `json:"effectiveDate"`
	Kind          entity.MovementKind `json:"kind"`
	DocumentID    *id.ID              `json:"documentId,omitempty"`

	QuantityIn  decimal.Decimal `json:"quantityIn"`
	QuantityOut decimal.Decimal `json:"quantityOut"`
	UnitCost    decimal.Decimal `json:"unitCost"`
	TotalCost   decimal.Decimal `json:"totalCost"`

	// Balance after the movement.
	Balance Balance `json:"balance"`

	// Lots drawn by a FIFO exit or adjustment, as stored.
	Lots []entity.ConsumedLot `json:"lots,omitempty"`

	RecalculatedAt *time.Time `json:"recalculatedAt,omitempty"`
}

// Kardex is the report of one stock unit over [From, To].
type Kardex struct {
	StockUnitID   id.ID                `json:"stockUnitId"`
	ProductID     id.ID                `json:"productId"`
	WarehouseID   id.ID                `json:"warehouseId"`
	CostingMethod entity.CostingMethod `json:"costingMethod"`
	From          time.Time            `json:"from"`
	To            time.Time            `json:"to"`

	Opening Balance `json:"opening"`
	Rows    []Row   `json:"rows"`
	Closing Balance `json:"closing"`

	TotalIn  decimal.Decimal `json:"totalIn"`
	TotalOut decimal.Decimal `json:"totalOut"`
}
