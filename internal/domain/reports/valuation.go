package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/tx"
	"kardex/internal/core/types"
)

// ValuationFilter selects units for a valuation report.
type ValuationFilter struct {
	AsOf         time.Time
	WarehouseIDs []id.ID
	ProductIDs   []id.ID
	ExcludeZero  bool
}

// ValuationItem is the balance of one unit at the report date.
type ValuationItem struct {
	StockUnitID   id.ID                `db:"stock_unit_id" json:"stockUnitId"`
	ProductID     id.ID                `db:"product_id" json:"productId"`
	ProductName   string               `db:"product_name" json:"productName"`
	WarehouseID   id.ID                `db:"warehouse_id" json:"warehouseId"`
	WarehouseName string               `db:"warehouse_name" json:"warehouseName"`
	CostingMethod entity.CostingMethod `db:"costing_method" json:"costingMethod"`
	Quantity      decimal.Decimal      `db:"quantity" json:"quantity"`
	Value         decimal.Decimal      `db:"value" json:"value"`
	UnitCost      decimal.Decimal      `db:"-" json:"unitCost"`
}

// Valuation is a stock valuation report.
type Valuation struct {
	AsOf          time.Time       `json:"asOf"`
	Items         []ValuationItem `json:"items"`
	TotalItems    int             `json:"totalItems"`
	TotalQuantity decimal.Decimal `json:"totalQuantity"`
	TotalValue    decimal.Decimal `json:"totalValue"`
}

// Valuator builds stock valuation reports.
type Valuator struct {
	txm  tx.ReadOnlyManager
	repo ValuationRepository
}

// NewValuator creates a valuator.
func NewValuator(txm tx.ReadOnlyManager, repo ValuationRepository) *Valuator {
	return &Valuator{txm: txm, repo: repo}
}

// Valuate returns balances of every matching unit as of filter.AsOf.
// A zero AsOf means today.
func (v *Valuator) Valuate(ctx context.Context, filter ValuationFilter) (*Valuation, error) {
	if filter.AsOf.IsZero() {
		filter.AsOf = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if filter.AsOf.After(time.Now().UTC().AddDate(1, 0, 0)) {
		return nil, apperror.NewValidation("as_of is too far in the future").
			WithDetail("as_of", filter.AsOf.Format(time.DateOnly))
	}

	var items []ValuationItem
	err := v.txm.Snapshot(ctx, func(ctx context.Context) error {
		var err error
		items, err = v.repo.StockValuation(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stock valuation: %w", err)
	}

	report := &Valuation{
		AsOf:          filter.AsOf,
		Items:         make([]ValuationItem, 0, len(items)),
		TotalQuantity: decimal.Zero,
		TotalValue:    decimal.Zero,
	}
	for _, item := range items {
		if filter.ExcludeZero && item.Quantity.IsZero() {
			continue
		}
		item.Quantity = types.RoundQuantity(item.Quantity)
		item.Value = types.RoundMoney(item.Value)
		item.UnitCost = types.RoundUnitCost(types.Div(item.Value, item.Quantity))
		report.Items = append(report.Items, item)
		report.TotalQuantity = report.TotalQuantity.Add(item.Quantity)
		report.TotalValue = report.TotalValue.Add(item.Value)
	}
	report.TotalItems = len(report.Items)
	return report, nil
}
