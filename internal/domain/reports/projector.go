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
	"kardex/internal/domain/registers/movement"
	"kardex/internal/domain/registers/stock"
	"kardex/pkg/logger"
)

// Projector builds kardex reports. It never writes.
type Projector struct {
	txm       tx.ReadOnlyManager
	stock     *stock.Ledger
	movements *movement.Ledger
	cache     OpeningCache
}

// NewProjector creates a projector. cache may be nil.
func NewProjector(txm tx.ReadOnlyManager, stockLedger *stock.Ledger, movements *movement.Ledger, cache OpeningCache) *Projector {
	return &Projector{txm: txm, stock: stockLedger, movements: movements, cache: cache}
}

// Project returns the kardex of unitID for movements dated within [from, to].
// All reads share one snapshot.
func (p *Projector) Project(ctx context.Context, unitID id.ID, from, to time.Time) (*Kardex, error) {
	if from.IsZero() || to.IsZero() {
		return nil, apperror.NewValidation("from and to are required")
	}
	if from.After(to) {
		return nil, apperror.NewValidation("from must not be after to").
			WithDetail("from", from.Format(time.DateOnly)).
			WithDetail("to", to.Format(time.DateOnly))
	}

	var k *Kardex
	err := p.txm.Snapshot(ctx, func(ctx context.Context) error {
		unit, err := p.stock.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		opening, err := p.opening(ctx, unit, from)
		if err != nil {
			return err
		}
		rows, err := p.movements.Range(ctx, unitID, from, to)
		if err != nil {
			return fmt.Errorf("load movements: %w", err)
		}
		k = fold(unit, from, to, opening, rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (p *Projector) opening(ctx context.Context, unit *entity.StockUnit, from time.Time) (movement.Totals, error) {
	key := OpeningKey{UnitID: unit.ID, From: from, Version: unit.Version}
	if p.cache != nil {
		totals, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			logger.Warn(ctx, "opening balance cache read failed", "stock_unit_id", unit.ID, "error", err)
		} else if ok {
			return totals, nil
		}
	}

	totals, err := p.movements.Totals(ctx, unit.ID, from)
	if err != nil {
		return movement.Totals{}, fmt.Errorf("opening balance: %w", err)
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, key, totals); err != nil {
			logger.Warn(ctx, "opening balance cache write failed", "stock_unit_id", unit.ID, "error", err)
		}
	}
	return totals, nil
}

func balanceOf(quantity, value decimal.Decimal) Balance {
	return Balance{
		Quantity: types.RoundQuantity(quantity),
		Value:    types.RoundMoney(value),
		UnitCost: types.RoundUnitCost(types.Div(value, quantity)),
	}
}

func fold(unit *entity.StockUnit, from, to time.Time, opening movement.Totals, movements []*entity.Movement) *Kardex {
	k := &Kardex{
		StockUnitID:   unit.ID,
		ProductID:     unit.ProductID,
		WarehouseID:   unit.WarehouseID,
		CostingMethod: unit.CostingMethod,
		From:          from,
		To:            to,
		Opening:       balanceOf(opening.Quantity, opening.Value),
		Rows:          make([]Row, 0, len(movements)),
		TotalIn:       decimal.Zero,
		TotalOut:      decimal.Zero,
	}

	quantity, value := opening.Quantity, opening.Value
	for _, m := range movements {
		quantity = quantity.Add(m.SignedQuantity())
		value = value.Add(m.SignedTotal())

		row := Row{
			MovementID:     m.ID,
			EffectiveDate:  m.EffectiveDate,
			Kind:           m.Kind,
			DocumentID:     m.DocumentID,
			QuantityIn:     decimal.Zero,
			QuantityOut:    decimal.Zero,
			UnitCost:       m.UnitCost,
			TotalCost:      m.TotalCost,
			Balance:        balanceOf(quantity, value),
			RecalculatedAt: m.RecalculatedAt,
		}
		if m.Kind.Consumes() {
			row.QuantityOut = m.Quantity
			k.TotalOut = k.TotalOut.Add(m.Quantity)
			if unit.CostingMethod == entity.CostingFIFO {
				row.Lots = m.ConsumedLots
			}
		} else {
			row.QuantityIn = m.Quantity
			k.TotalIn = k.TotalIn.Add(m.Quantity)
		}
		k.Rows = append(k.Rows, row)
	}
	k.Closing = balanceOf(quantity, value)
	return k
}
