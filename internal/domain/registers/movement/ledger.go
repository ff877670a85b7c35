package movement

import (
	"context"
	"fmt"
	"time"

	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
	"kardex/internal/domain/registers/stock"
	"kardex/pkg/logger"
)

// Ledger records movements and hands out the replay order.
// Transactions are managed by the caller.
type Ledger struct {
	repo  Repository
	stock *stock.Ledger
}

// NewLedger creates a movement ledger over the stock ledger.
func NewLedger(repo Repository, stockLedger *stock.Ledger) *Ledger {
	return &Ledger{repo: repo, stock: stockLedger}
}

// Record applies a movement dated at or after every existing movement of
// its unit: ENTRY creates a lot, EXIT and ADJUSTMENT consume. The unit is
// locked, costs are computed, and movement and unit state are persisted in
// the caller's transaction.
func (l *Ledger) Record(ctx context.Context, d Draft) (*entity.Movement, error) {
	d.Quantity = types.RoundQuantity(d.Quantity)
	if err := d.Validate(ctx); err != nil {
		return nil, err
	}

	unit, err := l.stock.LockUnit(ctx, d.StockUnitID)
	if err != nil {
		return nil, err
	}

	m := d.toMovement()
	if d.Kind.Consumes() {
		c, err := l.stock.Consume(ctx, unit, d.Quantity, d.EffectiveDate)
		if err != nil {
			return nil, err
		}
		m.UnitCost = c.UnitCost
		m.TotalCost = c.TotalCost
		m.ConsumedLots = c.Lots
	} else {
		lot, err := l.stock.CreateLot(ctx, unit, m.ID, d.EffectiveDate, d.Quantity, d.UnitCost, d.ExpirationDate)
		if err != nil {
			return nil, err
		}
		m.UnitCost = lot.UnitCost
		m.TotalCost = types.RoundMoney(d.Quantity.Mul(lot.UnitCost))
	}
	m.BalanceQuantity = unit.CurrentQuantity
	m.BalanceUnitCost = unit.CurrentAverageCost

	if err := m.Validate(ctx); err != nil {
		return nil, err
	}
	if err := l.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create movement: %w", err)
	}

	logger.Debug(ctx, "movement recorded",
		"movement_id", m.ID,
		"stock_unit_id", m.StockUnitID,
		"kind", m.Kind,
		"quantity", m.Quantity.String(),
		"unit_cost", m.UnitCost.String(),
	)
	return m, nil
}

// Insert stores a movement dated before existing movements of its unit with
// zero costs. An ENTRY also stores its lot, inactive. A cascade from the
// movement's date prices it; until then the unit state is unchanged. The
// caller holds the unit lock.
func (l *Ledger) Insert(ctx context.Context, d Draft) (*entity.Movement, error) {
	d.Quantity = types.RoundQuantity(d.Quantity)
	if err := d.Validate(ctx); err != nil {
		return nil, err
	}

	m := d.toMovement()
	if d.Kind == entity.MovementEntry {
		// lot before movement: stock_lots.movement_id is checked at commit
		lot := stock.NewLot(d.StockUnitID, m.ID, d.EffectiveDate, d.Quantity, d.UnitCost, d.ExpirationDate)
		if err := l.stock.RegisterLot(ctx, lot); err != nil {
			return nil, err
		}
		m.UnitCost = lot.UnitCost
		m.TotalCost = types.RoundMoney(d.Quantity.Mul(lot.UnitCost))
	}

	if err := l.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create movement: %w", err)
	}

	logger.Debug(ctx, "retroactive movement inserted",
		"movement_id", m.ID,
		"stock_unit_id", m.StockUnitID,
		"kind", m.Kind,
		"effective_date", m.EffectiveDate,
	)
	return m, nil
}

// Get returns one movement.
func (l *Ledger) Get(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	return l.repo.Get(ctx, movementID)
}

// FindAfter returns every movement of the unit dated on or after date in
// replay order: (effective_date, id) ascending.
func (l *Ledger) FindAfter(ctx context.Context, unitID id.ID, date time.Time) ([]*entity.Movement, error) {
	return l.repo.FindFrom(ctx, unitID, date)
}

// Range returns movements dated within [from, to] in replay order.
func (l *Ledger) Range(ctx context.Context, unitID id.ID, from, to time.Time) ([]*entity.Movement, error) {
	return l.repo.Range(ctx, unitID, from, to)
}

// LastBefore returns the last movement dated before date, nil if none.
func (l *Ledger) LastBefore(ctx context.Context, unitID id.ID, date time.Time) (*entity.Movement, error) {
	return l.repo.LastBefore(ctx, unitID, date)
}

// IsRetroactive reports whether a movement dated date would precede
// movements already recorded for the unit.
func (l *Ledger) IsRetroactive(ctx context.Context, unitID id.ID, date time.Time) (bool, error) {
	return l.repo.ExistsAfter(ctx, unitID, date)
}

// UpdateCosts persists recomputed costs. Only the recalculator calls it.
func (l *Ledger) UpdateCosts(ctx context.Context, movements []*entity.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	for _, m := range movements {
		if err := m.Validate(ctx); err != nil {
			return err
		}
	}
	if err := l.repo.UpdateCosts(ctx, movements); err != nil {
		return fmt.Errorf("update movement costs: %w", err)
	}
	return nil
}

// Totals aggregates movements dated before date.
func (l *Ledger) Totals(ctx context.Context, unitID id.ID, before time.Time) (Totals, error) {
	return l.repo.Totals(ctx, unitID, before)
}
