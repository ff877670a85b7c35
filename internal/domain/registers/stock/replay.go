package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
)

// Replay is a Position rebuilt as of a date. Lots entered before the date
// are available with the quantities they had then; lots entered on or after
// it wait until their entry movement is replayed.
type Replay struct {
	*Position

	from    time.Time
	pending map[id.ID]*entity.Lot // by entry movement id
	reset   map[id.ID]bool
}

// ResetAndReplay restores the lots of unit to their state as of from and
// zeroes the unit's derived fields. The unit must be locked. Its quantity is
// then the quantity of the restored lots; its average cost is set by Seed.
func (l *Ledger) ResetAndReplay(ctx context.Context, unit *entity.StockUnit, from time.Time) (*Replay, error) {
	restored, err := l.repo.RestoreConsumedFrom(ctx, unit.ID, from)
	if err != nil {
		return nil, fmt.Errorf("restore consumed lots: %w", err)
	}
	reset, err := l.repo.ResetLotsFrom(ctx, unit.ID, from)
	if err != nil {
		return nil, fmt.Errorf("reset lots: %w", err)
	}
	lots, err := l.repo.ActiveLots(ctx, unit.ID)
	if err != nil {
		return nil, fmt.Errorf("load lots: %w", err)
	}

	unit.CurrentQuantity = decimal.Zero
	unit.CurrentAverageCost = decimal.Zero

	var available []entity.Lot
	pending := make(map[id.ID]*entity.Lot)
	for i := range lots {
		lot := lots[i]
		if lot.EntryDate.Before(from) {
			available = append(available, lot)
			continue
		}
		pending[lot.MovementID] = &lot
	}

	pos, err := NewPosition(unit, available)
	if err != nil {
		return nil, err
	}
	unit.CurrentQuantity = pos.Available()

	r := &Replay{
		Position: pos,
		from:     from,
		pending:  pending,
		reset:    make(map[id.ID]bool, len(restored)+len(reset)),
	}
	for _, lotID := range restored {
		r.reset[lotID] = true
	}
	for _, lotID := range reset {
		r.reset[lotID] = true
	}
	return r, nil
}

// Seed sets the average cost the fold starts from.
func (r *Replay) Seed(averageCost decimal.Decimal) {
	r.unit.CurrentAverageCost = averageCost
}

// Enter activates the lot created by an ENTRY movement.
func (r *Replay) Enter(movementID id.ID) (*entity.Lot, error) {
	lot, ok := r.pending[movementID]
	if !ok {
		return nil, apperror.NewLotNotFound(nil).
			WithDetail("movement_id", movementID).
			WithDetail("stock_unit_id", r.unit.ID)
	}
	delete(r.pending, movementID)

	lot.CurrentQuantity = lot.InitialQuantity
	lot.Active = true
	r.Receive(lot)
	return lot, nil
}

// LotsUpdated counts distinct lots reset, restored or changed by the fold.
func (r *Replay) LotsUpdated() int {
	n := len(r.reset)
	for _, lotID := range r.touched {
		if !r.reset[lotID] {
			n++
		}
	}
	return n
}

// SaveReplay persists the lots and unit state reached by a replay fold.
func (l *Ledger) SaveReplay(ctx context.Context, r *Replay) error {
	// a lot whose entry movement was not replayed would stay full and active
	for movementID := range r.pending {
		return apperror.NewLotNotFound(nil).
			WithDetail("movement_id", movementID).
			WithDetail("stock_unit_id", r.unit.ID).
			WithDetail("reason", "entry movement not replayed")
	}
	if err := l.repo.SaveLots(ctx, r.Touched()); err != nil {
		return fmt.Errorf("save replayed lots: %w", err)
	}
	if err := l.repo.SaveUnit(ctx, r.unit); err != nil {
		return fmt.Errorf("save stock unit: %w", err)
	}
	return nil
}
