package stock

import (
	"sort"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
	"kardex/internal/domain/costing"
)

// Position is the working state of one stock unit while movements are
// applied to it. Values leave a Position already rounded to their persisted
// scale, so applying movements one by one and replaying them in a batch give
// the same numbers.
type Position struct {
	unit     *entity.StockUnit
	strategy costing.Strategy

	// available lots, oldest first
	lots    []*entity.Lot
	byID    map[id.ID]*entity.Lot
	touched []id.ID
	dirty   map[id.ID]bool
}

// NewPosition builds a position over unit and the lots it may consume.
// The unit is mutated in place.
func NewPosition(unit *entity.StockUnit, lots []entity.Lot) (*Position, error) {
	strategy, err := costing.For(unit.CostingMethod)
	if err != nil {
		return nil, err
	}
	p := &Position{
		unit:     unit,
		strategy: strategy,
		byID:     make(map[id.ID]*entity.Lot, len(lots)),
		dirty:    make(map[id.ID]bool),
	}
	for i := range lots {
		l := lots[i]
		p.lots = append(p.lots, &l)
		p.byID[l.ID] = &l
	}
	p.sortLots()
	return p, nil
}

// Unit returns the unit being mutated.
func (p *Position) Unit() *entity.StockUnit { return p.unit }

// Method returns the unit's costing method.
func (p *Position) Method() entity.CostingMethod { return p.strategy.Method() }

// State returns the running quantity and average cost.
func (p *Position) State() costing.UnitState {
	return costing.UnitState{Quantity: p.unit.CurrentQuantity, AverageCost: p.unit.CurrentAverageCost}
}

// Available returns the quantity held by the position's lots.
func (p *Position) Available() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range p.lots {
		if l.Active {
			sum = sum.Add(l.CurrentQuantity)
		}
	}
	return sum
}

// Receive adds a lot and recomputes the average cost.
func (p *Position) Receive(lot *entity.Lot) {
	avg := p.strategy.OnEntry(p.State(), lot.CurrentQuantity, lot.UnitCost)
	p.unit.CurrentAverageCost = types.RoundUnitCost(avg)
	p.unit.CurrentQuantity = types.RoundQuantity(p.unit.CurrentQuantity.Add(lot.CurrentQuantity))

	p.lots = append(p.lots, lot)
	p.byID[lot.ID] = lot
	p.sortLots()
	p.touch(lot.ID)
}

// Issue consumes quantity from the lots through the unit's strategy. The
// returned consumption carries persisted-scale values. Lots drained to zero
// are deactivated.
func (p *Position) Issue(quantity decimal.Decimal) (costing.Consumption, error) {
	snapshots := make([]costing.LotSnapshot, 0, len(p.lots))
	for _, l := range p.lots {
		if !l.Active || !l.CurrentQuantity.IsPositive() {
			continue
		}
		snapshots = append(snapshots, costing.LotSnapshot{
			LotID:     l.ID,
			EntryDate: l.EntryDate,
			Remaining: l.CurrentQuantity,
			UnitCost:  l.UnitCost,
		})
	}

	c, err := p.strategy.Consume(snapshots, quantity, p.State())
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeInsufficientStock {
			appErr.WithDetail("stock_unit_id", p.unit.ID.String())
		}
		return costing.Consumption{}, err
	}

	for i, slice := range c.Lots {
		lot := p.byID[slice.LotID]
		lot.CurrentQuantity = lot.CurrentQuantity.Sub(slice.Quantity)
		if !lot.CurrentQuantity.IsPositive() {
			lot.CurrentQuantity = decimal.Zero
			lot.Active = false
		}
		c.Lots[i].UnitCost = types.RoundUnitCost(slice.UnitCost)
		p.touch(lot.ID)
	}

	p.unit.CurrentQuantity = types.RoundQuantity(p.unit.CurrentQuantity.Sub(quantity))
	c.UnitCost = types.RoundUnitCost(c.UnitCost)
	c.TotalCost = types.RoundMoney(c.TotalCost)
	return c, nil
}

// Touched returns the lots changed since the position was built, in the
// order they were first changed.
func (p *Position) Touched() []entity.Lot {
	out := make([]entity.Lot, 0, len(p.touched))
	for _, lotID := range p.touched {
		out = append(out, *p.byID[lotID])
	}
	return out
}

func (p *Position) touch(lotID id.ID) {
	if !p.dirty[lotID] {
		p.dirty[lotID] = true
		p.touched = append(p.touched, lotID)
	}
}

func (p *Position) sortLots() {
	sort.SliceStable(p.lots, func(i, j int) bool { return p.lots[i].Less(p.lots[j]) })
}
