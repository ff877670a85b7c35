// Package costing implements the valuation policies of a stock unit.
//
// Strategies are pure: they receive a snapshot of lots and the unit state and
// return what a consumption or an entry costs. They never touch storage and
// never round; rounding happens when the caller persists the result.
package costing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
)

// LotSnapshot is the part of a lot a strategy needs.
type LotSnapshot struct {
	LotID     id.ID
	EntryDate time.Time
	Remaining decimal.Decimal
	UnitCost  decimal.Decimal
}

// UnitState is the running quantity and average cost of a stock unit.
type UnitState struct {
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
}

// Value returns quantity × average cost.
func (s UnitState) Value() decimal.Decimal {
	return s.Quantity.Mul(s.AverageCost)
}

// Consumption is the outcome of drawing a quantity from a lot set.
type Consumption struct {
	// UnitCost is the single blended cost assigned to the movement.
	UnitCost decimal.Decimal
	// TotalCost is the unrounded value of the consumed quantity.
	TotalCost decimal.Decimal
	// Lots are the physical slices drawn, oldest first.
	Lots []entity.ConsumedLot
}

// Strategy is a valuation policy.
type Strategy interface {
	Method() entity.CostingMethod

	// Consume draws quantity from lots. lots may be passed in any order; they
	// are walked by (EntryDate, LotID). Fails with INSUFFICIENT_STOCK when the
	// lots hold less than quantity.
	Consume(lots []LotSnapshot, quantity decimal.Decimal, current UnitState) (Consumption, error)

	// OnEntry returns the unit average cost after receiving incomingQuantity at
	// incomingUnitCost.
	OnEntry(current UnitState, incomingQuantity, incomingUnitCost decimal.Decimal) decimal.Decimal
}

// For returns the strategy configured for a stock unit.
func For(method entity.CostingMethod) (Strategy, error) {
	switch method {
	case entity.CostingWeightedAverage:
		return WeightedAverage{}, nil
	case entity.CostingFIFO:
		return FIFO{}, nil
	default:
		return nil, apperror.NewValidation("unknown costing method").WithDetail("costing_method", method)
	}
}

// weightedAverage is (q·c + iq·ic)/(q+iq), zero when the result quantity is zero.
func weightedAverage(current UnitState, incomingQuantity, incomingUnitCost decimal.Decimal) decimal.Decimal {
	total := current.Quantity.Add(incomingQuantity)
	if total.IsZero() {
		return decimal.Zero
	}
	value := current.Value().Add(incomingQuantity.Mul(incomingUnitCost))
	return types.Div(value, total)
}

// ordered returns a copy of lots sorted oldest first.
func ordered(lots []LotSnapshot) []LotSnapshot {
	out := make([]LotSnapshot, 0, len(lots))
	for _, l := range lots {
		if l.Remaining.IsPositive() {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.Before(out[j].EntryDate)
		}
		return id.Compare(out[i].LotID, out[j].LotID) < 0
	})
	return out
}

// drain walks lots oldest first and takes quantity. costOf decides the cost
// carried by each slice.
func drain(lots []LotSnapshot, quantity decimal.Decimal, costOf func(LotSnapshot) decimal.Decimal) ([]entity.ConsumedLot, decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return nil, decimal.Zero, apperror.NewValidation("consumed quantity must be positive").
			WithDetail("quantity", quantity.String())
	}

	remaining := quantity
	total := decimal.Zero
	available := decimal.Zero
	var slices []entity.ConsumedLot

	for _, lot := range ordered(lots) {
		available = available.Add(lot.Remaining)
		if !remaining.IsPositive() {
			continue
		}
		take := types.Min(remaining, lot.Remaining)
		cost := costOf(lot)
		slices = append(slices, entity.ConsumedLot{LotID: lot.LotID, Quantity: take, UnitCost: cost})
		total = total.Add(take.Mul(cost))
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		return nil, decimal.Zero, apperror.NewInsufficientStock("", quantity, available)
	}
	return slices, total, nil
}
