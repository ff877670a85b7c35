package costing

import (
	"github.com/shopspring/decimal"

	"kardex/internal/core/entity"
	"kardex/internal/core/types"
)

// FIFO consumes the oldest lots first at their own cost.
type FIFO struct{}

var _ Strategy = FIFO{}

// Method implements Strategy.
func (FIFO) Method() entity.CostingMethod { return entity.CostingFIFO }

// Consume reports one blended unit cost for the movement: the cost of the
// consumed slices divided by the quantity.
func (FIFO) Consume(lots []LotSnapshot, quantity decimal.Decimal, _ UnitState) (Consumption, error) {
	slices, total, err := drain(lots, quantity, func(l LotSnapshot) decimal.Decimal { return l.UnitCost })
	if err != nil {
		return Consumption{}, err
	}
	return Consumption{
		UnitCost:  types.Div(total, quantity),
		TotalCost: total,
		Lots:      slices,
	}, nil
}

// OnEntry keeps the unit's informational average in step with its value.
// FIFO pricing never reads it.
func (FIFO) OnEntry(current UnitState, incomingQuantity, incomingUnitCost decimal.Decimal) decimal.Decimal {
	return weightedAverage(current, incomingQuantity, incomingUnitCost)
}
