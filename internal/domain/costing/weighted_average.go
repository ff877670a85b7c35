package costing

import (
	"github.com/shopspring/decimal"

	"kardex/internal/core/entity"
)

// WeightedAverage values every unit of stock at one blended cost.
type WeightedAverage struct{}

var _ Strategy = WeightedAverage{}

// Method implements Strategy.
func (WeightedAverage) Method() entity.CostingMethod { return entity.CostingWeightedAverage }

// Consume prices the whole quantity at the current average. Lots are still
// drained oldest first so physical quantities stay correct; every slice
// carries the blended cost.
func (WeightedAverage) Consume(lots []LotSnapshot, quantity decimal.Decimal, current UnitState) (Consumption, error) {
	avg := current.AverageCost
	slices, _, err := drain(lots, quantity, func(LotSnapshot) decimal.Decimal { return avg })
	if err != nil {
		return Consumption{}, err
	}
	return Consumption{
		UnitCost:  avg,
		TotalCost: quantity.Mul(avg),
		Lots:      slices,
	}, nil
}

// OnEntry implements Strategy.
func (WeightedAverage) OnEntry(current UnitState, incomingQuantity, incomingUnitCost decimal.Decimal) decimal.Decimal {
	return weightedAverage(current, incomingQuantity, incomingUnitCost)
}
