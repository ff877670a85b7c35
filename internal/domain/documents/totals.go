package documents

import (
	"github.com/shopspring/decimal"

	"kardex/internal/core/id"
	"kardex/internal/core/types"
)

// MergeLines overlays updates on existing line costs by movement id and
// returns the merged set in a stable order: existing lines first, new ones
// appended in the order given.
func MergeLines(existing, updates []LineCost) []LineCost {
	index := make(map[id.ID]int, len(existing))
	merged := make([]LineCost, 0, len(existing)+len(updates))
	for _, l := range existing {
		index[l.MovementID] = len(merged)
		merged = append(merged, l)
	}
	for _, u := range updates {
		if i, ok := index[u.MovementID]; ok {
			merged[i].Cost = u.Cost
			continue
		}
		index[u.MovementID] = len(merged)
		merged = append(merged, u)
	}
	return merged
}

// Subtotal sums line costs.
func Subtotal(lines []LineCost) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Cost)
	}
	return types.RoundMoney(sum)
}

// Total applies the tax ratio to a subtotal.
func Total(subtotal, taxRatio decimal.Decimal) decimal.Decimal {
	if taxRatio.IsZero() {
		taxRatio = decimal.NewFromInt(1)
	}
	return types.RoundMoney(subtotal.Mul(taxRatio))
}
