package reports

import (
	"context"
	"time"

	"kardex/internal/core/id"
	"kardex/internal/domain/registers/movement"
)

// OpeningKey identifies a cached opening balance. Version is the unit's
// version, so any mutation of the unit misses the cache.
type OpeningKey struct {
	UnitID  id.ID
	From    time.Time
	Version int64
}

// OpeningCache stores opening balances. Get returns ok=false on a miss.
// Errors are logged by the projector and never fail a report.
type OpeningCache interface {
	Get(ctx context.Context, key OpeningKey) (movement.Totals, bool, error)
	Set(ctx context.Context, key OpeningKey, totals movement.Totals) error
}

// ValuationRepository aggregates balances of many units at once.
type ValuationRepository interface {
	// StockValuation returns one item per unit matching filter, balances
	// summed over movements dated on or before filter.AsOf.
	StockValuation(ctx context.Context, filter ValuationFilter) ([]ValuationItem, error)
}
