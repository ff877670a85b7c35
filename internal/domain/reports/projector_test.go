package reports_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/tx"
	"kardex/internal/core/types"
	"kardex/internal/domain/registers/movement"
	"kardex/internal/domain/registers/stock"
	"kardex/internal/domain/reports"
	"kardex/internal/infrastructure/storage/memory"
)

func day(d int) time.Time {
	return time.Date(2025, time.January, d, 0, 0, 0, 0, time.UTC)
}

type cacheSpy struct {
	data map[reports.OpeningKey]movement.Totals
	gets int
	sets int
	err  error
}

func (c *cacheSpy) Get(_ context.Context, key reports.OpeningKey) (movement.Totals, bool, error) {
	c.gets++
	if c.err != nil {
		return movement.Totals{}, false, c.err
	}
	t, ok := c.data[key]
	return t, ok, nil
}

func (c *cacheSpy) Set(_ context.Context, key reports.OpeningKey, totals movement.Totals) error {
	c.sets++
	if c.data == nil {
		c.data = make(map[reports.OpeningKey]movement.Totals)
	}
	c.data[key] = totals
	return nil
}

type fixture struct {
	projector *reports.Projector
	movements *movement.Ledger
	unit      *entity.StockUnit
}

func setup(t *testing.T, method entity.CostingMethod, cache reports.OpeningCache) fixture {
	t.Helper()
	s := memory.New()
	product, warehouse := id.New(), id.New()
	s.AddProduct(product)
	s.AddWarehouse(warehouse)

	stockLedger := stock.NewLedger(s, s.Products(), s.Warehouses())
	movements := movement.NewLedger(s.Movements(), stockLedger)
	unit, err := stockLedger.EnsureUnit(context.Background(), product, warehouse, method)
	require.NoError(t, err)

	return fixture{
		projector: reports.NewProjector(&tx.Fake{}, stockLedger, movements, cache),
		movements: movements,
		unit:      unit,
	}
}

func (f fixture) record(t *testing.T, kind entity.MovementKind, d int, qty, cost string) {
	t.Helper()
	draft := movement.Draft{
		StockUnitID:   f.unit.ID,
		Kind:          kind,
		EffectiveDate: day(d),
		Quantity:      types.MustDecimal(qty),
	}
	if cost != "" {
		draft.UnitCost = types.MustDecimal(cost)
	}
	_, err := f.movements.Record(context.Background(), draft)
	require.NoError(t, err)
}

func TestProject_FIFO(t *testing.T) {
	f := setup(t, entity.CostingFIFO, nil)
	f.record(t, entity.MovementEntry, 1, "5", "10")
	f.record(t, entity.MovementEntry, 5, "5", "12")
	f.record(t, entity.MovementExit, 10, "7", "")

	k, err := f.projector.Project(context.Background(), f.unit.ID, day(5), day(31))
	require.NoError(t, err)

	assert.Equal(t, "5.0000", k.Opening.Quantity.StringFixed(4))
	assert.Equal(t, "50.00", k.Opening.Value.StringFixed(2))
	assert.Equal(t, "10.0000", k.Opening.UnitCost.StringFixed(4))

	require.Len(t, k.Rows, 2)
	assert.Equal(t, "110.00", k.Rows[0].Balance.Value.StringFixed(2))
	assert.Equal(t, "11.0000", k.Rows[0].Balance.UnitCost.StringFixed(4))
	assert.Empty(t, k.Rows[0].Lots)

	out := k.Rows[1]
	assert.Equal(t, "7", out.QuantityOut.String())
	assert.True(t, out.QuantityIn.IsZero())
	assert.Equal(t, "74.00", out.TotalCost.StringFixed(2))
	require.Len(t, out.Lots, 2)
	assert.Equal(t, "5", out.Lots[0].Quantity.String())
	assert.Equal(t, "2", out.Lots[1].Quantity.String())

	assert.Equal(t, "3.0000", k.Closing.Quantity.StringFixed(4))
	assert.Equal(t, "36.00", k.Closing.Value.StringFixed(2))
	assert.Equal(t, "12.0000", k.Closing.UnitCost.StringFixed(4))
	assert.Equal(t, "5", k.TotalIn.String())
	assert.Equal(t, "7", k.TotalOut.String())
}

func TestProject_WeightedAverageHidesLots(t *testing.T) {
	f := setup(t, entity.CostingWeightedAverage, nil)
	f.record(t, entity.MovementEntry, 1, "10", "5")
	f.record(t, entity.MovementEntry, 2, "10", "7")
	f.record(t, entity.MovementAdjustment, 3, "20", "")

	k, err := f.projector.Project(context.Background(), f.unit.ID, day(1), day(3))
	require.NoError(t, err)
	require.Len(t, k.Rows, 3)
	assert.Empty(t, k.Rows[2].Lots)
	assert.Equal(t, "6.0000", k.Rows[2].UnitCost.StringFixed(4))

	// empty balance has zero unit cost
	assert.True(t, k.Closing.Quantity.IsZero())
	assert.True(t, k.Closing.UnitCost.IsZero())
}

func TestProject_OpeningCache(t *testing.T) {
	cache := &cacheSpy{}
	f := setup(t, entity.CostingWeightedAverage, cache)
	f.record(t, entity.MovementEntry, 1, "10", "5")
	f.record(t, entity.MovementExit, 10, "4", "")

	ctx := context.Background()
	first, err := f.projector.Project(ctx, f.unit.ID, day(5), day(31))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	second, err := f.projector.Project(ctx, f.unit.ID, day(5), day(31))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 2, cache.gets)
	assert.True(t, first.Opening.Value.Equal(second.Opening.Value))

	// a new movement bumps the unit version
	f.record(t, entity.MovementEntry, 2, "1", "5")
	third, err := f.projector.Project(ctx, f.unit.ID, day(5), day(31))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.sets)
	assert.Equal(t, "11.0000", third.Opening.Quantity.StringFixed(4))
}

func TestProject_CacheErrorsAreIgnored(t *testing.T) {
	f := setup(t, entity.CostingWeightedAverage, &cacheSpy{err: errors.New("redis down")})
	f.record(t, entity.MovementEntry, 1, "10", "5")

	k, err := f.projector.Project(context.Background(), f.unit.ID, day(2), day(3))
	require.NoError(t, err)
	assert.Equal(t, "50.00", k.Opening.Value.StringFixed(2))
	assert.Empty(t, k.Rows)
}

func TestProject_Validation(t *testing.T) {
	f := setup(t, entity.CostingFIFO, nil)

	_, err := f.projector.Project(context.Background(), f.unit.ID, day(5), day(1))
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = f.projector.Project(context.Background(), id.New(), day(1), day(5))
	assert.True(t, apperror.IsCode(err, apperror.CodeStockUnitNotFound))
}
