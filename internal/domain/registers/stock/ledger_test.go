package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/tx"
	"kardex/internal/core/types"
	"kardex/internal/domain/registers/stock"
	"kardex/internal/infrastructure/storage/memory"
)

func day(d int) time.Time {
	return time.Date(2025, time.January, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) types.Quantity { return types.MustDecimal(s) }

type fixture struct {
	store     *memory.Store
	ledger    *stock.Ledger
	product   id.ID
	warehouse id.ID
}

func newFixture() *fixture {
	s := memory.New()
	f := &fixture{store: s, product: id.New(), warehouse: id.New()}
	s.AddProduct(f.product)
	s.AddWarehouse(f.warehouse)
	f.ledger = stock.NewLedger(s, s.Products(), s.Warehouses())
	return f
}

func TestEnsureUnit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	u, err := f.ledger.EnsureUnit(ctx, f.product, f.warehouse, "")
	require.NoError(t, err)
	assert.Equal(t, entity.CostingWeightedAverage, u.CostingMethod)
	assert.True(t, u.CurrentQuantity.IsZero())

	again, err := f.ledger.EnsureUnit(ctx, f.product, f.warehouse, entity.CostingWeightedAverage)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	_, err = f.ledger.EnsureUnit(ctx, f.product, f.warehouse, entity.CostingFIFO)
	assert.True(t, apperror.IsCode(err, apperror.CodeBusinessRule))
}

func TestEnsureUnit_MissingCatalogEntries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.ledger.EnsureUnit(ctx, id.New(), f.warehouse, "")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeStockUnitNotFound, appErr.Code)
	assert.Equal(t, "product", appErr.Details["missing"])

	_, err = f.ledger.EnsureUnit(ctx, f.product, id.New(), "")
	appErr, ok = apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "warehouse", appErr.Details["missing"])
}

func TestLockUnit_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.ledger.LockUnit(context.Background(), id.New())
	assert.True(t, apperror.IsCode(err, apperror.CodeStockUnitNotFound))
}

func TestCreateLot_WeightedAverage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, err := f.ledger.EnsureUnit(ctx, f.product, f.warehouse, entity.CostingWeightedAverage)
	require.NoError(t, err)

	_, err = f.ledger.CreateLot(ctx, u, id.New(), day(1), dec("10"), dec("8"), nil)
	require.NoError(t, err)
	_, err = f.ledger.CreateLot(ctx, u, id.New(), day(2), dec("10"), dec("12"), nil)
	require.NoError(t, err)

	stored, err := f.ledger.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.0000", stored.CurrentQuantity.StringFixed(4))
	assert.Equal(t, "10.0000", stored.CurrentAverageCost.StringFixed(4))
	assert.Equal(t, u.Version, stored.Version)
	assert.Len(t, f.store.Lots(u.ID), 2)
}

func TestConsume_FIFOScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, err := f.ledger.EnsureUnit(ctx, f.product, f.warehouse, entity.CostingFIFO)
	require.NoError(t, err)

	l1, err := f.ledger.CreateLot(ctx, u, id.New(), day(1), dec("5"), dec("10"), nil)
	require.NoError(t, err)
	l2, err := f.ledger.CreateLot(ctx, u, id.New(), day(5), dec("5"), dec("12"), nil)
	require.NoError(t, err)

	c, err := f.ledger.Consume(ctx, u, dec("7"), day(10))
	require.NoError(t, err)
	assert.Equal(t, "10.5714", c.UnitCost.StringFixed(4))
	assert.Equal(t, "74.00", c.TotalCost.StringFixed(2))
	require.Len(t, c.Lots, 2)
	assert.Equal(t, l1.ID, c.Lots[0].LotID)
	assert.Equal(t, l2.ID, c.Lots[1].LotID)

	lots := f.store.Lots(u.ID)
	require.Len(t, lots, 2)
	assert.True(t, lots[0].CurrentQuantity.IsZero())
	assert.False(t, lots[0].Active)
	assert.Equal(t, "3.0000", lots[1].CurrentQuantity.StringFixed(4))
	assert.True(t, lots[1].Active)

	stored, err := f.ledger.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "3.0000", stored.CurrentQuantity.StringFixed(4))
}

func TestConsume_IgnoresLotsEnteredLater(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, err := f.ledger.EnsureUnit(ctx, f.product, f.warehouse, entity.CostingFIFO)
	require.NoError(t, err)

	_, err = f.ledger.CreateLot(ctx, u, id.New(), day(5), dec("5"), dec("10"), nil)
	require.NoError(t, err)

	_, err = f.ledger.Consume(ctx, u, dec("1"), day(4))
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))
}

func TestConsume_InsufficientStockRollsBack(t *testing.T) {
	f := newFixture()
	fake := &tx.Fake{}
	ctx := context.Background()
	u, err := f.ledger.EnsureUnit(ctx, f.product, f.warehouse, entity.CostingWeightedAverage)
	require.NoError(t, err)
	_, err = f.ledger.CreateLot(ctx, u, id.New(), day(1), dec("4"), dec("2"), nil)
	require.NoError(t, err)

	err = fake.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := f.ledger.LockUnit(ctx, u.ID)
		if err != nil {
			return err
		}
		if _, err := f.ledger.Consume(ctx, unit, dec("3"), day(2)); err != nil {
			return err
		}
		_, err = f.ledger.Consume(ctx, unit, dec("3"), day(3))
		return err
	})

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, u.ID.String(), appErr.Details["stock_unit_id"])
	assert.Equal(t, 1, fake.Rollbacks)

	// first consumption undone with the transaction
	stored, err := f.ledger.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "4.0000", stored.CurrentQuantity.StringFixed(4))
	assert.Equal(t, "4.0000", f.store.Lots(u.ID)[0].CurrentQuantity.StringFixed(4))
}
