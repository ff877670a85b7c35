package stock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/registers/stock"
)

func TestPosition_ReceiveAndIssue(t *testing.T) {
	unit := entity.NewStockUnit(id.New(), id.New(), entity.CostingWeightedAverage)
	pos, err := stock.NewPosition(unit, nil)
	require.NoError(t, err)

	a := stock.NewLot(unit.ID, id.New(), day(1), dec("3"), dec("1"), nil)
	b := stock.NewLot(unit.ID, id.New(), day(2), dec("4"), dec("2"), nil)
	a.Active, b.Active = true, true
	pos.Receive(a)
	pos.Receive(b)

	// 11/7 persisted at 4 places
	assert.Equal(t, "1.5714", unit.CurrentAverageCost.StringFixed(4))
	assert.Equal(t, "7.0000", pos.Available().StringFixed(4))

	c, err := pos.Issue(dec("3"))
	require.NoError(t, err)
	assert.Equal(t, "1.5714", c.UnitCost.StringFixed(4))
	assert.Equal(t, "4.71", c.TotalCost.StringFixed(2))
	assert.Equal(t, "4.0000", unit.CurrentQuantity.StringFixed(4))
	// average unchanged by exits
	assert.Equal(t, "1.5714", unit.CurrentAverageCost.StringFixed(4))

	touched := pos.Touched()
	require.Len(t, touched, 2)
	assert.Equal(t, a.ID, touched[0].ID)
	assert.False(t, touched[0].Active)
}

func TestNewPosition_UnknownMethod(t *testing.T) {
	unit := entity.NewStockUnit(id.New(), id.New(), "lifo")
	_, err := stock.NewPosition(unit, nil)
	assert.Error(t, err)
}
