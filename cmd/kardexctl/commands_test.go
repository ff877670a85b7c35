package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/reports"
)

func TestParseRecalc(t *testing.T) {
	owner, unit := id.New(), id.New()

	a, err := parseRecalc([]string{"--owner", owner.String(), "--unit", unit.String(), "--from", "2025-01-31"})
	require.NoError(t, err)
	assert.Equal(t, owner, a.owner)
	assert.Equal(t, unit, a.unit)
	assert.Equal(t, time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC), a.from)
	assert.Equal(t, "manual recalculation", a.reason)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing owner", args: []string{"--unit", unit.String(), "--from", "2025-01-31"}},
		{name: "bad unit", args: []string{"--owner", owner.String(), "--unit", "x", "--from", "2025-01-31"}},
		{name: "bad date", args: []string{"--owner", owner.String(), "--unit", unit.String(), "--from", "31.01.2025"}},
		{name: "unknown flag", args: []string{"--units", unit.String()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRecalc(tt.args)
			assert.True(t, errors.Is(err, errUsage), "got %v", err)
		})
	}
}

func TestParseKardex(t *testing.T) {
	unit := id.New()

	a, err := parseKardex([]string{"--unit", unit.String(), "--from", "2025-01-01", "--to", "2025-01-31", "--json"})
	require.NoError(t, err)
	assert.True(t, a.asJSON)

	_, err = parseKardex([]string{"--unit", unit.String(), "--from", "2025-02-01", "--to", "2025-01-31"})
	assert.True(t, errors.Is(err, errUsage))
}

func TestParseCatalog(t *testing.T) {
	a, err := parseCatalog([]string{"--kind", "warehouse", "--code", "WH-1", "--name", "Main"})
	require.NoError(t, err)
	assert.Equal(t, "warehouse", a.kind)
	assert.False(t, id.IsNil(a.id))

	fixed := id.New()
	a, err = parseCatalog([]string{"--kind", "product", "--name", "Widget", "--id", fixed.String()})
	require.NoError(t, err)
	assert.Equal(t, fixed, a.id)

	_, err = parseCatalog([]string{"--kind", "supplier", "--name", "Acme"})
	assert.True(t, errors.Is(err, errUsage))
	_, err = parseCatalog([]string{"--kind", "product"})
	assert.True(t, errors.Is(err, errUsage))
}

func TestCommandsRejectArgumentsBeforeConnecting(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	assert.True(t, errors.Is(cmdMigrate(ctx, nil, &out), errUsage))
	assert.True(t, errors.Is(cmdMigrate(ctx, []string{"sideways"}, &out), errUsage))
	assert.True(t, errors.Is(cmdMigrate(ctx, []string{"force", "x"}, &out), errUsage))
	assert.True(t, errors.Is(cmdSeq(ctx, []string{"--owner", id.New().String()}, &out), errUsage))
	assert.True(t, errors.Is(cmdClosePeriod(ctx, []string{"--owner", id.New().String()}, &out), errUsage))
	assert.Empty(t, out.String())
}

func TestPrintKardex(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2025, time.January, day, 0, 0, 0, 0, time.UTC) }
	k := &reports.Kardex{
		StockUnitID:   id.New(),
		CostingMethod: entity.CostingWeightedAverage,
		From:          d(1),
		To:            d(31),
		Opening:       reports.Balance{Quantity: decimal.NewFromInt(10), Value: decimal.RequireFromString("100.00")},
		Rows: []reports.Row{
			{
				EffectiveDate: d(5),
				Kind:          entity.MovementEntry,
				QuantityIn:    decimal.NewFromInt(4),
				QuantityOut:   decimal.Zero,
				UnitCost:      decimal.RequireFromString("12.5000"),
				TotalCost:     decimal.RequireFromString("50.00"),
				Balance:       reports.Balance{Quantity: decimal.NewFromInt(14), Value: decimal.RequireFromString("150.00")},
			},
		},
		Closing:  reports.Balance{Quantity: decimal.NewFromInt(14), Value: decimal.RequireFromString("150.00")},
		TotalIn:  decimal.NewFromInt(4),
		TotalOut: decimal.Zero,
	}

	var out bytes.Buffer
	require.NoError(t, printKardex(&out, k))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], "weighted_average")
	assert.Contains(t, lines[3], "OPENING")
	assert.Contains(t, lines[4], "12.5000")
	assert.Contains(t, lines[5], "CLOSING")
	assert.Contains(t, lines[5], "150.00")
}
