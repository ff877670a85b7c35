//go:build integration

package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"kardex/internal/app"
	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/posting"
	"kardex/internal/infrastructure/storage/postgres"
	"kardex/pkg/config"
)

func setupApp(t *testing.T) *app.App {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("kardex_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := postgres.NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Close())

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		Database: config.DatabaseConfig{
			URL:              dsn,
			MaxConns:         5,
			MinConns:         1,
			MaxConnLifetime:  time.Hour,
			StatementTimeout: 30 * time.Second,
		},
		Periods:     config.PeriodsConfig{DepthExpression: "depth_days <= 365"},
		Idempotency: config.IdempotencyConfig{Enabled: true, TTL: time.Hour},
		Outbox:      config.OutboxConfig{BatchSize: 10, RetentionDays: 1},
		Audit:       config.AuditConfig{CompressThreshold: 1024},
	}

	a, err := app.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

type fixture struct {
	owner     id.ID
	product   id.ID
	warehouse id.ID
	base      time.Time
}

func newFixture(t *testing.T, a *app.App) fixture {
	t.Helper()
	ctx := context.Background()

	f := fixture{
		owner:     id.New(),
		product:   id.New(),
		warehouse: id.New(),
		base:      time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -30),
	}
	require.NoError(t, a.Products.Upsert(ctx, f.product, "P-"+f.product.String()[:8], "Bolt"))
	require.NoError(t, a.Warehouses.Upsert(ctx, f.warehouse, "W-"+f.warehouse.String()[:8], "Main"))
	return f
}

func (f fixture) day(n int) time.Time {
	return f.base.AddDate(0, 0, n)
}

func (f fixture) register(t *testing.T, a *app.App, op string, day int, line posting.Line) (*posting.Result, error) {
	t.Helper()
	line.ProductID = f.product
	line.WarehouseID = f.warehouse
	return a.Posting.Register(context.Background(), posting.Command{
		OwnerID:       f.owner,
		OperationType: op,
		Date:          f.day(day),
		Lines:         []posting.Line{line},
	})
}

func entry(qty, cost int64, method entity.CostingMethod) posting.Line {
	return posting.Line{
		Kind:          entity.MovementEntry,
		Quantity:      decimal.NewFromInt(qty),
		UnitCost:      decimal.NewFromInt(cost),
		CostingMethod: method,
	}
}

func exit(qty int64) posting.Line {
	return posting.Line{Kind: entity.MovementExit, Quantity: decimal.NewFromInt(qty)}
}

func decEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestWeightedAverageRetroactiveEntry(t *testing.T) {
	a := setupApp(t)
	f := newFixture(t, a)
	ctx := context.Background()
	wa := entity.CostingWeightedAverage

	first, err := f.register(t, a, "GR", 1, entry(10, 10, wa))
	require.NoError(t, err)
	unitID := first.Movements[0].StockUnitID

	_, err = f.register(t, a, "GR", 3, entry(10, 20, wa))
	require.NoError(t, err)

	issue, err := f.register(t, a, "GI", 5, exit(5))
	require.NoError(t, err)
	assert.Nil(t, issue.Cascade)
	decEqual(t, "15", issue.Movements[0].UnitCost)
	decEqual(t, "75", issue.Movements[0].TotalCost)

	late, err := f.register(t, a, "GR", 2, entry(20, 40, wa))
	require.NoError(t, err)
	require.NotNil(t, late.Cascade)
	assert.Empty(t, late.Cascade.Errors)
	assert.NotEqual(t, first.Number, late.Number)

	k, err := a.Projector.Project(ctx, unitID, f.day(0), f.day(10))
	require.NoError(t, err)
	require.Len(t, k.Rows, 4)

	last := k.Rows[3]
	assert.Equal(t, entity.MovementExit, last.Kind)
	decEqual(t, "27.5", last.UnitCost)
	decEqual(t, "137.5", last.TotalCost)
	assert.NotNil(t, last.RecalculatedAt)
	decEqual(t, "35", k.Closing.Quantity)

	history, err := a.Audit.History(ctx, unitID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, unitID, history[0].StockUnitID)
	assert.Positive(t, history[0].MovementsChanged)
}

func TestFIFORetroactiveExit(t *testing.T) {
	a := setupApp(t)
	f := newFixture(t, a)
	ctx := context.Background()
	fifo := entity.CostingFIFO

	first, err := f.register(t, a, "GR", 1, entry(10, 10, fifo))
	require.NoError(t, err)
	unitID := first.Movements[0].StockUnitID

	_, err = f.register(t, a, "GR", 3, entry(10, 20, fifo))
	require.NoError(t, err)

	issue, err := f.register(t, a, "GI", 5, exit(15))
	require.NoError(t, err)
	decEqual(t, "200", issue.Movements[0].TotalCost)

	late, err := f.register(t, a, "GI", 2, exit(5))
	require.NoError(t, err)
	require.NotNil(t, late.Cascade)
	decEqual(t, "50", late.Movements[0].TotalCost)

	k, err := a.Projector.Project(ctx, unitID, f.day(0), f.day(10))
	require.NoError(t, err)
	require.Len(t, k.Rows, 4)
	decEqual(t, "250", k.Rows[3].TotalCost)
	decEqual(t, "0", k.Closing.Quantity)

	// Nothing is left for a second late issue; the whole document rolls back.
	_, err = f.register(t, a, "GI", 2, exit(1))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Contains(t, []string{apperror.CodeInsufficientStock, apperror.CodeCascadeFailure}, appErr.Code)

	after, err := a.Projector.Project(ctx, unitID, f.day(0), f.day(10))
	require.NoError(t, err)
	assert.Len(t, after.Rows, 4)
	decEqual(t, "250", after.Rows[3].TotalCost)
}

func TestClosedPeriodRejectsRegistration(t *testing.T) {
	a := setupApp(t)
	f := newFixture(t, a)
	ctx := context.Background()

	_, err := f.register(t, a, "GR", 5, entry(1, 1, entity.CostingWeightedAverage))
	require.NoError(t, err)

	require.NoError(t, a.Periods.Close(ctx, f.owner, f.day(3)))

	_, err = f.register(t, a, "GR", 2, entry(1, 1, entity.CostingWeightedAverage))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodePeriodClosed, appErr.Code)

	_, err = f.register(t, a, "GR", 4, entry(1, 1, entity.CostingWeightedAverage))
	require.NoError(t, err)
}
