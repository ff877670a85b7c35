// Package app wires the engine from configuration. The HTTP service, the
// worker and the operator CLI share this graph.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"kardex/internal/domain/periods"
	"kardex/internal/domain/posting"
	"kardex/internal/domain/recalc"
	"kardex/internal/domain/registers/movement"
	"kardex/internal/domain/registers/stock"
	"kardex/internal/domain/reports"
	"kardex/internal/infrastructure/cache"
	"kardex/internal/infrastructure/numerator"
	"kardex/internal/infrastructure/storage/postgres"
	"kardex/internal/infrastructure/storage/postgres/catalog_repo"
	"kardex/internal/infrastructure/storage/postgres/document_repo"
	"kardex/internal/infrastructure/storage/postgres/period_repo"
	"kardex/internal/infrastructure/storage/postgres/register_repo"
	"kardex/internal/infrastructure/storage/postgres/report_repo"
	"kardex/pkg/config"
	"kardex/pkg/logger"
)

// App holds the wired services.
type App struct {
	Config *config.Config
	Pool   *postgres.Pool
	TxM    *postgres.TxManager

	// Redis is nil when redis is not configured.
	Redis *redis.Client

	Products     *catalog_repo.CatalogRepo
	Warehouses   *catalog_repo.CatalogRepo
	Sequencer    *numerator.Service
	Periods      *period_repo.PeriodRepo
	Policy       *periods.Policy
	Stock        *stock.Ledger
	Movements    *movement.Ledger
	Recalculator *recalc.Recalculator
	Posting      *posting.Engine
	Projector    *reports.Projector
	Valuator     *reports.Valuator
	Audit        *postgres.AuditService
	Outbox       *postgres.OutboxPublisher
	Idempotency  *postgres.IdempotencyStore
}

// New connects to PostgreSQL (and redis when configured) and builds the
// services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &App{Config: cfg, Pool: pool}
	if cfg.Redis.Enabled() {
		a.Redis, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.Config
	a.TxM = postgres.NewTxManager(a.Pool).WithStatementTimeout(cfg.Database.StatementTimeout)
	txm := a.TxM

	a.Periods = period_repo.NewPeriodRepo(txm)
	policy, err := periods.NewPolicy(a.Periods, cfg.Periods.DepthExpression)
	if err != nil {
		return fmt.Errorf("retroactive policy: %w", err)
	}
	a.Policy = policy

	a.Audit, err = postgres.NewAuditService(txm, cfg.Audit.CompressThreshold)
	if err != nil {
		return err
	}
	a.Outbox = postgres.NewOutboxPublisher(txm)
	a.Idempotency = postgres.NewIdempotencyStore(txm, cfg.Idempotency.TTL)
	a.Sequencer = numerator.New(txm)

	a.Products = catalog_repo.NewProductCatalog(txm)
	a.Warehouses = catalog_repo.NewWarehouseCatalog(txm)
	a.Stock = stock.NewLedger(register_repo.NewStockRepo(txm), a.Products, a.Warehouses)
	a.Movements = movement.NewLedger(register_repo.NewMovementRepo(txm), a.Stock)
	docs := document_repo.NewDocumentRepo(txm)

	a.Recalculator = recalc.New(txm, a.Stock, a.Movements, docs, a.Policy,
		recalc.WithAuditor(a.Audit),
		recalc.WithEvents(a.Outbox),
		recalc.WithObserver(recalc.LogObserver{}),
		recalc.WithObserver(recalc.SpanObserver{}),
	)
	a.Posting = posting.NewEngine(txm, a.Policy, a.Sequencer, a.Stock, a.Movements, docs, a.Recalculator)

	// a nil *OpeningCache must not reach the projector as a non-nil interface
	var opening reports.OpeningCache
	if a.Redis != nil {
		opening = cache.NewOpeningCache(a.Redis, "", cfg.Redis.OpeningTTL)
	}
	a.Projector = reports.NewProjector(txm, a.Stock, a.Movements, opening)
	a.Valuator = reports.NewValuator(txm, report_repo.NewReportRepo(txm))
	return nil
}

// Close releases the connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Default().Warnw("close redis", "error", err)
		}
	}
	a.Pool.Close()
}
