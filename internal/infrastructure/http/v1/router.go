// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"kardex/internal/infrastructure/http/v1/handlers"
	"kardex/internal/infrastructure/http/v1/middleware"
	"kardex/pkg/logger"
)

// RouterConfig holds the router dependencies.
type RouterConfig struct {
	// Pool is checked by /health/ready and reported by /health/info.
	Pool *pgxpool.Pool

	// HealthChecks are extra readiness checks keyed by name (redis).
	HealthChecks map[string]handlers.Pinger

	Logger  *logger.Logger
	Version string

	Registrar    handlers.Registrar
	Recalculator handlers.Recalculator
	Stock        handlers.StockReader
	Kardex       handlers.KardexProjector
	Valuator     handlers.Valuator

	// Cascades is optional; without it /cascades answers 404.
	Cascades handlers.CascadeHistory

	// Idempotency protects mutating endpoints when set.
	Idempotency middleware.IdempotencyStore

	// Debug switches gin to debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// order matters: errors are rendered after recovery and before logging
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Version, cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Owner())
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerPostingRoutes(v1, base, cfg)
	registerStockRoutes(v1, base, cfg)
	registerReportRoutes(v1, base, cfg)

	return router
}

// registerPostingRoutes registers document registration and recalculation.
func registerPostingRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	registration := handlers.NewRegistrationHandler(base, cfg.Registrar)
	rg.POST("/registrations", registration.Register)

	recalc := handlers.NewRecalcHandler(base, cfg.Recalculator)
	rg.POST("/recalculations", recalc.Recalculate)
	rg.POST("/stock-units/:id/recalculate", recalc.RecalculateUnit)
}

// registerStockRoutes registers stock unit reads.
func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	stock := handlers.NewStockHandler(base, cfg.Stock, cfg.Kardex, cfg.Cascades)

	units := rg.Group("/stock-units")
	units.GET("/:id", stock.GetUnit)
	units.GET("/:id/kardex", stock.GetKardex)
	units.GET("/:id/cascades", stock.GetCascades)
}

// registerReportRoutes registers report endpoints.
func registerReportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	reports := handlers.NewReportsHandler(base, cfg.Valuator)
	rg.GET("/reports/valuation", reports.GetValuation)
}
