// Package main is the entry point for the kardex HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kardex/internal/app"
	v1 "kardex/internal/infrastructure/http/v1"
	"kardex/internal/infrastructure/http/v1/handlers"
	"kardex/pkg/config"
	"kardex/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting kardex server", "version", version, "env", cfg.App.Env)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}
	defer a.Close()

	routerCfg := v1.RouterConfig{
		Pool:         a.Pool.Unwrap(),
		Logger:       log,
		Version:      version,
		Registrar:    a.Posting,
		Recalculator: a.Recalculator,
		Stock:        a.Stock,
		Kardex:       a.Projector,
		Valuator:     a.Valuator,
		Cascades:     a.Audit,
		Debug:        cfg.App.IsDevelopment(),
	}
	if cfg.Idempotency.Enabled {
		routerCfg.Idempotency = a.Idempotency
	}
	if a.Redis != nil {
		routerCfg.HealthChecks = map[string]handlers.Pinger{
			"redis": handlers.PingFunc(func(ctx context.Context) error {
				return a.Redis.Ping(ctx).Err()
			}),
		}
	}
	router := v1.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
