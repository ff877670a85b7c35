// Package main is the entry point for the kardex outbox worker. It publishes
// committed cascade events to redis and purges expired bookkeeping rows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"kardex/internal/app"
	appctx "kardex/internal/core/context"
	"kardex/internal/infrastructure/broker"
	"kardex/internal/infrastructure/storage/postgres"
	"kardex/pkg/config"
	"kardex/pkg/logger"
)

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

	ctx := appctx.WithTrace(context.Background(), appctx.NewTrace(appctx.OriginWorker))
	ctx, cancel := context.WithCancel(logger.WithLogger(ctx, log))
	defer cancel()

	log.Info("starting kardex worker")

	if !cfg.Redis.Enabled() {
		log.Fatalw("worker needs redis: set REDIS_ADDR")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}
	defer a.Close()

	publisher := broker.NewRedisPublisher(a.Redis, cfg.Redis.Channel)
	relay := postgres.NewOutboxRelay(a.TxM, cfg.Outbox.BatchSize, publisher)

	listener := postgres.NewListener(a.Pool.Unwrap(), postgres.OutboxChannel)
	listener.Start(ctx)
	defer listener.Stop()

	worker := &Worker{
		relay:           relay,
		keys:            a.Idempotency,
		wake:            listener.Wake(),
		pollInterval:    cfg.Outbox.PollInterval,
		cleanupInterval: time.Hour,
		retention:       time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour,
		log:             log.WithComponent("worker"),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}
