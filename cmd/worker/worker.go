package main

import (
	"context"
	"time"

	"kardex/pkg/logger"
)

// outboxRelay is the part of postgres.OutboxRelay the worker drives.
type outboxRelay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
	PurgePublished(ctx context.Context, olderThan time.Duration) (int64, error)
}

type keyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Worker drains the outbox when woken by NOTIFY or by the poll ticker, and
// runs housekeeping on the cleanup ticker.
type Worker struct {
	relay outboxRelay
	keys  keyCleaner

	// wake fires when new outbox rows were committed.
	wake <-chan struct{}

	pollInterval    time.Duration
	cleanupInterval time.Duration
	retention       time.Duration

	log *logger.Logger
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.cleanupInterval <= 0 {
		w.cleanupInterval = time.Hour
	}

	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(w.cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			w.drain(ctx)
		case <-poll.C:
			w.drain(ctx)
		case <-cleanup.C:
			w.cleanup(ctx)
		}
	}
}

// drain publishes batches until one comes back empty. Failed messages are
// rescheduled by the relay, so an empty batch always ends the loop.
func (w *Worker) drain(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			break
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total > 0 {
		w.log.Debugw("outbox drained", "published", total)
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if n, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("move failed outbox messages to dlq", "error", err)
	} else if n > 0 {
		w.log.Warnw("outbox messages moved to dlq", "count", n)
	}

	if w.retention > 0 {
		if n, err := w.relay.PurgePublished(ctx, w.retention); err != nil {
			w.log.Errorw("purge published outbox messages", "error", err)
		} else if n > 0 {
			w.log.Infow("purged published outbox messages", "count", n)
		}
	}

	if w.keys != nil {
		if n, err := w.keys.CleanupExpired(ctx); err != nil {
			w.log.Errorw("cleanup idempotency keys", "error", err)
		} else if n > 0 {
			w.log.Infow("cleaned up idempotency keys", "count", n)
		}
	}
}
