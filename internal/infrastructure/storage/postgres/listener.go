package postgres

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kardex/pkg/logger"
)

// OutboxChannel is the NOTIFY channel raised when outbox rows commit.
const OutboxChannel = "kardex_outbox"

// Listener holds a dedicated connection on LISTEN channel and signals Wake
// on every notification. Signals coalesce: a pending wake is not repeated.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	wake    chan struct{}

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewListener creates a listener on channel.
func NewListener(pool *pgxpool.Pool, channel string) *Listener {
	return &Listener{
		pool:    pool,
		channel: channel,
		wake:    make(chan struct{}, 1),
	}
}

// Wake receives a value after notifications arrive.
func (l *Listener) Wake() <-chan struct{} {
	return l.wake
}

// Start begins listening in the background until Stop or ctx ends.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.started = true
	l.wg.Add(1)
	go l.listenLoop(ctx)
	logger.Info(ctx, "listener started", "channel", l.channel)
}

// Stop ends listening and waits for the loop to exit.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
}

func (l *Listener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Listener) listenLoop(ctx context.Context) {
	defer l.wg.Done()

	for ctx.Err() == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error(ctx, "failed to acquire connection for LISTEN", "error", err)
				sleepCtx(ctx, time.Second)
			}
			continue
		}

		if _, err := conn.Exec(ctx, "LISTEN "+l.channel); err != nil {
			conn.Release()
			if ctx.Err() == nil {
				logger.Error(ctx, "failed to LISTEN", "channel", l.channel, "error", err)
				sleepCtx(ctx, time.Second)
			}
			continue
		}

		// messages committed while we were reconnecting were not notified
		l.signal()
		l.waitForNotifications(ctx, conn)
		conn.Release()
	}
}

// waitForNotifications returns when ctx ends or the connection breaks.
func (l *Listener) waitForNotifications(ctx context.Context, conn *pgxpool.Conn) {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := conn.Conn().WaitForNotification(waitCtx)
		cancel()

		switch {
		case err == nil:
			l.signal()
		case ctx.Err() != nil:
			return
		case errors.Is(err, context.DeadlineExceeded):
			// idle, keep waiting
		default:
			logger.Warn(ctx, "LISTEN connection lost", "channel", l.channel, "error", err)
			conn.Conn().Close(context.Background())
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
