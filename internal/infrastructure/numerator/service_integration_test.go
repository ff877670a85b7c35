//go:build integration

package numerator_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"kardex/internal/core/id"
	"kardex/internal/infrastructure/numerator"
	"kardex/internal/infrastructure/storage/postgres"
)

func setupSequencer(t *testing.T) (*postgres.TxManager, *numerator.Service) {
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

	cfg := postgres.DefaultPoolConfig(dsn)
	cfg.MaxConns = 30
	cfg.MinConns = 1
	pool, err := postgres.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	txm := postgres.NewTxManager(pool)
	return txm, numerator.New(txm)
}

var errAbort = errors.New("abort registration")

func TestNext_ConcurrentTransactionsLeaveNoGaps(t *testing.T) {
	txm, svc := setupSequencer(t)
	ctx := context.Background()
	owner := id.New()

	const n = 20
	const rolledBack = 7

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed []int64
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			var got int64
			err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
				v, err := svc.Next(ctx, owner, "GR")
				if err != nil {
					return err
				}
				got = v
				if i == rolledBack {
					// hold the row lock so the others queue behind a number
					// that is never committed
					time.Sleep(200 * time.Millisecond)
					return errAbort
				}
				return nil
			})
			if i == rolledBack {
				assert.ErrorIs(t, err, errAbort)
				return
			}
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			committed = append(committed, got)
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	require.Len(t, committed, n-1)
	sort.Slice(committed, func(i, j int) bool { return committed[i] < committed[j] })
	for i, v := range committed {
		assert.Equal(t, int64(i+1), v, "numbers must be distinct and gap-free")
	}

	last, err := svc.Peek(ctx, owner, "GR")
	require.NoError(t, err)
	assert.Equal(t, int64(n-1), last)
}

func TestNext_RollbackReturnsNumber(t *testing.T) {
	txm, svc := setupSequencer(t)
	ctx := context.Background()
	owner := id.New()

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		v, err := svc.Next(ctx, owner, "GI")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		v, err := svc.Next(ctx, owner, "GI")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
		return nil
	})
	require.NoError(t, err)
}
