package numerator

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences keyed by (owner, type). The mutex
// stands in for the row lock.
type mockQuerier struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
}

func (m *mockQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return &mockRow{err: m.err}
	}
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	key := args[0].(id.ID).String() + "/" + args[1].(string)

	switch {
	case strings.Contains(sql, "SELECT"):
		v, ok := m.counters[key]
		if !ok {
			return &mockRow{err: pgx.ErrNoRows}
		}
		return &mockRow{val: v}
	case len(args) == 3:
		m.counters[key] = args[2].(int64)
	default:
		m.counters[key]++
	}
	return &mockRow{val: m.counters[key]}
}

func TestNext_CountsPerKey(t *testing.T) {
	q := &mockQuerier{}
	svc := NewWithQuerier(q)
	ctx := context.Background()
	owner := id.New()

	n, err := svc.Next(ctx, owner, "goods_receipt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.Next(ctx, owner, "goods_receipt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = svc.Next(ctx, owner, "goods_issue")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.Next(ctx, id.New(), "goods_receipt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// The mock serializes the counter itself; row locking against a real
// database is covered by the integration tests.
func TestNext_ConcurrentCallsShareService(t *testing.T) {
	q := &mockQuerier{}
	svc := NewWithQuerier(q)
	owner := id.New()

	const n = 50
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.Next(context.Background(), owner, "goods_issue")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, v := range results {
		assert.Equal(t, int64(i+1), v)
	}
}

func TestNext_RequiresTransaction(t *testing.T) {
	svc := &Service{
		inTx:   func(context.Context) (Querier, bool) { return nil, false },
		reader: func(context.Context) Querier { return &mockQuerier{} },
	}

	_, err := svc.Next(context.Background(), id.New(), "goods_issue")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInternal))
}

func TestNext_RequiresOperationType(t *testing.T) {
	_, err := NewWithQuerier(&mockQuerier{}).Next(context.Background(), id.New(), "")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestNext_WrapsQueryError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := NewWithQuerier(&mockQuerier{err: boom}).Next(context.Background(), id.New(), "goods_issue")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPeekAndSet(t *testing.T) {
	q := &mockQuerier{}
	svc := NewWithQuerier(q)
	ctx := context.Background()
	owner := id.New()

	n, err := svc.Peek(ctx, owner, "adjustment")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, svc.Set(ctx, owner, "adjustment", 100))

	n, err = svc.Peek(ctx, owner, "adjustment")
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)

	n, err = svc.Next(ctx, owner, "adjustment")
	require.NoError(t, err)
	assert.Equal(t, int64(101), n)

	assert.Error(t, svc.Set(ctx, owner, "adjustment", -1))
}
