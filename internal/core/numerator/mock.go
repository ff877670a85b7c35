package numerator

import (
	"context"
	"sync"

	"kardex/internal/core/id"
)

// MockSequencer is an in-memory Sequencer for unit tests.
type MockSequencer struct {
	NextFunc func(ctx context.Context, ownerID id.ID, operationType string) (int64, error)

	mu       sync.Mutex
	counters map[string]int64
}

// Next implements Sequencer. Without NextFunc it counts per key from 1.
func (m *MockSequencer) Next(ctx context.Context, ownerID id.ID, operationType string) (int64, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, ownerID, operationType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	key := ownerID.String() + "/" + operationType
	m.counters[key]++
	return m.counters[key], nil
}

// Peek implements Sequencer.
func (m *MockSequencer) Peek(_ context.Context, ownerID id.ID, operationType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[ownerID.String()+"/"+operationType], nil
}

// Ensure compile-time interface compliance.
var _ Sequencer = (*MockSequencer)(nil)
