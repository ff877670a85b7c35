package tx

import (
	"context"
	"sync"
)

// Fake is an in-memory Manager for unit tests. It records the calls it sees
// and lets Savepoint callbacks register undo functions that run on rollback.
type Fake struct {
	mu         sync.Mutex
	Depth      int
	Savepoints []string
	RolledBack []string
	Commits    int
	Rollbacks  int
}

type fakeTxKey struct{}

type fakeScope struct {
	undo []func()
}

// RunInTransaction implements Manager.
func (f *Fake) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(fakeTxKey{}).(*fakeScope); ok {
		return fn(ctx)
	}
	scope := &fakeScope{}
	f.mu.Lock()
	f.Depth++
	f.mu.Unlock()
	err := fn(context.WithValue(ctx, fakeTxKey{}, scope))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Depth--
	if err != nil {
		scope.rollback()
		f.Rollbacks++
		return err
	}
	f.Commits++
	return nil
}

// Snapshot implements ReadOnlyManager.
func (f *Fake) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.RunInTransaction(ctx, fn)
}

// Savepoint implements SavepointManager.
func (f *Fake) Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	parent, ok := ctx.Value(fakeTxKey{}).(*fakeScope)
	if !ok {
		return errNoTransaction
	}
	f.mu.Lock()
	f.Savepoints = append(f.Savepoints, name)
	f.mu.Unlock()

	scope := &fakeScope{}
	if err := fn(context.WithValue(ctx, fakeTxKey{}, scope)); err != nil {
		scope.rollback()
		f.mu.Lock()
		f.RolledBack = append(f.RolledBack, name)
		f.mu.Unlock()
		return err
	}
	parent.undo = append(parent.undo, scope.undo...)
	return nil
}

// OnRollback registers undo for the innermost scope in ctx. Fakes of
// repositories call it so in-memory state follows savepoint semantics.
func OnRollback(ctx context.Context, undo func()) {
	if scope, ok := ctx.Value(fakeTxKey{}).(*fakeScope); ok {
		scope.undo = append(scope.undo, undo)
	}
}

func (s *fakeScope) rollback() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
}

type txError string

func (e txError) Error() string { return string(e) }

const errNoTransaction = txError("savepoint requires a transaction in context")

var (
	_ ReadOnlyManager  = (*Fake)(nil)
	_ SavepointManager = (*Fake)(nil)
)
