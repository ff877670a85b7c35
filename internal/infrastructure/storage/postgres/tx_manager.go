package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kardex/internal/core/tx"
	"kardex/pkg/logger"
)

var tracer = otel.Tracer("kardex/tx")

var (
	_ tx.Manager          = (*TxManager)(nil)
	_ tx.ReadOnlyManager  = (*TxManager)(nil)
	_ tx.SavepointManager = (*TxManager)(nil)
)

const defaultStatementTimeout = 30 * time.Second

// txMode is how a top level transaction is opened.
type txMode struct {
	name      string
	isolation pgx.TxIsoLevel
	access    pgx.TxAccessMode
}

var (
	writeMode    = txMode{name: "write", isolation: pgx.ReadCommitted, access: pgx.ReadWrite}
	snapshotMode = txMode{name: "snapshot", isolation: pgx.RepeatableRead, access: pgx.ReadOnly}
)

// TxManager keeps the current pgx transaction in the context. Registrations,
// cascades and the outbox relay run in write transactions; reports run in
// snapshots. A call made with a transaction already in ctx joins it.
type TxManager struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

// NewTxManager creates a manager over pool.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool, statementTimeout: defaultStatementTimeout}
}

// WithStatementTimeout sets SET LOCAL statement_timeout for every transaction
// this manager opens. Zero disables it.
func (m *TxManager) WithStatementTimeout(d time.Duration) *TxManager {
	m.statementTimeout = d
	return m
}

type txKey struct{}

// Tx is the transaction stored in the context.
type Tx struct {
	pgx.Tx
}

// Querier is satisfied by the pool and by a transaction, so repositories
// work both inside and outside one.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetTx returns the transaction of ctx or nil.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// GetQuerier returns the transaction of ctx, or the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}

// Pool returns the pool for work that must run outside any transaction.
func (m *TxManager) Pool() *pgxpool.Pool {
	return m.pool
}

// RunInTransaction runs fn in a read committed transaction, committing when
// fn returns nil.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, writeMode, fn)
}

// Snapshot runs fn in a read only repeatable read transaction so every
// query sees the same committed state.
func (m *TxManager) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, snapshotMode, fn)
}

func (m *TxManager) run(ctx context.Context, mode txMode, fn func(ctx context.Context) error) error {
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "tx."+mode.name,
		trace.WithAttributes(attribute.String("tx.isolation", string(mode.isolation))))
	defer span.End()

	t, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: mode.isolation, AccessMode: mode.access})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if m.statementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", m.statementTimeout.Milliseconds())
		if _, err := t.Exec(ctx, stmt); err != nil {
			_ = t.Rollback(context.Background())
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, &Tx{Tx: t})); err != nil {
		span.RecordError(err)
		// The rollback must run even when ctx is already cancelled.
		if rbErr := t.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}

	if err := t.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Savepoint runs fn inside SAVEPOINT name of the transaction in ctx. When fn
// fails only its work is rolled back and the outer transaction stays usable.
func (m *TxManager) Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	outer := m.GetTx(ctx)
	if outer == nil {
		return fmt.Errorf("savepoint %s: no transaction in context", name)
	}

	ctx, span := tracer.Start(ctx, "tx.savepoint", trace.WithAttributes(attribute.String("tx.savepoint", name)))
	defer span.End()

	ident := pgx.Identifier{name}.Sanitize()
	if _, err := outer.Exec(ctx, "SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("create savepoint %s: %w", name, err)
	}

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		if _, rbErr := outer.Exec(context.Background(), "ROLLBACK TO SAVEPOINT "+ident); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", name, "error", rbErr)
			return fmt.Errorf("%w (rollback to savepoint %s: %v)", err, name, rbErr)
		}
		return err
	}

	if _, err := outer.Exec(ctx, "RELEASE SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}
