package recalc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kardex/internal/core/id"
	"kardex/pkg/logger"
)

// Transition is emitted on every state change. UnitID is nil for
// run-level transitions.
type Transition struct {
	RunID  id.ID
	UnitID id.ID
	From   State
	To     State
	At     time.Time
	Err    error
}

// Observer receives transitions. Implementations must not block.
type Observer interface {
	Observe(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition)

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, t Transition) { f(ctx, t) }

// LogObserver writes transitions to the structured logger.
type LogObserver struct{}

// Observe implements Observer.
func (LogObserver) Observe(ctx context.Context, t Transition) {
	kv := []any{
		"run_id", t.RunID,
		"from", t.From,
		"to", t.To,
	}
	if !id.IsNil(t.UnitID) {
		kv = append(kv, "stock_unit_id", t.UnitID)
	}
	if t.Err != nil {
		logger.Warn(ctx, "recalculation transition", append(kv, "error", t.Err)...)
		return
	}
	logger.Debug(ctx, "recalculation transition", kv...)
}

// SpanObserver adds transitions as events of the span in ctx.
type SpanObserver struct{}

// Observe implements Observer.
func (SpanObserver) Observe(ctx context.Context, t Transition) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("recalc.from", string(t.From)),
		attribute.String("recalc.to", string(t.To)),
	}
	if !id.IsNil(t.UnitID) {
		attrs = append(attrs, attribute.String("stock_unit.id", t.UnitID.String()))
	}
	if t.Err != nil {
		attrs = append(attrs, attribute.String("error", t.Err.Error()))
	}
	span.AddEvent("recalc."+string(t.To), trace.WithAttributes(attrs...))
}
