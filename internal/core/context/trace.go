// Package context carries the request scoped values every layer logs: the
// trace of the call and the owner it acts for.
package context

import (
	"context"

	"github.com/google/uuid"
)

// Origins of a trace.
const (
	OriginHTTP   = "http"
	OriginWorker = "worker"
	OriginCLI    = "cli"
)

// Trace identifies one call through the engine.
type Trace struct {
	TraceID   string
	RequestID string
	Origin    string
}

type traceKey struct{}

// WithTrace stores the trace in ctx.
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, trace)
}

// GetTrace returns the trace of ctx or nil.
func GetTrace(ctx context.Context) *Trace {
	if v, ok := ctx.Value(traceKey{}).(*Trace); ok {
		return v
	}
	return nil
}

// NewTrace starts a trace for calls that have no inbound request id.
func NewTrace(origin string) *Trace {
	traceID := uuid.NewString()
	return &Trace{
		TraceID:   traceID,
		RequestID: traceID,
		Origin:    origin,
	}
}
