package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "kardex/internal/core/context"
	"kardex/internal/core/id"
)

func TestWithContextAddsTraceAndOwner(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &Logger{zap.New(core).Sugar()}

	owner := id.New()
	ctx := appctx.WithTrace(context.Background(), &appctx.Trace{TraceID: "t-1", RequestID: "r-1", Origin: appctx.OriginHTTP})
	ctx = appctx.WithOwner(ctx, owner)
	ctx = WithLogger(ctx, log)

	Info(ctx, "cascade committed", "units", 2)

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "http", fields["origin"])
	assert.Equal(t, owner.String(), fields["owner_id"])
	assert.EqualValues(t, 2, fields["units"])
}

func TestNewFallsBackToInfoLevel(t *testing.T) {
	log, err := New(Config{Level: "not-a-level", OutputPaths: []string{"stdout"}})
	assert.NoError(t, err)
	assert.False(t, log.Desugar().Core().Enabled(zap.DebugLevel))
	assert.True(t, log.Desugar().Core().Enabled(zap.InfoLevel))
}

func TestWithContextWithoutValuesKeepsLogger(t *testing.T) {
	log := NewNop()
	assert.Same(t, log, log.WithContext(context.Background()))
}
