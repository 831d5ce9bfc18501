package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(tracing bool) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{Zap: zap.New(core), tracingEnabled: tracing}, logs
}

func TestLevelOf(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelOf(Debug))
	assert.Equal(t, zapcore.WarnLevel, levelOf(Warning))
	assert.Equal(t, zapcore.ErrorLevel, levelOf(Error))
	assert.Equal(t, zapcore.InfoLevel, levelOf("production"))
}

func TestFieldsAndError(t *testing.T) {
	l, logs := observed(false)
	l.Error("phase failed", errors.New("boom"), map[string]interface{}{"phase": "main"}, map[string]interface{}{"uid": "abc"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "phase failed", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "main", ctx["phase"])
	assert.Equal(t, "abc", ctx["uid"])
}

func TestWithContextAddsTraceIDs(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	t.Run("enabled", func(t *testing.T) {
		l, logs := observed(true)
		l.InfoWithContext(ctx, "query", nil)
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, traceID.String(), fields["trace_id"])
		assert.Equal(t, spanID.String(), fields["span_id"])
	})

	t.Run("disabled", func(t *testing.T) {
		l, logs := observed(false)
		l.InfoWithContext(ctx, "query", nil)
		assert.NotContains(t, logs.All()[0].ContextMap(), "trace_id")
	})

	t.Run("no span", func(t *testing.T) {
		l, logs := observed(true)
		l.WarnWithContext(context.Background(), "query", nil)
		assert.NotContains(t, logs.All()[0].ContextMap(), "trace_id")
	})
}

func TestNewLoggerClient(t *testing.T) {
	l := NewLoggerClient(Config{Level: Warning})
	assert.False(t, l.Zap.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Zap.Core().Enabled(zapcore.WarnLevel))
	NewNop().Info("discarded", nil)
}
