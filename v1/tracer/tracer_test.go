package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
)

func TestTracer(t *testing.T) {
	tr, err := NewClient(Config{ServiceName: "test", AppEnv: "test"}, logger.NewNop())
	require.NoError(t, err)
	defer func() { _ = tr.Shutdown(context.Background()) }()

	t.Run("spans are recorded", func(t *testing.T) {
		ctx, span := tr.StartSpan(context.Background(), "query")
		assert.True(t, span.SpanContext().IsValid())
		tr.SetAttributes(span, map[string]interface{}{"project": int64(1), "kind": "state"})
		tr.RecordErrorOnSpan(span, errors.New("boom"))
		span.End()

		carrier := tr.GetCarrier(ctx)
		assert.NotEmpty(t, carrier["traceparent"])

		restored := tr.SetCarrierOnContext(context.Background(), carrier)
		_, child := tr.StartSpan(restored, "child")
		assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())
		child.End()
	})

	t.Run("nil tracer hands out no-op spans", func(t *testing.T) {
		var none *Tracer
		_, span := none.StartSpan(context.Background(), "noop")
		assert.False(t, span.SpanContext().IsValid())
		assert.NoError(t, none.Shutdown(context.Background()))
	})
}
