package tracing

import (
	"context"
	"testing"

	"github.com/smallbiznis/marketpay/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCorrelationSpanProcessorStampsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&correlationSpanProcessor{}),
		sdktrace.WithSpanProcessor(recorder),
	)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx := correlation.ContextWithCorrelationID(context.Background(), "cid-1")
	_, span := provider.Tracer("test").Start(ctx, "reconcile")
	span.End()

	_, bare := provider.Tracer("test").Start(context.Background(), "bare")
	bare.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Contains(t, spans[0].Attributes(), attribute.String(correlation.MetadataCorrelationID, "cid-1"))
	for _, kv := range spans[1].Attributes() {
		assert.NotEqual(t, attribute.Key(correlation.MetadataCorrelationID), kv.Key)
	}
}
