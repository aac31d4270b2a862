package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func TestInitTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingOptions{NodeID: "n1"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerProviderTagsNode(t *testing.T) {
	ctx := context.Background()
	exp := tracetest.NewInMemoryExporter()
	// нулевая доля означает «все трассы»
	tp := newTracerProvider(exp, TracingOptions{NodeID: "authority-2"})
	defer tp.Shutdown(ctx)

	_, span := tp.Tracer("test").Start(ctx, "multipart.Place")
	span.End()
	require.NoError(t, tp.ForceFlush(ctx))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	attrs := spans[0].Resource.Attributes()
	assert.Contains(t, attrs, semconv.ServiceName(serviceName))
	assert.Contains(t, attrs, semconv.ServiceInstanceID("authority-2"))
}
