package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProvider(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), "jobcrawler", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	require.Same(t, tp, otel.GetTracerProvider())
	_, span := Tracer().Start(context.Background(), "crawl")
	defer span.End()
	require.True(t, span.SpanContext().IsValid())
}
