package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
)

func spanNames(spans tracetest.SpanStubs) []string {
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}

	return names
}

func TestFilteringTracerProvider_DropsHotPath(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tracer := observability.NewFilteringTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))).Tracer("scanreport")

	ctx, load := tracer.Start(context.Background(), "scanreport.session.load")

	flushCtx, flush := tracer.Start(ctx, observability.SpanSessionFlush)
	assert.False(t, flush.IsRecording())
	assert.Equal(t, load.SpanContext().TraceID(), trace.SpanContextFromContext(flushCtx).TraceID())

	_, put := tracer.Start(flushCtx, "scanreport.store.put")
	put.End()
	flush.End()

	_, batch := tracer.Start(ctx, observability.SpanStoreBatch)
	batch.End()

	load.End()

	spans := exporter.GetSpans()
	assert.ElementsMatch(t, []string{"scanreport.store.put", "scanreport.session.load"}, spanNames(spans))

	for _, s := range spans {
		assert.Equal(t, load.SpanContext().TraceID(), s.SpanContext.TraceID())
	}
}

func TestFilteringTracerProvider_ExtraNames(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tracer := observability.NewFilteringTracerProvider(
		sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)), "scanreport.query.page",
	).Tracer("scanreport")

	_, page := tracer.Start(context.Background(), "scanreport.query.page")
	page.End()

	_, get := tracer.Start(context.Background(), "scanreport.query.issue")
	get.End()

	require.Len(t, exporter.GetSpans(), 1)
	assert.Equal(t, "scanreport.query.issue", exporter.GetSpans()[0].Name)
}
