package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
)

// TestPipeline_LoadThenQuery drives one simulated load and one query through
// the same tracer, meter and logger a running process would use.
func TestPipeline_LoadThenQuery(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	sdk := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(
		observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), slog.New(slog.DiscardHandler)),
	))

	t.Cleanup(func() { require.NoError(t, sdk.Shutdown(context.Background())) })

	tracer := observability.NewFilteringTracerProvider(sdk).Tracer("scanreport")

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("scanreport")

	ingest, err := observability.NewIngestMetrics(meter)
	require.NoError(t, err)

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	var logs bytes.Buffer

	logger := slog.New(observability.NewTracingHandler(
		slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}), "scanreport", "test", observability.ModeServe,
	))

	ctx := observability.ContextWithSession(context.Background(), "sess-1")

	ctx, load := tracer.Start(ctx, "scanreport.session.load", trace.WithAttributes(
		attribute.String("session.id", "sess-1"),
		attribute.String("issue.curl", "curl -H 'Authorization: x' https://api"),
	))

	for range 3 {
		_, flush := tracer.Start(ctx, observability.SpanSessionFlush)
		ingest.RecordFlush(ctx, 10*time.Millisecond)
		flush.End()
	}

	ingest.RecordLoad(ctx, observability.IngestStats{
		Fragments:  3,
		Bytes:      3 << 10,
		Issues:     12,
		Operations: 2,
		Warnings:   1,
		Duration:   30 * time.Millisecond,
		Outcome:    observability.LoadFinished,
	})
	logger.InfoContext(ctx, "report loaded", "issues", 12)
	load.End()

	_, page := tracer.Start(ctx, "scanreport.query.issues_page")
	red.RecordRequest(ctx, "GET /v1/issues", observability.StatusOK, 2*time.Millisecond)
	page.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "scanreport.session.load", spans[0].Name)
	assert.Equal(t, "scanreport.query.issues_page", spans[1].Name)
	assert.Equal(t, spans[0].SpanContext.TraceID(), spans[1].SpanContext.TraceID())

	loadAttrs := spanAttrMap(spans[0])
	assert.Equal(t, "sess-1", loadAttrs["session.id"])
	assert.NotContains(t, loadAttrs, "issue.curl")

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(3), sumInt64(t, findMetric(rm, "scanreport.ingest.fragments.total")))
	assert.Equal(t, int64(1), sumInt64(t, findMetric(rm, "scanreport.ingest.loads.total")))
	assert.Equal(t, int64(1), sumInt64(t, findMetric(rm, "scanreport.requests.total")))

	records, ok := findMetric(rm, "scanreport.ingest.records.total").Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byKind := make(map[string]int64, len(records.DataPoints))
	for _, dp := range records.DataPoints {
		kind, _ := dp.Attributes.Value("record")
		byKind[kind.AsString()] = dp.Value
	}

	assert.Equal(t, map[string]int64{"issue": 12, "operation": 2}, byKind)

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, spans[0].SpanContext.TraceID().String(), line[observability.LogKeyTraceID])
	assert.Equal(t, "sess-1", line[observability.LogKeySession])
	assert.Equal(t, "scanreport", line["service"])
	assert.InDelta(t, 12, line["issues"], 0)
}
