package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
)

// tracedMux serves a small routed API through HTTPMiddleware and returns the
// span exporter.
func tracedMux(t *testing.T) (http.Handler, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/issues/{id}", func(rw http.ResponseWriter, hr *http.Request) {
		if !trace.SpanContextFromContext(hr.Context()).IsValid() {
			rw.WriteHeader(http.StatusTeapot)

			return
		}

		_, _ = rw.Write([]byte(`{"id":` + hr.PathValue("id") + `}`))
	})
	mux.HandleFunc("POST /v1/report", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	})

	return observability.HTTPMiddleware(tp.Tracer("test"), mux), exporter
}

func TestHTTPMiddleware_NamesSpanByRoute(t *testing.T) {
	t.Parallel()

	handler, exporter := tracedMux(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/issues/42", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42}`, rec.Body.String())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/issues/{id}", spans[0].Name)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)

	attrs := spanAttrMap(spans[0])
	assert.Equal(t, "GET /v1/issues/{id}", attrs["http.route"])
	assert.Equal(t, "/v1/issues/42", attrs["url.path"])
	assert.Equal(t, int64(http.StatusOK), attrs["http.response.status_code"])
}

func TestHTTPMiddleware_UnroutedKeepsPath(t *testing.T) {
	t.Parallel()

	handler, exporter := tracedMux(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /nowhere", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}

func TestHTTPMiddleware_ServerErrorFailsSpan(t *testing.T) {
	t.Parallel()

	handler, exporter := tracedMux(t)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/report", http.NoBody))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestHTTPMiddleware_ContinuesTraceParent(t *testing.T) {
	t.Parallel()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	handler, exporter := tracedMux(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/issues/1", http.NoBody)
	req.Header.Set("Traceparent", "00-0af7651916cd43dd8448eb211c80319c-00f067aa0ba902b7-01")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
}

func TestMetricsMiddleware_StatusClasses(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	respond := func(op string, code int) {
		h := observability.MetricsMiddleware(red, op, http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(code)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	}

	respond("GET /v1/paths", http.StatusNoContent)
	respond("GET /v1/issues", http.StatusBadRequest)
	respond("POST /v1/report", http.StatusBadGateway)

	rm := collectMetrics(t, reader)

	requests := findMetric(rm, "scanreport.requests.total")
	require.NotNil(t, requests)

	reqSum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	statuses := make(map[string]string)
	for _, dp := range reqSum.DataPoints {
		op, _ := dp.Attributes.Value("op")
		status, _ := dp.Attributes.Value("status")
		statuses[op.AsString()] = status.AsString()
	}

	assert.Equal(t, map[string]string{
		"GET /v1/paths":   observability.StatusOK,
		"GET /v1/issues":  observability.StatusRejected,
		"POST /v1/report": observability.StatusError,
	}, statuses)

	errs := findMetric(rm, "scanreport.errors.total")
	require.NotNil(t, errs)

	errSum, ok := errs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errSum.DataPoints, 1)

	op, _ := errSum.DataPoints[0].Attributes.Value("op")
	assert.Equal(t, "POST /v1/report", op.AsString())
}
