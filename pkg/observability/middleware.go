package observability

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusWriter records the first status code written through it.
type statusWriter struct {
	http.ResponseWriter

	code int
}

func newStatusWriter(rw http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: rw}
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.code == 0 {
		sw.code = code
	}

	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(buf []byte) (int, error) {
	if sw.code == 0 {
		sw.code = http.StatusOK
	}

	n, err := sw.ResponseWriter.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}

	return n, nil
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// status is the recorded code; a handler that wrote nothing answered 200.
func (sw *statusWriter) status() int {
	if sw.code == 0 {
		return http.StatusOK
	}

	return sw.code
}

// HTTPMiddleware starts a server span per request, continuing a W3C trace
// from the request headers. Once next has routed the request the span is
// renamed to the matched ServeMux pattern, so ids in paths do not become span
// names. Responses of 500 and above mark the span as failed.
func HTTPMiddleware(tracer trace.Tracer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		parent := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))

		ctx, span := tracer.Start(parent, hr.Method+" "+hr.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(hr.Method),
				semconv.URLPath(hr.URL.Path),
			),
		)
		defer span.End()

		routed := hr.WithContext(ctx)
		sw := newStatusWriter(rw)
		next.ServeHTTP(sw, routed)

		if routed.Pattern != "" {
			span.SetName(routed.Pattern)
			span.SetAttributes(semconv.HTTPRoute(routed.Pattern))
		}

		code := sw.status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(code))

		if code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(code))
		}
	})
}

// MetricsMiddleware records RED metrics for next under operation op. Client
// errors count as rejected, server errors as failed.
func MetricsMiddleware(red *REDMetrics, op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		done := red.TrackInflight(hr.Context(), op)
		defer done()

		start := time.Now()
		sw := newStatusWriter(rw)
		next.ServeHTTP(sw, hr)

		red.RecordRequest(hr.Context(), op, statusOf(sw.status()), time.Since(start))
	})
}

func statusOf(code int) string {
	switch {
	case code >= http.StatusInternalServerError:
		return StatusError
	case code >= http.StatusBadRequest:
		return StatusRejected
	default:
		return StatusOK
	}
}
