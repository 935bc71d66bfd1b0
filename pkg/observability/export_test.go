package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ProbeBuildResource exposes buildResource for testing.
func ProbeBuildResource(cfg Config) (*resource.Resource, error) {
	return buildResource(cfg)
}

// ProbeShutdownTimeout exposes the flush bound Init applies.
func ProbeShutdownTimeout(cfg Config) time.Duration {
	return shutdownTimeoutOf(cfg)
}

// ProbeSamplerSpan reports whether a root span started under the sampler
// selected for cfg is exported.
func ProbeSamplerSpan(cfg Config) bool {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter), sdktrace.WithSampler(selectSampler(cfg)))

	_, span := tp.Tracer("probe").Start(context.Background(), "scanreport.session.load")
	span.End()

	// Shutdown resets the in-memory exporter.
	sampled := len(exporter.GetSpans()) > 0
	if err := tp.Shutdown(context.Background()); err != nil {
		return false
	}

	return sampled
}
