package observability

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Span names emitted once per flushed fragment or store batch. A large load
// produces thousands of them, so they are dropped unless Config.TraceVerbose
// is set.
const (
	SpanSessionFlush = "scanreport.session.flush"
	SpanStoreBatch   = "scanreport.store.batch"
)

// hotPathSpans lists the span names NewFilteringTracerProvider drops.
var hotPathSpans = []string{SpanSessionFlush, SpanStoreBatch}

// gatedProvider hands out tracers that start no-op spans for dropped names.
// A no-op span keeps the parent span context, so children of a dropped span
// still join the load trace.
type gatedProvider struct {
	embedded.TracerProvider

	inner   trace.TracerProvider
	dropped func(span string) bool
}

// NewFilteringTracerProvider wraps inner so that the per-fragment and
// per-batch spans are replaced with no-op spans. Extra names are dropped as
// well.
func NewFilteringTracerProvider(inner trace.TracerProvider, extra ...string) trace.TracerProvider {
	names := slices.Concat(hotPathSpans, extra)

	return &gatedProvider{
		inner:   inner,
		dropped: func(span string) bool { return slices.Contains(names, span) },
	}
}

// Tracer implements trace.TracerProvider.
func (p *gatedProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return &gatedTracer{inner: p.inner.Tracer(name, opts...), dropped: p.dropped}
}

type gatedTracer struct {
	embedded.Tracer

	inner   trace.Tracer
	dropped func(span string) bool
}

func (t *gatedTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t.dropped(name) {
		return nooptrace.Tracer{}.Start(ctx, name, opts...)
	}

	return t.inner.Start(ctx, name, opts...)
}
