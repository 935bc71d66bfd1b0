package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// instrument describes one OTel instrument of the scanreport catalog.
type instrument struct {
	name   string
	desc   string
	unit   string
	bounds []float64
}

// durationBuckets covers 1ms to 300s: page queries are milliseconds,
// loads of large reports take minutes.
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// flushBuckets covers 1ms to 10s for a single batch write.
var flushBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Request (RED) instruments, shared by the CLI, HTTP and MCP adapters.
var (
	instRequests = instrument{"scanreport.requests.total", "Requests by operation and status", "{request}", nil}
	instDuration = instrument{"scanreport.request.duration.seconds", "Request duration", "s", durationBuckets}
	instErrors   = instrument{"scanreport.errors.total", "Failed requests by operation", "{error}", nil}
	instInflight = instrument{"scanreport.inflight.requests", "Requests in progress", "{request}", nil}
)

// Ingestion instruments.
var (
	instFragments     = instrument{"scanreport.ingest.fragments.total", "Report fragments received", "{fragment}", nil}
	instBytes         = instrument{"scanreport.ingest.bytes.total", "Report bytes received", "By", nil}
	instRecords       = instrument{"scanreport.ingest.records.total", "Records stored by kind", "{record}", nil}
	instWarnings      = instrument{"scanreport.ingest.warnings.total", "Field-level warnings raised while mapping", "{warning}", nil}
	instLoads         = instrument{"scanreport.ingest.loads.total", "Loads by outcome", "{load}", nil}
	instFlushDuration = instrument{"scanreport.ingest.flush.duration.seconds", "Duration of one batch flush", "s", flushBuckets}
	instLoadDuration  = instrument{"scanreport.ingest.load.duration.seconds", "Duration of a whole load", "s", durationBuckets}
)

// Ordering cache instruments.
var (
	instCacheHits    = instrument{"scanreport.cache.hits", "Cache hits by cache", "{hit}", nil}
	instCacheMisses  = instrument{"scanreport.cache.misses", "Cache misses by cache", "{miss}", nil}
	instCacheEntries = instrument{"scanreport.cache.entries", "Cached entries by cache", "{entry}", nil}
)

// instruments creates catalog instruments on one meter and keeps the first
// creation error, so a constructor checks err once.
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) counter(def instrument) metric.Int64Counter {
	c, err := in.meter.Int64Counter(def.name, metric.WithDescription(def.desc), metric.WithUnit(def.unit))
	in.keep(def, err)

	return c
}

func (in *instruments) histogram(def instrument) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(def.desc), metric.WithUnit(def.unit)}
	if len(def.bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(def.bounds...))
	}

	h, err := in.meter.Float64Histogram(def.name, opts...)
	in.keep(def, err)

	return h
}

func (in *instruments) upDown(def instrument) metric.Int64UpDownCounter {
	c, err := in.meter.Int64UpDownCounter(def.name, metric.WithDescription(def.desc), metric.WithUnit(def.unit))
	in.keep(def, err)

	return c
}

func (in *instruments) gauge(def instrument) metric.Int64ObservableGauge {
	g, err := in.meter.Int64ObservableGauge(def.name, metric.WithDescription(def.desc), metric.WithUnit(def.unit))
	in.keep(def, err)

	return g
}

func (in *instruments) keep(def instrument, err error) {
	if err != nil && in.err == nil {
		in.err = fmt.Errorf("create instrument %s: %w", def.name, err)
	}
}
