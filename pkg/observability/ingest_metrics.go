package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrRecord  = "record"
	attrOutcome = "outcome"

	recordIssue     = "issue"
	recordOperation = "operation"
)

// LoadOutcome is how a load ended.
type LoadOutcome string

// Load outcomes.
const (
	LoadFinished  LoadOutcome = "finished"
	LoadFailed    LoadOutcome = "failed"
	LoadCancelled LoadOutcome = "cancelled"
)

// IngestMetrics holds OTel instruments for report ingestion.
type IngestMetrics struct {
	fragments     metric.Int64Counter
	bytes         metric.Int64Counter
	records       metric.Int64Counter
	warnings      metric.Int64Counter
	loads         metric.Int64Counter
	flushDuration metric.Float64Histogram
	loadDuration  metric.Float64Histogram
}

// IngestStats are the counters of one completed load.
type IngestStats struct {
	Fragments  int64
	Bytes      int64
	Issues     int64
	Operations int64
	Warnings   int64
	Duration   time.Duration
	Outcome    LoadOutcome
}

// NewIngestMetrics creates ingestion instruments from the given meter.
func NewIngestMetrics(mt metric.Meter) (*IngestMetrics, error) {
	in := &instruments{meter: mt}

	im := &IngestMetrics{
		fragments:     in.counter(instFragments),
		bytes:         in.counter(instBytes),
		records:       in.counter(instRecords),
		warnings:      in.counter(instWarnings),
		loads:         in.counter(instLoads),
		flushDuration: in.histogram(instFlushDuration),
		loadDuration:  in.histogram(instLoadDuration),
	}

	if in.err != nil {
		return nil, in.err
	}

	return im, nil
}

// RecordFlush records the duration of one batch flush.
// Safe to call on a nil receiver (no-op).
func (im *IngestMetrics) RecordFlush(ctx context.Context, d time.Duration) {
	if im == nil {
		return
	}

	im.flushDuration.Record(ctx, d.Seconds())
}

// RecordLoad records the statistics of a completed load.
// Safe to call on a nil receiver (no-op).
func (im *IngestMetrics) RecordLoad(ctx context.Context, stats IngestStats) {
	if im == nil {
		return
	}

	im.fragments.Add(ctx, stats.Fragments)
	im.bytes.Add(ctx, stats.Bytes)
	im.records.Add(ctx, stats.Issues, metric.WithAttributes(attribute.String(attrRecord, recordIssue)))
	im.records.Add(ctx, stats.Operations, metric.WithAttributes(attribute.String(attrRecord, recordOperation)))
	im.warnings.Add(ctx, stats.Warnings)

	outcome := metric.WithAttributes(attribute.String(attrOutcome, string(stats.Outcome)))
	im.loads.Add(ctx, 1, outcome)
	im.loadDuration.Record(ctx, stats.Duration.Seconds(), outcome)
}
