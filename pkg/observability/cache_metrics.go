package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const attrCache = "cache"

// CacheStatsProvider exposes cumulative cache counters.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
	CacheEntries() int64
}

// RegisterCacheMetrics registers observable gauges reporting the counters of
// every non-nil provider, labelled by its map key.
func RegisterCacheMetrics(mt metric.Meter, caches map[string]CacheStatsProvider) error {
	in := &instruments{meter: mt}

	hits := in.gauge(instCacheHits)
	misses := in.gauge(instCacheMisses)
	entries := in.gauge(instCacheEntries)

	if in.err != nil {
		return in.err
	}

	_, err := mt.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for name, c := range caches {
			if c == nil {
				continue
			}

			attrs := metric.WithAttributes(attribute.String(attrCache, name))
			o.ObserveInt64(hits, c.CacheHits(), attrs)
			o.ObserveInt64(misses, c.CacheMisses(), attrs)
			o.ObserveInt64(entries, c.CacheEntries(), attrs)
		}

		return nil
	}, hits, misses, entries)
	if err != nil {
		return fmt.Errorf("register cache callback: %w", err)
	}

	return nil
}
