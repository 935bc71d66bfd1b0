package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusExporter is an OTel metric reader backed by its own Prometheus
// registry.
type PrometheusExporter struct {
	registry *prometheus.Registry
	reader   sdkmetric.Reader
}

// NewPrometheusExporter creates an exporter with a fresh registry so that
// several exporters can coexist in one process (tests, embedded servers).
func NewPrometheusExporter() (*PrometheusExporter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &PrometheusExporter{registry: registry, reader: exporter}, nil
}

// Reader returns the reader to attach to a MeterProvider.
func (p *PrometheusExporter) Reader() sdkmetric.Reader {
	return p.reader
}

// Handler serves the /metrics scrape endpoint.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
