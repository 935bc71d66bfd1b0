// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for every scanreport mode (CLI, MCP, HTTP server).
package observability

import (
	"io"
	"log/slog"
	"time"
)

// AppMode identifies the application execution mode.
type AppMode string

const (
	// ModeCLI is the CLI command execution mode.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server mode.
	ModeMCP AppMode = "mcp"
	// ModeServe is the HTTP server mode.
	ModeServe AppMode = "serve"
)

// LogFormat selects the slog handler.
type LogFormat string

// Log formats.
const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

const (
	defaultServiceName     = "scanreport"
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Environment is the deployment environment (e.g. "production", "dev").
	Environment string
	Mode        AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export: tracing is no-op and metrics are only kept when
	// Prometheus is set.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// SampleRatio is the root sampling ratio. Zero samples every root span.
	// OTEL_TRACES_SAMPLER overrides it.
	SampleRatio float64

	// TraceVerbose samples every trace, keeps per-flush spans and logs the
	// span attributes the attribute filter drops.
	TraceVerbose bool

	// Prometheus attaches a Prometheus reader to the meter provider and
	// exposes its scrape handler in Providers.MetricsHandler.
	Prometheus bool

	LogLevel  slog.Level
	LogFormat LogFormat
	// LogOutput receives log records; nil means stderr. MCP mode owns stdout.
	LogOutput io.Writer

	// ShutdownTimeout bounds the telemetry flush in Providers.Shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeCLI,
		LogLevel:        slog.LevelInfo,
		LogFormat:       LogFormatText,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
