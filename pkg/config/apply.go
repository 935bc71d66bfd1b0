package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/session"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

// SlogLevel parses the configured level name.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(strings.ToUpper(l.Level)))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}

	return level, nil
}

// Observability builds the observability configuration for the given mode.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.Mode = mode
	cfg.ServiceVersion = version
	cfg.Environment = c.Telemetry.Environment
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	cfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	cfg.SampleRatio = c.Telemetry.SampleRatio
	cfg.Prometheus = c.Telemetry.Prometheus
	cfg.TraceVerbose = c.Telemetry.TraceVerbose
	cfg.LogFormat = observability.LogFormat(c.Logging.Format)

	if level, err := c.Logging.SlogLevel(); err == nil {
		cfg.LogLevel = level
	}

	return cfg
}

// NewStore creates the configured store. The store is not opened.
func (c *Config) NewStore() (store.Store, error) {
	codec, err := store.CodecByName(c.Store.Codec)
	if err != nil {
		return nil, err
	}

	opts := store.Options{BatchSize: c.Store.BatchSize, Codec: codec}

	switch c.Store.Backend {
	case BackendMemory:
		return store.NewMemory(opts), nil
	case BackendSQLite:
		return store.NewSQLite(c.Store.Path, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackend, c.Store.Backend)
	}
}

// SessionOptions returns the ingestion settings; logging, tracing and metrics
// are left to the caller.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		BatchSize:            c.Store.BatchSize,
		MaxDepth:             c.Parser.MaxDepth,
		MaxTokenBytes:        c.Parser.MaxTokenBytes,
		SkipSchemaValidation: c.Parser.SkipSchemaValidation,
	}
}
