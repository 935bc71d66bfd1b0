// Package config provides configuration loading and validation for scanreport.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

// Sentinel validation errors.
var (
	ErrInvalidBackend     = errors.New("invalid store backend")
	ErrMissingStorePath   = errors.New("sqlite backend requires store.path")
	ErrInvalidCodec       = errors.New("invalid store codec")
	ErrInvalidBatchSize   = errors.New("store batch size must be positive")
	ErrInvalidPerPage     = errors.New("default per page must be positive")
	ErrInvalidCacheSize   = errors.New("query cache entries must not be negative")
	ErrInvalidFragment    = errors.New("fragment size must be positive")
	ErrInvalidDepth       = errors.New("parser max depth must not be negative")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0, 1]")
	ErrInvalidAddr        = errors.New("server addr must be host:port")
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

const (
	configName = ".scanreport"
	configType = "yaml"
	envPrefix  = "SCANREPORT"
)

// Config holds all configuration for scanreport.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Query     QueryConfig     `mapstructure:"query"`
	Parser    ParserConfig    `mapstructure:"parser"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Server    ServerConfig    `mapstructure:"server"`
}

// StoreConfig selects and tunes the report store.
type StoreConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	Codec     string `mapstructure:"codec"`
	BatchSize int    `mapstructure:"batch_size"`
}

// QueryConfig holds query engine settings.
type QueryConfig struct {
	CacheEntries   int `mapstructure:"cache_entries"`
	DefaultPerPage int `mapstructure:"default_per_page"`
}

// ParserConfig holds streaming parser limits.
type ParserConfig struct {
	MaxDepth      int `mapstructure:"max_depth"`
	MaxTokenBytes int `mapstructure:"max_token_bytes"`
	FragmentSize  int `mapstructure:"fragment_size"`
	// SkipSchemaValidation disables JSON Schema checks of issue and operation records.
	SkipSchemaValidation bool `mapstructure:"skip_schema_validation"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Environment  string  `mapstructure:"environment"`
	Prometheus   bool    `mapstructure:"prometheus"`
	TraceVerbose bool    `mapstructure:"trace_verbose"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, .scanreport.yaml is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend:   DefaultStoreBackend,
			Path:      DefaultStorePath,
			Codec:     DefaultStoreCodec,
			BatchSize: DefaultStoreBatchSize,
		},
		Query: QueryConfig{
			CacheEntries:   DefaultQueryCacheEntries,
			DefaultPerPage: DefaultQueryPerPage,
		},
		Parser: ParserConfig{
			MaxDepth:      DefaultParserMaxDepth,
			MaxTokenBytes: DefaultParserMaxTokenBytes,
			FragmentSize:  DefaultParserFragmentSize,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
			IdleTimeout:  DefaultServerIdleTimeout,
		},
	}
}

func setDefaults(viperCfg *viper.Viper) {
	def := Default()

	viperCfg.SetDefault("store.backend", def.Store.Backend)
	viperCfg.SetDefault("store.path", def.Store.Path)
	viperCfg.SetDefault("store.codec", def.Store.Codec)
	viperCfg.SetDefault("store.batch_size", def.Store.BatchSize)

	viperCfg.SetDefault("query.cache_entries", def.Query.CacheEntries)
	viperCfg.SetDefault("query.default_per_page", def.Query.DefaultPerPage)

	viperCfg.SetDefault("parser.max_depth", def.Parser.MaxDepth)
	viperCfg.SetDefault("parser.max_token_bytes", def.Parser.MaxTokenBytes)
	viperCfg.SetDefault("parser.fragment_size", def.Parser.FragmentSize)
	viperCfg.SetDefault("parser.skip_schema_validation", false)

	viperCfg.SetDefault("logging.level", def.Logging.Level)
	viperCfg.SetDefault("logging.format", def.Logging.Format)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.prometheus", false)
	viperCfg.SetDefault("telemetry.trace_verbose", false)

	viperCfg.SetDefault("server.addr", def.Server.Addr)
	viperCfg.SetDefault("server.read_timeout", def.Server.ReadTimeout)
	viperCfg.SetDefault("server.write_timeout", def.Server.WriteTimeout)
	viperCfg.SetDefault("server.idle_timeout", def.Server.IdleTimeout)
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			return ErrMissingStorePath
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Store.Backend)
	}

	switch c.Store.Codec {
	case store.CodecGob, store.CodecJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCodec, c.Store.Codec)
	}

	if c.Store.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, c.Store.BatchSize)
	}

	if c.Query.DefaultPerPage <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPerPage, c.Query.DefaultPerPage)
	}

	if c.Query.CacheEntries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, c.Query.CacheEntries)
	}

	if c.Parser.FragmentSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFragment, c.Parser.FragmentSize)
	}

	if c.Parser.MaxDepth < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDepth, c.Parser.MaxDepth)
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	if c.Server.Addr != "" && !strings.Contains(c.Server.Addr, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidAddr, c.Server.Addr)
	}

	return nil
}
