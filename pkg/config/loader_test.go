package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/scanreport/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".scanreport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, config.Default(), *cfg)
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, config.DefaultStorePath, cfg.Store.Path)
	assert.Equal(t, config.DefaultQueryPerPage, cfg.Query.DefaultPerPage)
	assert.Equal(t, config.DefaultParserFragmentSize, cfg.Parser.FragmentSize)
	assert.False(t, cfg.Telemetry.Prometheus)
}

func TestLoadConfig_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
store:
  backend: memory
  codec: json
  batch_size: 50
query:
  cache_entries: 8
  default_per_page: 25
parser:
  max_depth: 64
  fragment_size: 4096
  skip_schema_validation: true
logging:
  level: debug
  format: json
telemetry:
  otlp_endpoint: "localhost:4317"
  otlp_insecure: true
  sample_ratio: 0.25
  environment: staging
  prometheus: true
server:
  addr: ":9090"
  read_timeout: 5s
  idle_timeout: 2m
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, config.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "json", cfg.Store.Codec)
	assert.Equal(t, 50, cfg.Store.BatchSize)
	assert.Equal(t, 8, cfg.Query.CacheEntries)
	assert.Equal(t, 25, cfg.Query.DefaultPerPage)
	assert.Equal(t, 64, cfg.Parser.MaxDepth)
	assert.Equal(t, 4096, cfg.Parser.FragmentSize)
	assert.True(t, cfg.Parser.SkipSchemaValidation)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.OTLPInsecure)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-9)
	assert.Equal(t, "staging", cfg.Telemetry.Environment)
	assert.True(t, cfg.Telemetry.Prometheus)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, config.DefaultServerWriteTimeout, cfg.Server.WriteTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Server.IdleTimeout)
}

func TestLoadConfig_PartialConfig_MergesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, "query:\n  default_per_page: 5\n"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Query.DefaultPerPage)
	assert.Equal(t, config.DefaultQueryCacheEntries, cfg.Query.CacheEntries)
	assert.Equal(t, config.DefaultStoreBatchSize, cfg.Store.BatchSize)
}

func TestLoadConfig_UnknownKeys_NoError(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "unknown:\n  key: 1\n"))
	require.NoError(t, err)
}

func TestLoadConfig_MalformedYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "store: [unterminated\n"))
	require.Error(t, err)
}

func TestLoadConfig_InvalidValue_ReturnsSentinel(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "store:\n  backend: redis\n"))
	require.ErrorIs(t, err, config.ErrInvalidBackend)

	_, err = config.LoadConfig(writeConfig(t, "telemetry:\n  sample_ratio: 2\n"))
	require.ErrorIs(t, err, config.ErrInvalidSampleRatio)
}

func TestLoadConfig_ExplicitPath_NotFound_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SCANREPORT_STORE_BACKEND", "memory")
	t.Setenv("SCANREPORT_QUERY_DEFAULT_PER_PAGE", "7")
	t.Setenv("SCANREPORT_SERVER_READ_TIMEOUT", "3s")

	cfg, err := config.LoadConfig(writeConfig(t, "query:\n  default_per_page: 30\n"))
	require.NoError(t, err)

	assert.Equal(t, config.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 7, cfg.Query.DefaultPerPage)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
}
