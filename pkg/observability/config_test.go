package observability_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()

	assert.Equal(t, "scanreport", cfg.ServiceName)
	assert.Equal(t, observability.ModeCLI, cfg.Mode)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, observability.LogFormatText, cfg.LogFormat)
	assert.Nil(t, cfg.LogOutput)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Nil(t, cfg.OTLPHeaders)
	assert.False(t, cfg.TraceVerbose)
	assert.False(t, cfg.Prometheus)
}
