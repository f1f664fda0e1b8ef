package observability

import (
	"testing"

	"github.com/smallbiznis/marketpay/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigPrefersEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("OBSERVABILITY_PROBE_ROUTES", " /health , ,/ready")

	cfg := LoadConfig(config.Config{AppName: "marketpay", Environment: "production", OTLPEndpoint: "collector:4317"})

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, []string{"/health", "/ready"}, cfg.ProbeRoutes)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "production"})

	assert.Equal(t, "marketpay", cfg.ServiceName)
	assert.Equal(t, 100, cfg.LogSampleInitial)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, defaultProbeRoutes, cfg.ProbeRoutes)
}

func TestDebugFollowsEnvironment(t *testing.T) {
	cfg := Config{LogLevel: "info", Environment: "local"}
	assert.True(t, cfg.Debug())

	cfg.Environment = "production"
	assert.False(t, cfg.Debug())
}
