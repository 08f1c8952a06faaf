package observability

import (
	"testing"

	"github.com/smallbiznis/warrantyhub/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "test", AppVersion: "1.2.3"})
	assert.Equal(t, "warrantyhub", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			DeploymentEnv: "staging",
			LogLevel:      "warn",
			OtlpProtocol:  "http",
			SamplingRatio: 4,
			OtelEnabled:   true,
		},
	})
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}
