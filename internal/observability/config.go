package observability

import (
	"strings"

	"github.com/smallbiznis/warrantyhub/internal/config"
)

const defaultServiceName = "warrantyhub"

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	environment := cfg.Telemetry.DeploymentEnv
	if environment == "" {
		environment = strings.TrimSpace(cfg.Environment)
	}
	level := cfg.Telemetry.LogLevel
	if level == "" {
		level = "info"
	}
	format := cfg.Telemetry.LogFormat
	if format == "" {
		format = "json"
	}
	protocol := cfg.Telemetry.OtlpProtocol
	if protocol != "http" && protocol != "http/protobuf" {
		protocol = "grpc"
	}

	ratio := cfg.Telemetry.SamplingRatio
	switch {
	case ratio < 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          environment,
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             level,
		LogFormat:            format,
		OtelEnabled:          cfg.Telemetry.OtelEnabled,
		OtelExporterEndpoint: cfg.Telemetry.OtlpEndpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug enables verbose logs and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
