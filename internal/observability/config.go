package observability

import (
	"strings"

	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/observability/logger"
	"github.com/smallbiznis/subkit/internal/observability/metrics"
	"github.com/smallbiznis/subkit/internal/observability/tracing"
)

// Config is the slice of application config that logging, tracing and
// metrics care about.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	Otel config.OtelConfig
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "subkit"
	}
	return Config{
		ServiceName: serviceName,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		LogLevel:    cfg.LogLevel,
		LogFormat:   cfg.LogFormat,
		Otel:        cfg.Otel,
	}
}

// Debug turns on verbose logs, stack traces and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) logger() logger.Config {
	return logger.Config{
		ServiceName:  c.ServiceName,
		Environment:  c.Environment,
		Version:      c.Version,
		Level:        c.LogLevel,
		Format:       c.LogFormat,
		StackOnError: c.Debug(),
	}
}

func (c Config) tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.Otel.Enabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.Otel.Endpoint,
		ExporterProtocol: c.Otel.Protocol,
		SamplingRatio:    c.Otel.SamplingRatio,
	}
}

func (c Config) metrics() metrics.Config {
	return metrics.Config{ServiceName: c.ServiceName, Environment: c.Environment}
}
