package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/subkit/internal/observability/logger"
	"github.com/smallbiznis/subkit/internal/observability/metrics"
	"github.com/smallbiznis/subkit/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.logger,
		Config.tracing,
		Config.metrics,
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
		logger.New,
		tracing.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// the provider is registered globally; nothing else asks for it
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
