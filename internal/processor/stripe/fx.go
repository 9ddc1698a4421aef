package stripe

import (
	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/processor"
	"go.uber.org/fx"
)

var Module = fx.Module("processor.stripe",
	fx.Provide(
		func(cfg config.Config) config.ProcessorConfig { return cfg.Processor },
		fx.Annotate(NewClient, fx.As(new(processor.Client))),
		fx.Annotate(
			func(cfg config.ProcessorConfig) *EventParser { return NewEventParser(cfg.WebhookSecret) },
			fx.As(new(processor.EventParser)),
		),
	),
)
