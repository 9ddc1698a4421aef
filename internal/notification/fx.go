package notification

import (
	"github.com/smallbiznis/subkit/internal/notification/render"
	"github.com/smallbiznis/subkit/internal/notification/repository"
	"github.com/smallbiznis/subkit/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.New),
	fx.Provide(render.New),
	fx.Provide(service.NewDispatcher),
	fx.Provide(service.NewWorker),
	fx.Invoke(service.RegisterWorker),
)
