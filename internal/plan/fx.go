package plan

import (
	"github.com/smallbiznis/subkit/internal/plan/repository"
	"github.com/smallbiznis/subkit/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
