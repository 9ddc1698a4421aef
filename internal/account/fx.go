package account

import (
	"github.com/smallbiznis/subkit/internal/account/repository"
	"github.com/smallbiznis/subkit/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
