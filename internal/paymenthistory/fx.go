package paymenthistory

import (
	"github.com/smallbiznis/subkit/internal/paymenthistory/repository"
	"github.com/smallbiznis/subkit/internal/paymenthistory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymenthistory.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
