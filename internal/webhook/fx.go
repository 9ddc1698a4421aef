package webhook

import (
	billingdomain "github.com/smallbiznis/subkit/internal/billing/domain"
	"github.com/smallbiznis/subkit/internal/webhook/domain"
	"github.com/smallbiznis/subkit/internal/webhook/repository"
	"github.com/smallbiznis/subkit/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.New),
	fx.Provide(func(billing billingdomain.Service) domain.Reconciler { return billing }),
	fx.Provide(service.New),
)
