package subscription

import (
	"github.com/smallbiznis/subkit/internal/subscription/repository"
	"github.com/smallbiznis/subkit/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.ledger",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewLedger),
)
