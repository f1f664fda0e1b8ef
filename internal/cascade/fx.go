package cascade

import (
	"context"

	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
	"github.com/smallbiznis/marketpay/internal/cascade/repository"
	"github.com/smallbiznis/marketpay/internal/cascade/service"
	"github.com/smallbiznis/marketpay/internal/providers/email"
	"go.uber.org/fx"
)

var Module = fx.Module("cascade",
	fx.Provide(repository.Provide),
	fx.Provide(func(n *email.Notifier) cascadedomain.Notifier { return n }),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) cascadedomain.Service { return s }),
	fx.Invoke(func(lc fx.Lifecycle, s *service.Service) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return s.Drain(ctx)
			},
		})
	}),
)
