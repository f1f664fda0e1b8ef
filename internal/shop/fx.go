package shop

import (
	"github.com/smallbiznis/marketpay/internal/shop/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("shop",
	fx.Provide(repository.Provide),
)
