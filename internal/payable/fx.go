package payable

import (
	"github.com/smallbiznis/marketpay/internal/payable/repository"
	"github.com/smallbiznis/marketpay/internal/payable/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payable",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
