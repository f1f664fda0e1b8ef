package reconciliation

import (
	"github.com/smallbiznis/marketpay/internal/reconciliation/repository"
	"github.com/smallbiznis/marketpay/internal/reconciliation/service"
	"github.com/smallbiznis/marketpay/internal/reconciliation/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewEngine),
	fx.Provide(webhook.NewService),
)
