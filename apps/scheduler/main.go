package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketpay/internal/authorization"
	"github.com/smallbiznis/marketpay/internal/cascade"
	"github.com/smallbiznis/marketpay/internal/clock"
	"github.com/smallbiznis/marketpay/internal/config"
	"github.com/smallbiznis/marketpay/internal/gateway"
	"github.com/smallbiznis/marketpay/internal/migration"
	"github.com/smallbiznis/marketpay/internal/observability"
	"github.com/smallbiznis/marketpay/internal/payable"
	"github.com/smallbiznis/marketpay/internal/providers"
	"github.com/smallbiznis/marketpay/internal/ratelimit"
	"github.com/smallbiznis/marketpay/internal/scheduler"
	"github.com/smallbiznis/marketpay/internal/shop"
	"github.com/smallbiznis/marketpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.Scheduler.Enabled = true
			return cfg
		}),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services required by scheduler
		ratelimit.Module,
		authorization.Module,
		providers.Module,
		gateway.Module,
		shop.Module,
		payable.Module,
		cascade.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		panic(err)
	}
	return node
}
