package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketpay/internal/authorization"
	"github.com/smallbiznis/marketpay/internal/cascade"
	"github.com/smallbiznis/marketpay/internal/clock"
	"github.com/smallbiznis/marketpay/internal/config"
	"github.com/smallbiznis/marketpay/internal/gateway"
	"github.com/smallbiznis/marketpay/internal/observability"
	"github.com/smallbiznis/marketpay/internal/payable"
	"github.com/smallbiznis/marketpay/internal/providers"
	"github.com/smallbiznis/marketpay/internal/ratelimit"
	"github.com/smallbiznis/marketpay/internal/reconciliation"
	"github.com/smallbiznis/marketpay/internal/server"
	"github.com/smallbiznis/marketpay/internal/shop"
	"github.com/smallbiznis/marketpay/pkg/db"
	"go.uber.org/fx"
)

// API-only process: webhooks and the payables API, no background jobs.
// Cascades left pending by a crash are picked up by the scheduler worker.
func main() {
	app := fx.New(
		config.Module,
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.DBAutoMigrate = false
			return cfg
		}),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		ratelimit.Module,
		authorization.Module,
		providers.Module,
		gateway.Module,
		shop.Module,
		payable.Module,
		cascade.Module,
		reconciliation.Module,

		server.Module,
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
