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
	"github.com/smallbiznis/marketpay/internal/reconciliation"
	"github.com/smallbiznis/marketpay/internal/scheduler"
	"github.com/smallbiznis/marketpay/internal/server"
	"github.com/smallbiznis/marketpay/internal/shop"
	"github.com/smallbiznis/marketpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		authorization.Module,
		providers.Module,
		gateway.Module,

		// Functional Domains
		shop.Module,
		payable.Module,
		cascade.Module,
		reconciliation.Module,
		scheduler.Module,

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
