package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/logoforge/internal/clock"
	"github.com/smallbiznis/logoforge/internal/config"
	"github.com/smallbiznis/logoforge/internal/migration"
	"github.com/smallbiznis/logoforge/internal/observability"
	"github.com/smallbiznis/logoforge/internal/scheduler"
	"github.com/smallbiznis/logoforge/internal/server"
	"github.com/smallbiznis/logoforge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP API and background jobs
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
