package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/lock"
	"github.com/smallbiznis/subkit/internal/migration"
	"github.com/smallbiznis/subkit/internal/observability"
	"github.com/smallbiznis/subkit/internal/processor/stripe"
	"github.com/smallbiznis/subkit/internal/providers/email"
	"github.com/smallbiznis/subkit/internal/scheduler"
	"github.com/smallbiznis/subkit/internal/server"
	"github.com/smallbiznis/subkit/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// External providers
		stripe.Module,
		email.Module,

		// Functional Domains
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
