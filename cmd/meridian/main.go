package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/clock"
	"github.com/craftbase/meridian/internal/config"
	"github.com/craftbase/meridian/internal/logger"
	"github.com/craftbase/meridian/internal/migration"
	"github.com/craftbase/meridian/internal/scheduler"
	"github.com/craftbase/meridian/internal/server"
	"github.com/craftbase/meridian/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

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
