package main

import (
	"context"
	"os"

	"github.com/denzelpenzel/mcbridge/internal/app"
	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/config"
	"github.com/denzelpenzel/mcbridge/internal/logging"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()
	logger := logging.WithContext(ctx)

	a := cli.NewApp()
	a.Name = "mcbridge"
	a.Version = common.VersionString
	a.Flags = config.Flags()
	a.Usage = "memcached text protocol server"
	a.Description = "Serves the memcached text protocol from a local sharded store or a Redis deployment"
	a.Action = RunMcBridge
	a.Commands = []cli.Command{}

	err := a.Run(os.Args)
	if err != nil {
		logger.Fatal("Error running application", zap.Error(err))
	}
}

// RunMcBridge ... Application entry point
func RunMcBridge(c *cli.Context) error {
	cfg, err := config.NewConfig(c)
	if err != nil {
		return err
	}
	ctx := context.Background()

	// Init logger
	logging.New(cfg.Environment)
	logger := logging.WithContext(ctx)

	app, shutDown, err := app.NewMcBridgeApp(ctx, cfg)
	if err != nil {
		logger.Error("Error creating mcbridge application", zap.Error(err))
		return err
	}

	logger.Info("Starting mcbridge server")

	if err := app.Start(); err != nil {
		logger.Error("Error starting mcbridge server", zap.Error(err))
		shutDown()
		return err
	}

	app.ListenForShutdown(shutDown)
	logger.Debug("Waiting for all application threads to end")

	logger.Info("Successful mcbridge shutdown")
	return nil
}
