package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	app := &cli.Command{
		Name:  "listingsearch",
		Usage: "Property listing search service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Environment file loaded before reading configuration",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			serveCommand(logger),
			searchCommand(logger),
			migrateCommand(logger),
			backfillCommand(logger),
		},
		DefaultCommand: "serve",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}
