// Package main is the shelfscout command line: scan an audiobook library
// for low-quality items, reconcile local series against the commercial
// catalog, and manage the local cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mgrantham/shelfscout/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "shelfscout",
		Usage:   "Find audiobook upgrade candidates and missing series books",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level",
			},
			&cli.BoolFlag{
				Name:  "json-logs",
				Usage: "Emit structured JSON logs",
			},
		},
		Commands: []*cli.Command{
			upgradesCommand(),
			seriesCommand(),
			wishlistCommand(),
			suggestCommand(),
			cacheCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Get().Error("Command failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
