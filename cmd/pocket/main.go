package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocket/internal/config"
	"github.com/samcharles93/pocket/internal/logger"
)

// fileConfig is the config file read before any subcommand runs.
var fileConfig config.Config

func main() {
	app := &cli.Command{
		Name:   "pocket",
		Usage:  "On-device quantized language model runtime",
		Flags:  loggingFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			inspectCmd(),
			serveCmd(),
			genCmd(),
			listModelsCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup reads the config file and installs the logger on ctx.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return ctx, err
	}
	fileConfig = cfg
	applyLoggingConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.Build(os.Stderr, logFormat, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}
