package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocket/internal/api"
	"github.com/samcharles93/pocket/internal/engine"
	"github.com/samcharles93/pocket/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		preload     []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.StringSliceFlag{
			Name:        "preload",
			Usage:       "models to load before serving (repeatable)",
			Destination: &preload,
		},
	}
	flags = append(flags, memoryFlags()...)
	flags = append(flags, samplingFlags()...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the engine over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, fileConfig, &addr)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			eng := engine.New(engineOptions(log, reg))
			for _, p := range preload {
				h, err := eng.LoadModel(p)
				if err != nil {
					return cli.Exit("error: preload "+p+": "+err.Error(), 1)
				}
				log.Info("preloaded model", "path", p, "handle", uint64(h))
			}

			server := api.NewServer(eng, reg, log.With("component", "api"))
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "ceiling", formatBytes(eng.SystemInfo().Ceiling))
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
