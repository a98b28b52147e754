package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/ethosn/cascadec/internal/apiserver"
	"github.com/ethosn/cascadec/internal/hwcaps"

	"github.com/urfave/cli/v3"
)

func serveCmd() *cli.Command {
	var (
		addr          string
		readTimeout   time.Duration
		ratePerSecond float64
		burst         int
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP compile service",
		Flags: append(loggingFlags(),
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
			&cli.Float64Flag{
				Name:        "rate",
				Usage:       "compile requests per second the server accepts across all clients (0 disables limiting)",
				Value:       10,
				Destination: &ratePerSecond,
			},
			&cli.IntFlag{
				Name:        "burst",
				Usage:       "burst size for the compile rate limiter",
				Value:       5,
				Destination: &burst,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := newLogger()

			caps := map[string]hwcaps.Caps{
				"Ethos78_4Tops_4PleRatio": hwcaps.Ethos78_4Tops_4PleRatio(),
				"Ethos78_1Tops_2PleRatio": hwcaps.Ethos78_1Tops_2PleRatio(),
			}
			server := apiserver.NewServer(caps, log, ratePerSecond, burst)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr)
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
