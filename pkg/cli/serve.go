package cli

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telemetry-lab/magpie/pkg/cli/config"
	server "github.com/telemetry-lab/magpie/pkg/controller/http"
	websocket_controller "github.com/telemetry-lab/magpie/pkg/controller/websocket"
	"github.com/telemetry-lab/magpie/pkg/repository/memory"
	"github.com/telemetry-lab/magpie/pkg/service/archive"
	"github.com/telemetry-lab/magpie/pkg/usecase"
	"github.com/telemetry-lab/magpie/pkg/utils/logging"
	"github.com/telemetry-lab/magpie/pkg/utils/metrics"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var (
		addr       string
		archiveCfg config.Archive
		sentryCfg  config.Sentry
	)

	flags := joinFlags(
		[]cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Aliases:     []string{"a"},
				Sources:     cli.EnvVars("MAGPIE_ADDR"),
				Usage:       "Listen address (default: 127.0.0.1:8765)",
				Value:       "127.0.0.1:8765",
				Destination: &addr,
			},
		},
		archiveCfg.Flags(),
		sentryCfg.Flags(),
	)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run recording server",
		Flags:   flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logging.Default().Info("starting server",
				"addr", addr,
				"archive", archiveCfg,
				"sentry", sentryCfg,
			)

			if err := sentryCfg.Configure(); err != nil {
				return err
			}
			defer sentryCfg.Flush()

			alloc, err := archiveCfg.Configure()
			if err != nil {
				return err
			}

			mtx := metrics.New()
			rec := usecase.New(memory.New(), alloc, archive.NewWriter(),
				usecase.WithMetrics(mtx))

			wsHub := websocket_controller.NewHub(ctx, websocket_controller.WithMetrics(mtx))
			wsHandler := websocket_controller.NewHandler(wsHub, rec)

			httpServer := http.Server{
				Addr: addr,
				Handler: server.New(
					server.WithWebSocketHandler(wsHandler),
					server.WithMetricsHandler(mtx.Handler()),
				),
				ReadTimeout:       30 * time.Second,
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext: func(l net.Listener) context.Context {
					return ctx
				},
			}

			errCh := make(chan error, 1)
			go func() {
				defer close(errCh)
				if err := httpServer.ListenAndServe(); err != nil {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err

			case sig := <-sigCh:
				logging.From(ctx).Info("shutting down", "signal", sig.String())

				// Closing the hub drops the clients, then the sweep
				// flushes whatever sessions are still live.
				if err := wsHub.Close(); err != nil {
					logging.From(ctx).Error("failed to close WebSocket hub", "error", err)
				}
				if n := rec.SweepAll(ctx); n > 0 {
					logging.From(ctx).Info("archived sessions on shutdown", "count", n)
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
		},
	}
}
