package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikasazwj/warehouse-inventory-system/internal/api"
	"github.com/mikasazwj/warehouse-inventory-system/internal/logging"
	"github.com/mikasazwj/warehouse-inventory-system/internal/observability"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr     string
		statsRefresh time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sweep loop and serve /metrics, /stats and /healthz",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := observability.Init(ctx, cfg.TracingOptions()); err != nil {
				return err
			}
			defer observability.Shutdown(context.Background())

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if httpAddr == "" {
				httpAddr = cfg.Daemon.HTTPAddr
			}

			a.cache.Start(ctx)
			logging.Op().Info("cache started",
				"driver", cfg.Durable.Driver,
				"namespace", a.cache.Namespace(),
				"sweep_interval", cfg.Cache.SweepInterval,
			)

			httpServer := api.StartHTTPServer(httpAddr, api.ServerConfig{
				Cache:   a.cache,
				Store:   a.store,
				Metrics: a.metrics,
			})

			if a.metrics != nil {
				go refreshGauges(ctx, a, statsRefresh)
			}

			<-ctx.Done()
			logging.Op().Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP address (default from config)")
	cmd.Flags().DurationVar(&statsRefresh, "stats-refresh", 30*time.Second, "How often entry gauges are refreshed")

	return cmd
}

// refreshGauges keeps the entry gauges current between /stats calls.
func refreshGauges(ctx context.Context, a *app, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		a.metrics.SetEntries(a.cache.Stats(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
