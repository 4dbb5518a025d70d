package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/config"
	"github.com/mikasazwj/warehouse-inventory-system/internal/durable"
	"github.com/mikasazwj/warehouse-inventory-system/internal/logging"
	"github.com/mikasazwj/warehouse-inventory-system/internal/metrics"
)

var (
	configPath string
	logLevel   string
	driver     string

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wmscache",
		Short: "wmscache - tiered response cache for the warehouse dashboard",
		Long:  "Inspect and serve the warehouse dashboard cache backed by memory and a durable store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = loadConfig(); err != nil {
				return err
			}
			logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("WMS_CONFIG"), "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "Durable driver override (memory, file, redis, postgres)")

	rootCmd.AddCommand(
		serveCmd(),
		getCmd(),
		setCmd(),
		deleteCmd(),
		clearCmd(),
		sweepCmd(),
		statsCmd(),
		policiesCmd(),
		warmCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if driver != "" {
		cfg.Durable.Driver = driver
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	store   durable.Store
	cache   *cache.TieredCache
	metrics *metrics.PrometheusMetrics
}

func (a *app) Close() error {
	a.cache.Stop()
	return a.store.Close()
}

func openApp(ctx context.Context) (*app, error) {
	var pm *metrics.PrometheusMetrics
	if cfg.Metrics.Enabled {
		pm = metrics.NewPrometheus(cfg.Metrics.Namespace, nil)
	}

	opts := cfg.DurableOptions()
	if pm != nil {
		opts.OnBreakerChange = pm.RecordBreakerTransition
	}
	store, err := durable.Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	policies, err := cfg.PolicyTable()
	if err != nil {
		store.Close()
		return nil, err
	}
	cacheOpts := []cache.Option{
		cache.WithPolicies(policies),
		cache.WithNamespace(cfg.Cache.Namespace),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
		cache.WithSingleFlight(cfg.Cache.SingleFlight),
	}
	if pm != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(pm))
	}

	return &app{
		cfg:     cfg,
		store:   store,
		cache:   cache.New(store, cacheOpts...),
		metrics: pm,
	}, nil
}
