// Package api serves the cache admin HTTP endpoints of the wmscache daemon.
package api

import (
	"net/http"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/logging"
	"github.com/mikasazwj/warehouse-inventory-system/internal/metrics"
	"github.com/mikasazwj/warehouse-inventory-system/internal/observability"
)

// ServerConfig contains dependencies for the HTTP server
type ServerConfig struct {
	Cache   *cache.TieredCache
	Store   Pinger
	Metrics *metrics.PrometheusMetrics
}

// NewServeHandler builds the routed, traced handler.
func NewServeHandler(cfg ServerConfig) http.Handler {
	mux := http.NewServeMux()
	h := &Handler{
		Cache:   cfg.Cache,
		Store:   cfg.Store,
		Metrics: cfg.Metrics,
	}
	h.RegisterRoutes(mux)

	// Wrap with tracing middleware
	return observability.HTTPMiddleware(mux)
}

// StartHTTPServer creates and starts the HTTP server
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	server := &http.Server{
		Addr:    addr,
		Handler: NewServeHandler(cfg),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	logging.Op().Info("HTTP server listening", "addr", addr)
	return server
}
