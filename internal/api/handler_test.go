package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/durable"
	"github.com/mikasazwj/warehouse-inventory-system/internal/metrics"
)

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, pinger Pinger) (*httptest.Server, *cache.TieredCache) {
	t.Helper()
	store := durable.NewMapStore(0)
	if pinger == nil {
		pinger = store
	}
	pm := metrics.NewPrometheus("wms", nil)
	c := cache.New(store, cache.WithObserver(pm))
	srv := httptest.NewServer(NewServeHandler(ServerConfig{Cache: c, Store: pinger, Metrics: pm}))
	t.Cleanup(srv.Close)
	return srv, c
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	if resp := do(t, "GET", srv.URL+"/healthz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	down, _ := newTestServer(t, downStore{})
	if resp := do(t, "GET", down.URL+"/healthz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz with unreachable store = %d", resp.StatusCode)
	}
}

func TestEntryRoutes(t *testing.T) {
	srv, c := newTestServer(t, nil)
	ctx := context.Background()
	c.Set(ctx, cache.Warehouses, []string{"WH-1"}, 0)
	c.Set(ctx, cache.DashboardStats, 3, 0)

	resp := do(t, "GET", srv.URL+"/cache/warehouses")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /cache/warehouses = %d", resp.StatusCode)
	}
	var body struct {
		Key   string   `json:"key"`
		Value []string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Value[0] != "WH-1" {
		t.Fatalf("unexpected body %+v, %v", body, err)
	}

	var stats cache.Stats
	json.NewDecoder(do(t, "GET", srv.URL+"/stats").Body).Decode(&stats)
	if stats.Memory != 1 || stats.Durable != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	if resp := do(t, "DELETE", srv.URL+"/cache/warehouses"); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE = %d", resp.StatusCode)
	}
	if resp := do(t, "GET", srv.URL+"/cache/warehouses"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete = %d", resp.StatusCode)
	}

	json.NewDecoder(do(t, "POST", srv.URL+"/cache/clear").Body).Decode(&stats)
	if stats.Total != 0 {
		t.Fatalf("stats after clear = %+v", stats)
	}
	if resp := do(t, "POST", srv.URL+"/cache/sweep"); resp.StatusCode != http.StatusOK {
		t.Fatalf("sweep = %d", resp.StatusCode)
	}
}

func TestPoliciesAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var views []PolicyView
	json.NewDecoder(do(t, "GET", srv.URL+"/policies").Body).Decode(&views)
	if len(views) != len(cache.DefaultPolicies()) {
		t.Fatalf("expected %d policies, got %d", len(cache.DefaultPolicies()), len(views))
	}
	if views[0].Domain != "business-trend" || views[0].TTL != "15m0s" || views[0].Backend != "memory" {
		t.Fatalf("unexpected first policy %+v", views[0])
	}

	do(t, "GET", srv.URL+"/stats")
	resp := do(t, "GET", srv.URL+"/metrics")
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "wms_cache_entries") {
		t.Fatal("metrics endpoint should expose cache gauges")
	}
}
