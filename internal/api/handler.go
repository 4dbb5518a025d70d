package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/metrics"
)

// Pinger reports whether the durable store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the cache admin endpoints.
type Handler struct {
	Cache   *cache.TieredCache
	Store   Pinger                     // optional
	Metrics *metrics.PrometheusMetrics // optional
}

// RegisterRoutes registers cache routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /stats", h.Stats)
	mux.HandleFunc("GET /policies", h.Policies)
	mux.HandleFunc("GET /cache/{key}", h.GetEntry)
	mux.HandleFunc("DELETE /cache/{key}", h.DeleteEntry)
	mux.HandleFunc("POST /cache/sweep", h.Sweep)
	mux.HandleFunc("POST /cache/clear", h.Clear)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics.Handler())
	}
}

// Health pings the durable store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "durable store unreachable: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats returns per-backend entry counts and refreshes the entry gauges.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.Cache.Stats(r.Context())
	if h.Metrics != nil {
		h.Metrics.SetEntries(s)
	}
	writeJSON(w, http.StatusOK, s)
}

// PolicyView is the display form of one policy.
type PolicyView struct {
	Domain  string `json:"domain"`
	TTL     string `json:"ttl"`
	Backend string `json:"backend"`
}

// Policies lists the policy table sorted by domain.
func (h *Handler) Policies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PolicyViews(h.Cache.Policies()))
}

// PolicyViews flattens a policy table for display.
func PolicyViews(t cache.PolicyTable) []PolicyView {
	out := make([]PolicyView, 0, len(t))
	for k, p := range t {
		out = append(out, PolicyView{Domain: string(k), TTL: p.TTL.String(), Backend: p.Backend.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// GetEntry returns the live value of a key.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	key := cache.Key(r.PathValue("key"))
	v, ok := h.Cache.Get(r.Context(), key)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not cached: "+string(key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": v})
}

// DeleteEntry removes a key.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	h.Cache.Delete(r.Context(), cache.Key(r.PathValue("key")))
	w.WriteHeader(http.StatusNoContent)
}

// Sweep runs Cleanup now.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	h.Cache.Cleanup(r.Context())
	h.Stats(w, r)
}

// Clear flushes the cache namespace.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.Cache.Clear(r.Context())
	h.Stats(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
