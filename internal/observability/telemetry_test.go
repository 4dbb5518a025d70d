package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestTracerUsableBeforeInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "cache.fetch", AttrCacheKey.String("warehouses"))
	defer span.End()
	if GetTraceID(ctx) != "" {
		t.Fatal("noop tracer should not produce trace ids")
	}
}

func TestInitWithNoopExporter(t *testing.T) {
	ctx := context.Background()
	if err := Init(ctx, Config{Enabled: true, Exporter: "noop", ServiceName: "wmscache", SampleRate: 1}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		Shutdown(context.Background())
		Init(context.Background(), Config{})
	})

	if !Enabled() {
		t.Fatal("tracing should be enabled")
	}
	spanCtx, span := StartClientSpan(ctx, "warehouse.get /dashboard/stats")
	defer span.End()
	if GetTraceID(spanCtx) == "" {
		t.Fatal("expected a trace id")
	}

	h := http.Header{}
	InjectHTTP(spanCtx, h)
	if h.Get("traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestHTTPMiddlewarePassesThrough(t *testing.T) {
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestResourceAttributesDescribeDeployment(t *testing.T) {
	attrs := ResourceAttributes(Config{
		ServiceVersion: "1.4.0",
		Environment:    "staging",
		Namespace:      "cache_",
		DurableDriver:  "redis",
	})
	got := make(map[attribute.Key]string, len(attrs))
	for _, kv := range attrs {
		got[kv.Key] = kv.Value.Emit()
	}
	want := map[attribute.Key]string{
		"service.name":           "wmscache",
		"service.version":        "1.4.0",
		"deployment.environment": "staging",
		AttrCacheNamespace:       "cache_",
		AttrDurableDriver:        "redis",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestResourceAttributesOmitEmpty(t *testing.T) {
	attrs := ResourceAttributes(Config{ServiceName: "wms-edge"})
	if len(attrs) != 1 || attrs[0].Value.Emit() != "wms-edge" {
		t.Fatalf("expected only service.name, got %v", attrs)
	}
}
