package durable

import (
	"context"
	"testing"

	"github.com/mikasazwj/warehouse-inventory-system/internal/circuitbreaker"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*MapStore); !ok {
		t.Fatalf("default driver should be the map store, got %T", st)
	}

	st, err = Open(ctx, Options{Driver: DriverFile, File: FileOptions{Dir: t.TempDir()}})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, ok := st.(*FileStore); !ok {
		t.Fatalf("expected file store, got %T", st)
	}

	// In-process drivers are never wrapped.
	st, err = Open(ctx, Options{Driver: DriverMemory, Breaker: circuitbreaker.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*MapStore); !ok {
		t.Fatalf("expected bare map store, got %T", st)
	}

	if _, err := Open(ctx, Options{Driver: "sqlite"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(ctx, Options{Driver: DriverPostgres}); err == nil {
		t.Fatal("expected error for postgres without DSN")
	}
}
