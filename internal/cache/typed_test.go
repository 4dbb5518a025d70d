package cache

import (
	"context"
	"errors"
	"testing"
)

type stockRow struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

func TestGetOrSetAsAcrossReload(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c, _, _ := newTestCache(t, store)

	fetch := func(context.Context) ([]stockRow, error) {
		return []stockRow{{SKU: "A-1", Qty: 4}}, nil
	}
	rows, err := GetOrSetAs(ctx, c, Warehouses, fetch, 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("first load: %v, %v", rows, err)
	}

	reloaded, _, _ := newTestCache(t, store)
	rows, err = GetOrSetAs(ctx, reloaded, Warehouses, func(context.Context) ([]stockRow, error) {
		return nil, errors.New("fetch should not run")
	}, 0)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if rows[0].SKU != "A-1" || rows[0].Qty != 4 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestGetOrSetAsReportsOneMiss(t *testing.T) {
	ctx := context.Background()
	c, _, rec := newTestCache(t, newFakeStore())

	if _, err := GetOrSetAs(ctx, c, InventoryStats, func(context.Context) (int, error) { return 7, nil }, 0); err != nil {
		t.Fatalf("load: %v", err)
	}
	if n := rec.count(OpGet, OutcomeMiss); n != 1 {
		t.Fatalf("expected one get/miss result, got %d", n)
	}
	if n := rec.count(OpFetch, OutcomeStored); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
}

func TestGetAsDropsWrongShape(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, newFakeStore())

	c.Set(ctx, DashboardStats, "not a number", 0)
	if _, ok := GetAs[int](ctx, c, DashboardStats); ok {
		t.Fatal("expected miss for a value of the wrong shape")
	}
	if c.Has(ctx, DashboardStats) {
		t.Fatal("wrong-shape value should be deleted")
	}
}

func TestGetOrSetAsReturnsFetchError(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, newFakeStore())

	want := errors.New("boom")
	_, err := GetOrSetAs(ctx, c, DashboardTodos, func(context.Context) (int, error) { return 0, want }, 0)
	if err != want {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	now := testEpoch
	m.Set("a", &Entry{Value: 1, ExpireAt: now})
	m.Set("b", &Entry{Value: 2, ExpireAt: now.Add(1)})

	if n := m.DeleteExpired(now); n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}
	if !m.Delete("b") || m.Delete("b") {
		t.Fatal("Delete should report presence")
	}
	m.Set("c", &Entry{Value: 3, ExpireAt: now})
	if n := m.Clear(); n != 1 || m.Len() != 0 {
		t.Fatalf("Clear removed %d, %d left", n, m.Len())
	}
}
