package cache

import (
	"testing"
	"time"
)

func TestPolicyTableResolve(t *testing.T) {
	table := DefaultPolicies()
	table[Key("user-permissions:admin")] = Policy{TTL: time.Minute, Backend: BackendMemory}

	tests := []struct {
		key     Key
		want    Policy
		defined bool
	}{
		{DashboardAlerts, Policy{2 * time.Minute, BackendMemory}, true},
		{Warehouses, Policy{time.Hour, BackendDurable}, true},
		{Scoped(UserPermissions, "42"), Policy{30 * time.Minute, BackendDurable}, true},
		{Scoped(BusinessTrend, "week"), Policy{15 * time.Minute, BackendMemory}, true},
		{Key("user-permissions:admin"), Policy{time.Minute, BackendMemory}, true},
		{Key("unknown"), DefaultPolicy, false},
	}
	for _, tt := range tests {
		got, ok := table.Resolve(tt.key)
		if got != tt.want || ok != tt.defined {
			t.Errorf("Resolve(%q) = %+v, %v; want %+v, %v", tt.key, got, ok, tt.want, tt.defined)
		}
	}
}

func TestScopedAndDomain(t *testing.T) {
	if got := Scoped(UserWarehouses, "7", "north"); got != "user-warehouses:7:north" {
		t.Fatalf("unexpected scoped key %q", got)
	}
	if got := Scoped(Warehouses); got != Warehouses {
		t.Fatalf("scoping with no parts should return the domain, got %q", got)
	}
	if got := Key("user-warehouses:7:north").Domain(); got != UserWarehouses {
		t.Fatalf("unexpected domain %q", got)
	}
	if got := DashboardStats.Domain(); got != DashboardStats {
		t.Fatalf("unscoped key should be its own domain, got %q", got)
	}
}

func TestPolicyTableValidate(t *testing.T) {
	if err := DefaultPolicies().Validate(); err != nil {
		t.Fatalf("default policies should validate: %v", err)
	}
	bad := PolicyTable{Warehouses: {TTL: 0, Backend: BackendDurable}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero TTL")
	}
	bad = PolicyTable{Warehouses: {TTL: time.Second, Backend: Backend(7)}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"memory", BackendMemory, false},
		{"Durable", BackendDurable, false},
		{" local ", BackendDurable, false},
		{"", BackendMemory, false},
		{"disk", BackendMemory, true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseBackend(%q) = %v, %v", tt.in, got, err)
		}
	}
}
