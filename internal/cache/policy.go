package cache

import (
	"fmt"
	"strings"
	"time"
)

// Backend selects where a key's entries are stored.
type Backend int

const (
	BackendMemory  Backend = iota // in-process, lost on restart
	BackendDurable                // DurableStore, survives restart
)

func (b Backend) String() string {
	switch b {
	case BackendMemory:
		return "memory"
	case BackendDurable:
		return "durable"
	default:
		return "unknown"
	}
}

// ParseBackend parses "memory" or "durable". "local" is accepted as an
// alias of durable.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory", "":
		return BackendMemory, nil
	case "durable", "local":
		return BackendDurable, nil
	default:
		return BackendMemory, fmt.Errorf("unknown cache backend %q", s)
	}
}

// Key identifies a cache entry. The constants below are the known cache
// domains; Scoped derives per-entity keys from them.
type Key string

const (
	DashboardStats  Key = "dashboard-stats"
	DashboardAlerts Key = "dashboard-alerts"
	DashboardTodos  Key = "dashboard-todos"
	UserPermissions Key = "user-permissions"
	UserWarehouses  Key = "user-warehouses"
	GoodsCategories Key = "goods-categories"
	Warehouses      Key = "warehouses"
	InventoryStats  Key = "inventory-stats"
	BusinessTrend   Key = "business-trend"
)

// scopeSep separates a domain from its scope suffix.
const scopeSep = ":"

// Scoped returns a key under domain, e.g. Scoped(UserPermissions, "42")
// is "user-permissions:42". It resolves to the domain's policy.
func Scoped(domain Key, parts ...string) Key {
	if len(parts) == 0 {
		return domain
	}
	return Key(string(domain) + scopeSep + strings.Join(parts, scopeSep))
}

// Domain returns the key with any scope suffix stripped.
func (k Key) Domain() Key {
	if i := strings.Index(string(k), scopeSep); i >= 0 {
		return k[:i]
	}
	return k
}

// Policy is the TTL and backend assignment for a domain.
type Policy struct {
	TTL     time.Duration
	Backend Backend
}

// DefaultPolicy applies to keys outside every known domain.
var DefaultPolicy = Policy{TTL: 300 * time.Second, Backend: BackendMemory}

// PolicyTable maps domains to policies. It is fixed once a cache is built.
type PolicyTable map[Key]Policy

// DefaultPolicies returns the policy table the dashboard ships with.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		DashboardStats:  {TTL: 5 * time.Minute, Backend: BackendMemory},
		DashboardAlerts: {TTL: 2 * time.Minute, Backend: BackendMemory},
		DashboardTodos:  {TTL: 5 * time.Minute, Backend: BackendMemory},
		UserPermissions: {TTL: 30 * time.Minute, Backend: BackendDurable},
		UserWarehouses:  {TTL: 30 * time.Minute, Backend: BackendDurable},
		GoodsCategories: {TTL: time.Hour, Backend: BackendDurable},
		Warehouses:      {TTL: time.Hour, Backend: BackendDurable},
		InventoryStats:  {TTL: 10 * time.Minute, Backend: BackendMemory},
		BusinessTrend:   {TTL: 15 * time.Minute, Backend: BackendMemory},
	}
}

// Resolve returns the policy for key. An exact match wins over the key's
// domain; the bool is false when DefaultPolicy was used.
func (t PolicyTable) Resolve(key Key) (Policy, bool) {
	if p, ok := t[key]; ok {
		return p, true
	}
	if p, ok := t[key.Domain()]; ok {
		return p, true
	}
	return DefaultPolicy, false
}

// Validate rejects non-positive TTLs.
func (t PolicyTable) Validate() error {
	for k, p := range t {
		if p.TTL <= 0 {
			return fmt.Errorf("cache policy %q: ttl must be positive, got %s", k, p.TTL)
		}
		if p.Backend != BackendMemory && p.Backend != BackendDurable {
			return fmt.Errorf("cache policy %q: unknown backend %d", k, p.Backend)
		}
	}
	return nil
}

// Clone returns a copy that can be modified without affecting t.
func (t PolicyTable) Clone() PolicyTable {
	out := make(PolicyTable, len(t))
	for k, p := range t {
		out[k] = p
	}
	return out
}
