package security

import (
	"sort"
	"strings"
	"sync"
)

// Access is the ordinal permission hierarchy: admin(3) > write(2) > read(1).
type Access int

const (
	AccessRead  Access = 1
	AccessWrite Access = 2
	AccessAdmin Access = 3
)

// ParseAccess maps the wire form of an access level to its ordinal.
func ParseAccess(s string) (Access, bool) {
	switch strings.ToLower(s) {
	case "read":
		return AccessRead, true
	case "write":
		return AccessWrite, true
	case "admin":
		return AccessAdmin, true
	default:
		return 0, false
	}
}

// PermissionRecord is an explicit per-user grant on one resource. When a
// record exists it wins over every role-based default.
type PermissionRecord struct {
	UserID       string
	ResourceType string
	ResourceName string
	Level        Access
}

// PermissionStore resolves explicit per-user grants. Backed by the identity
// collaborator in production and by an in-memory map in tests.
type PermissionStore interface {
	GetUserPermission(userID, resourceType, resourceName string) (Access, bool)
}

// MemoryPermissionStore is a concurrency-safe in-process PermissionStore.
type MemoryPermissionStore struct {
	mutex   sync.RWMutex
	records map[string]Access
}

// NewMemoryPermissionStore creates an empty store.
func NewMemoryPermissionStore() *MemoryPermissionStore {
	return &MemoryPermissionStore{records: make(map[string]Access)}
}

// Grant installs or replaces an explicit permission record.
func (s *MemoryPermissionStore) Grant(record PermissionRecord) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.records[permissionKey(record.UserID, record.ResourceType, record.ResourceName)] = record.Level
}

func (s *MemoryPermissionStore) GetUserPermission(userID, resourceType, resourceName string) (Access, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	level, ok := s.records[permissionKey(userID, resourceType, resourceName)]
	return level, ok
}

func permissionKey(userID, resourceType, resourceName string) string {
	return userID + "\x00" + resourceType + "\x00" + strings.ToLower(resourceName)
}

// TablePolicy is the data-driven (role, industry) → readable-table mapping.
// Loaded once at startup; lookup plus default-deny replaces the original
// nested conditionals. Unknown combinations fall back to a minimal safe set.
type TablePolicy struct {
	allowed  map[string]map[string]struct{}
	fallback map[string]struct{}
}

// DefaultTablePolicy returns the built-in policy. The table lists are
// operational defaults, tunable per deployment; deny-by-default is not.
func DefaultTablePolicy() *TablePolicy {
	policy := NewTablePolicy([]string{"products", "orders"})

	policy.Allow("manager", "healthcare", "patients", "appointments", "doctors", "departments", "billing")
	policy.Allow("analyst", "healthcare", "appointments", "treatments", "billing")
	policy.Allow("viewer", "healthcare", "appointments")

	policy.Allow("manager", "technology", "projects", "employees", "sprints", "releases", "tickets")
	policy.Allow("analyst", "technology", "projects", "sprints", "tickets")
	policy.Allow("viewer", "technology", "projects")

	policy.Allow("manager", "retail", "products", "orders", "customers", "inventory", "suppliers", "warehouses")
	policy.Allow("analyst", "retail", "products", "orders", "inventory", "warehouses")
	policy.Allow("viewer", "retail", "products", "orders")

	policy.Allow("manager", "finance", "accounts", "transactions", "clients", "portfolios")
	policy.Allow("analyst", "finance", "transactions", "portfolios")
	policy.Allow("viewer", "finance", "accounts")

	return policy
}

// NewTablePolicy creates an empty policy with the given fallback set.
func NewTablePolicy(fallbackTables []string) *TablePolicy {
	fallback := make(map[string]struct{}, len(fallbackTables))
	for _, t := range fallbackTables {
		fallback[strings.ToLower(t)] = struct{}{}
	}
	return &TablePolicy{
		allowed:  make(map[string]map[string]struct{}),
		fallback: fallback,
	}
}

// Set replaces the readable tables for a (role, industry) pair.
func (p *TablePolicy) Set(role, industry string, tables ...string) {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[strings.ToLower(t)] = struct{}{}
	}
	p.allowed[policyKey(role, industry)] = set
}

// Allow registers the readable tables for a (role, industry) pair.
func (p *TablePolicy) Allow(role, industry string, tables ...string) {
	key := policyKey(role, industry)
	set, exists := p.allowed[key]
	if !exists {
		set = make(map[string]struct{}, len(tables))
		p.allowed[key] = set
	}
	for _, t := range tables {
		set[strings.ToLower(t)] = struct{}{}
	}
}

// tableSet resolves the pair's set, falling back to the minimal safe set
// for unknown combinations.
func (p *TablePolicy) tableSet(role, industry string) map[string]struct{} {
	if set, exists := p.allowed[policyKey(role, industry)]; exists {
		return set
	}
	return p.fallback
}

// ReadableTables lists the tables the pair may read, sorted for stable
// output in denial hints.
func (p *TablePolicy) ReadableTables(role, industry string) []string {
	set := p.tableSet(role, industry)
	tables := make([]string, 0, len(set))
	for t := range set {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// CanRead reports whether the (role, industry) pair may read the table.
func (p *TablePolicy) CanRead(role, industry, table string) bool {
	_, ok := p.tableSet(role, industry)[strings.ToLower(table)]
	return ok
}

func policyKey(role, industry string) string {
	return strings.ToLower(role) + "\x00" + strings.ToLower(industry)
}
