package security

import (
	"strings"
	"testing"

	"querygate/internal/config"
	"querygate/internal/model"
	"querygate/internal/utils"
)

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		UserRatePerMinute:    30,
		AddressRatePerMinute: 50,
		RiskScoreThreshold:   10,
		MaxQueryLength:       10000,
		ComplexityCeilings: map[string]int{
			"guest":   3,
			"viewer":  5,
			"analyst": 30,
			"admin":   50,
		},
	}
}

func routingContext(userID string, industry string, roles ...string) model.TenantRoutingContext {
	return model.TenantRoutingContext{
		UserID:   userID,
		TenantID: "tenant-1",
		Roles:    roles,
		Industry: industry,
	}
}

func TestCheckTablePermissionRoleDefaults(t *testing.T) {
	gate := NewGate(testSecurityConfig(), nil)

	// A viewer in a technology tenant cannot read employees.
	rc := routingContext("u1", "technology", "viewer")
	if gate.CheckTablePermission(rc, "employees", AccessRead) {
		t.Errorf("viewer must not read employees")
	}
	if !gate.CheckTablePermission(rc, "projects", AccessRead) {
		t.Errorf("viewer should read projects")
	}

	// Writes without an explicit grant are denied below admin.
	manager := routingContext("u2", "technology", "manager")
	if gate.CheckTablePermission(manager, "projects", AccessWrite) {
		t.Errorf("manager must not write without an explicit grant")
	}

	admin := routingContext("u3", "technology", "admin")
	if !gate.CheckTablePermission(admin, "employees", AccessAdmin) {
		t.Errorf("admin role should always pass")
	}
}

func TestCheckTablePermissionPolicyOverrides(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.TablePolicy = map[string]map[string][]string{
		"viewer": {"technology": {"tickets"}},
	}
	gate := NewGate(cfg, nil)

	// The configured pair replaces its built-in table set.
	rc := routingContext("u1", "technology", "viewer")
	if !gate.CheckTablePermission(rc, "tickets", AccessRead) {
		t.Errorf("configured table should be readable")
	}
	if gate.CheckTablePermission(rc, "projects", AccessRead) {
		t.Errorf("replaced pair must not keep its built-in tables")
	}

	// Pairs not listed keep their defaults.
	analyst := routingContext("u2", "technology", "analyst")
	if !gate.CheckTablePermission(analyst, "projects", AccessRead) {
		t.Errorf("untouched pair should keep defaults")
	}
}

func TestCheckTablePermissionExplicitOverride(t *testing.T) {
	store := NewMemoryPermissionStore()
	store.Grant(PermissionRecord{UserID: "u1", ResourceType: "table", ResourceName: "employees", Level: AccessWrite})
	gate := NewGate(testSecurityConfig(), store)

	rc := routingContext("u1", "technology", "viewer")

	// Monotonic in the required-access ordinal: a write grant also covers read.
	if !gate.CheckTablePermission(rc, "employees", AccessRead) {
		t.Errorf("write grant should cover read")
	}
	if !gate.CheckTablePermission(rc, "employees", AccessWrite) {
		t.Errorf("write grant should cover write")
	}
	if gate.CheckTablePermission(rc, "employees", AccessAdmin) {
		t.Errorf("write grant must not cover admin")
	}
}

func TestScanQueryBlocksInjection(t *testing.T) {
	gate := NewGate(testSecurityConfig(), nil)

	err := gate.ScanQuery("'; DROP TABLE users; --", "viewer", "tenant-1", "u1")
	if err == nil {
		t.Fatal("expected injection to be blocked")
	}
	if !utils.IsCode(err, utils.ErrCodeSecurityViolation) {
		t.Errorf("expected SECURITY_VIOLATION, got %s", utils.CodeOf(err))
	}

	if err := gate.ScanQuery("Show me all products", "viewer", "tenant-1", "u1"); err != nil {
		t.Errorf("benign query should pass: %v", err)
	}
}

func TestScanQueryRejectsOversizedInput(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.MaxQueryLength = 50
	gate := NewGate(cfg, nil)

	err := gate.ScanQuery(strings.Repeat("a", 51), "viewer", "tenant-1", "u1")
	if !utils.IsCode(err, utils.ErrCodeSecurityViolation) {
		t.Errorf("oversized input should be a security violation, got %v", err)
	}
}

func TestCheckComplexityUsesStrongestRole(t *testing.T) {
	gate := NewGate(testSecurityConfig(), nil)

	// WHERE(3) + ORDER BY(2) scores 5: over the guest ceiling but within
	// the analyst one. The strongest role wins.
	query := "SELECT * FROM products WHERE price < 50 ORDER BY price"
	rc := routingContext("u1", "retail", "guest", "analyst")
	decision, err := gate.CheckComplexity(rc, query)
	if err != nil {
		t.Fatalf("expected analyst ceiling to apply: %v", err)
	}
	if decision.MaxAllowed != 30 {
		t.Errorf("expected ceiling 30, got %d", decision.MaxAllowed)
	}

	guestOnly := routingContext("u1", "retail", "guest")
	if _, err := gate.CheckComplexity(guestOnly, query); err == nil {
		t.Errorf("guest ceiling should deny score 5")
	}
}

func TestSanitizeRowsFlagsFiltering(t *testing.T) {
	gate := NewGate(testSecurityConfig(), nil)
	rows := []model.Row{{"name": "alice", "password": "hunter2"}}

	sanitized, filtered := gate.SanitizeRows(rows, routingContext("u1", "retail", "viewer"))
	if !filtered {
		t.Errorf("stripping password should set the filtered flag")
	}
	if _, present := sanitized[0]["password"]; present {
		t.Errorf("password column must be stripped")
	}
}
