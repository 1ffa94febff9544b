package security

import (
	"testing"
)

func TestTablePolicyIndustryLookup(t *testing.T) {
	policy := DefaultTablePolicy()

	if !policy.CanRead("manager", "healthcare", "patients") {
		t.Errorf("healthcare manager should read patients")
	}
	if policy.CanRead("analyst", "healthcare", "patients") {
		t.Errorf("healthcare analyst should not read patients")
	}
	if !policy.CanRead("analyst", "healthcare", "billing") {
		t.Errorf("healthcare analyst should read billing")
	}
	if policy.CanRead("viewer", "technology", "employees") {
		t.Errorf("technology viewer should not read employees")
	}
}

func TestTablePolicyUnknownComboFallsBack(t *testing.T) {
	policy := DefaultTablePolicy()

	// Unknown role/industry combinations get the minimal safe set only.
	if !policy.CanRead("intern", "aerospace", "products") {
		t.Errorf("unknown combo should fall back to the safe set")
	}
	if policy.CanRead("intern", "aerospace", "patients") {
		t.Errorf("unknown combo must not reach industry tables")
	}
}

func TestParseAccessOrdinal(t *testing.T) {
	read, _ := ParseAccess("read")
	write, _ := ParseAccess("write")
	admin, _ := ParseAccess("admin")

	if !(admin > write && write > read) {
		t.Errorf("access ordinal broken: admin=%d write=%d read=%d", admin, write, read)
	}
	if _, ok := ParseAccess("owner"); ok {
		t.Errorf("unknown access name should not parse")
	}
}

func TestMemoryPermissionStore(t *testing.T) {
	store := NewMemoryPermissionStore()
	store.Grant(PermissionRecord{UserID: "u1", ResourceType: "table", ResourceName: "salaries", Level: AccessWrite})

	granted, ok := store.GetUserPermission("u1", "table", "salaries")
	if !ok || granted != AccessWrite {
		t.Fatalf("expected write grant, got %v ok=%v", granted, ok)
	}
	if _, ok := store.GetUserPermission("u1", "table", "orders"); ok {
		t.Errorf("no grant recorded for orders")
	}
	if _, ok := store.GetUserPermission("u2", "table", "salaries"); ok {
		t.Errorf("grants must be per user")
	}
}
