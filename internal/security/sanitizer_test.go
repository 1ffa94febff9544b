package security

import (
	"testing"

	"querygate/internal/model"
)

func sampleRows() []model.Row {
	return []model.Row{
		{
			"id":       1,
			"name":     "Alice",
			"email":    "alice@corp.com",
			"phone":    "5551234567",
			"password": "hunter2",
			"ssn":      "123-45-6789",
		},
	}
}

func TestSanitizeStripsSensitiveColumns(t *testing.T) {
	s := NewOutputSanitizer()

	rows, filtered := s.Sanitize(sampleRows(), "analyst")
	if !filtered {
		t.Errorf("expected filtered flag")
	}
	for _, col := range []string{"password", "ssn"} {
		if _, ok := rows[0][col]; ok {
			t.Errorf("column %s should be stripped for analyst", col)
		}
	}
	// Analysts are not in the masked tier; restricted columns pass through.
	if rows[0]["email"] != "alice@corp.com" {
		t.Errorf("analyst email should be unmasked, got %v", rows[0]["email"])
	}
}

func TestSanitizeMasksRestrictedForViewer(t *testing.T) {
	s := NewOutputSanitizer()

	rows, filtered := s.Sanitize(sampleRows(), "viewer")
	if !filtered {
		t.Errorf("expected filtered flag")
	}
	if rows[0]["email"] != "al***@corp.com" {
		t.Errorf("email mask wrong: %v", rows[0]["email"])
	}
	if rows[0]["phone"] != "***4567" {
		t.Errorf("phone mask wrong: %v", rows[0]["phone"])
	}
	// Structure survives: non-sensitive columns are untouched.
	if rows[0]["name"] != "Alice" || rows[0]["id"] != 1 {
		t.Errorf("benign columns must pass through unchanged")
	}
}

func TestSanitizeAdminPassthrough(t *testing.T) {
	s := NewOutputSanitizer()

	rows, filtered := s.Sanitize(sampleRows(), "admin")
	if filtered {
		t.Errorf("admin output must not be filtered")
	}
	if rows[0]["password"] != "hunter2" {
		t.Errorf("admin sees raw values")
	}
}

func TestSanitizeColumnsDropsHeaders(t *testing.T) {
	s := NewOutputSanitizer()

	cols := s.SanitizeColumns([]string{"id", "name", "password", "ssn"}, "viewer")
	if len(cols) != 2 || cols[0] != "id" || cols[1] != "name" {
		t.Errorf("unexpected columns: %v", cols)
	}
}

func TestMaskEmailShortLocalPart(t *testing.T) {
	if got := maskEmail("ab@x.io"); got != "a***@x.io" {
		t.Errorf("short local part mask wrong: %s", got)
	}
	if got := maskEmail("not-an-email"); got != "***" {
		t.Errorf("malformed email mask wrong: %s", got)
	}
}
