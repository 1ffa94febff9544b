package security

import (
	"fmt"
	"strings"

	"querygate/internal/model"
)

// Columns stripped from results for every role below admin.
var sensitiveColumns = map[string]struct{}{
	"password":        {},
	"password_hash":   {},
	"token":           {},
	"api_key":         {},
	"secret":          {},
	"ssn":             {},
	"social_security": {},
	"credit_card":     {},
	"card_number":     {},
	"cvv":             {},
}

// Columns partially masked for low-trust roles instead of removed, so
// the shape of the data survives for display purposes.
var restrictedColumns = map[string]struct{}{
	"email":  {},
	"phone":  {},
	"salary": {},
}

var maskedRoles = map[string]struct{}{
	"guest":     {},
	"viewer":    {},
	"developer": {},
}

// OutputSanitizer filters result rows according to the caller's role.
type OutputSanitizer struct{}

func NewOutputSanitizer() *OutputSanitizer {
	return &OutputSanitizer{}
}

// Sanitize returns a copy of rows with sensitive columns removed and, for
// low-trust roles, restricted columns masked. The second return reports
// whether any value was altered or dropped.
func (s *OutputSanitizer) Sanitize(rows []model.Row, role string) ([]model.Row, bool) {
	role = strings.ToLower(role)
	if isAdminRole(role) {
		return rows, false
	}
	_, mask := maskedRoles[role]

	filtered := false
	out := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		clean := make(model.Row, len(row))
		for col, val := range row {
			key := strings.ToLower(col)
			if _, sensitive := sensitiveColumns[key]; sensitive {
				filtered = true
				continue
			}
			if _, restricted := restrictedColumns[key]; restricted && mask {
				clean[col] = maskValue(key, val)
				filtered = true
				continue
			}
			clean[col] = val
		}
		out = append(out, clean)
	}
	return out, filtered
}

// SanitizeColumns drops sensitive names from a column list so headers stay
// consistent with sanitized rows.
func (s *OutputSanitizer) SanitizeColumns(columns []string, role string) []string {
	if isAdminRole(strings.ToLower(role)) {
		return columns
	}
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		if _, sensitive := sensitiveColumns[strings.ToLower(col)]; sensitive {
			continue
		}
		out = append(out, col)
	}
	return out
}

func isAdminRole(role string) bool {
	return role == "admin" || role == "super_admin" || role == "superadmin"
}

func maskValue(column string, val interface{}) interface{} {
	str := fmt.Sprintf("%v", val)
	switch column {
	case "email":
		return maskEmail(str)
	case "phone":
		return maskTail(str, 4)
	default:
		return "***"
	}
}

// maskEmail keeps the first two characters of the local part and the full
// domain, e.g. "alice@corp.com" becomes "al***@corp.com".
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return local[:1] + "***" + domain
	}
	return local[:2] + "***" + domain
}

// maskTail hides all but the last keep characters.
func maskTail(s string, keep int) string {
	if len(s) <= keep {
		return "***"
	}
	return "***" + s[len(s)-keep:]
}
