package security

import (
	"fmt"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

// IsolationResult is the outcome of a tenant-isolation check.
type IsolationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// tenantScopeColumns are the column names accepted as tenant-scoping
// predicates in literal SQL.
var tenantScopeColumns = map[string]struct{}{
	"tenant_id": {},
	"org_id":    {},
}

// ValidateTenantIsolation checks that a query cannot cross a tenant
// boundary. Natural-language input passes through: the compiler only ever
// targets the caller's own schema, so isolation is enforced there. Literal
// SQL (replayed or cached queries) must carry a WHERE clause with an
// explicit tenant-scoping predicate reachable through AND conjunctions
// only; OR, NOT, or UNION around the predicate defeats it and is rejected.
func ValidateTenantIsolation(query, tenantID string) IsolationResult {
	stmt, err := sqlparser.Parse(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";")))
	if err != nil {
		// Not SQL: treated as natural language, validated downstream.
		return IsolationResult{Valid: true}
	}

	switch s := stmt.(type) {
	case *sqlparser.Select:
		return validateSelectIsolation(s, tenantID)
	case *sqlparser.Union:
		return IsolationResult{
			Valid: false,
			Error: "UNION queries cannot be verified for tenant isolation",
		}
	default:
		return IsolationResult{
			Valid: false,
			Error: "only SELECT statements are accepted as literal SQL",
		}
	}
}

func validateSelectIsolation(stmt *sqlparser.Select, tenantID string) IsolationResult {
	// Conversational text occasionally parses as a FROM-less SELECT, for
	// example "select all products". Without a table there is nothing to
	// scope, so it is treated as natural language.
	if !selectsFromTable(stmt) {
		return IsolationResult{Valid: true}
	}

	if stmt.Where == nil {
		return IsolationResult{
			Valid: false,
			Error: "literal SQL must carry a WHERE clause with tenant scoping",
		}
	}

	if !containsTenantPredicate(stmt.Where.Expr, tenantID) {
		return IsolationResult{
			Valid: false,
			Error: fmt.Sprintf("missing tenant-scoping predicate for tenant %s", tenantID),
		}
	}
	return IsolationResult{Valid: true}
}

// selectsFromTable reports whether the statement reads from a real table
// rather than the implicit dual.
func selectsFromTable(stmt *sqlparser.Select) bool {
	for _, tableExpr := range stmt.From {
		aliased, ok := tableExpr.(*sqlparser.AliasedTableExpr)
		if !ok {
			return true
		}
		if name, ok := aliased.Expr.(sqlparser.TableName); ok {
			if name.Name.String() == "dual" {
				continue
			}
		}
		return true
	}
	return false
}

// containsTenantPredicate walks AND conjunctions looking for an equality on
// a tenant-scoping column. Recursion deliberately stops at OR and NOT: a
// predicate behind either can be negated away by the other branch and does
// not count as scoping.
func containsTenantPredicate(expr sqlparser.Expr, tenantID string) bool {
	switch e := expr.(type) {
	case *sqlparser.AndExpr:
		return containsTenantPredicate(e.Left, tenantID) || containsTenantPredicate(e.Right, tenantID)
	case *sqlparser.ComparisonExpr:
		if e.Operator != sqlparser.EqualOp {
			return false
		}
		col, ok := e.Left.(*sqlparser.ColName)
		if !ok {
			return false
		}
		if _, scoped := tenantScopeColumns[col.Name.Lowered()]; !scoped {
			return false
		}
		// When the right side is a literal it must name this tenant.
		if lit, isLiteral := e.Right.(*sqlparser.Literal); isLiteral {
			return string(lit.Val) == tenantID
		}
		return false
	default:
		return false
	}
}
