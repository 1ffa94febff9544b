package security

import (
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

// Weights applied per structural feature when scoring a query. Joins and
// unions dominate because they multiply the rows the engine has to touch.
const (
	weightJoin      = 5
	weightUnion     = 10
	weightSubquery  = 4
	weightWhere     = 3
	weightAggregate = 2
	weightGroupBy   = 2
	weightHaving    = 2
	weightOrderBy   = 2
	weightLimit     = 1
	weightWindow    = 5
)

var aggregateFuncs = map[string]struct{}{
	"count": {}, "sum": {}, "avg": {}, "max": {}, "min": {},
}

// ComplexityDecision reports whether a query fits within a role's ceiling.
type ComplexityDecision struct {
	Allowed    bool   `json:"allowed"`
	Complexity int    `json:"complexity"`
	MaxAllowed int    `json:"max_allowed"`
	Role       string `json:"role"`
}

// ComplexityScorer scores generated queries and enforces per-role ceilings.
type ComplexityScorer struct {
	ceilings map[string]int
}

// NewComplexityScorer builds a scorer from a role-to-ceiling map. Roles
// absent from the map fall back to the guest ceiling, or 3 when even guest
// is missing.
func NewComplexityScorer(ceilings map[string]int) *ComplexityScorer {
	c := make(map[string]int, len(ceilings))
	for role, max := range ceilings {
		c[strings.ToLower(role)] = max
	}
	return &ComplexityScorer{ceilings: c}
}

// CeilingFor resolves the complexity ceiling for a role.
func (s *ComplexityScorer) CeilingFor(role string) int {
	if max, ok := s.ceilings[strings.ToLower(role)]; ok {
		return max
	}
	if max, ok := s.ceilings["guest"]; ok {
		return max
	}
	return 3
}

// CheckQueryPermission scores the query and compares it against the role's
// ceiling. A query scoring exactly at the ceiling is allowed; one point
// above is not.
func (s *ComplexityScorer) CheckQueryPermission(role, query string) ComplexityDecision {
	score := ScoreComplexity(query)
	max := s.CeilingFor(role)
	return ComplexityDecision{
		Allowed:    score <= max,
		Complexity: score,
		MaxAllowed: max,
		Role:       strings.ToLower(role),
	}
}

// ScoreComplexity computes a structural cost estimate for a SQL query.
// Text that does not parse as SQL is scored by keyword heuristics so the
// check still produces a usable number for document-store pipelines.
func ScoreComplexity(query string) int {
	stmt, err := sqlparser.Parse(query)
	if err != nil {
		return heuristicScore(query)
	}

	score := 0
	depth := 0
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.Select:
			depth++
			if depth > 1 {
				score += weightSubquery
			}
			if n.Where != nil {
				score += weightWhere
			}
			if n.GroupBy != nil {
				score += weightGroupBy
			}
			if n.Having != nil {
				score += weightHaving
			}
			if len(n.OrderBy) > 0 {
				score += weightOrderBy
			}
			if n.Limit != nil {
				score += weightLimit
			}
		case *sqlparser.Union:
			score += weightUnion
		case *sqlparser.JoinTableExpr:
			score += weightJoin
		case *sqlparser.FuncExpr:
			if _, ok := aggregateFuncs[n.Name.Lowered()]; ok {
				score += weightAggregate
			}
		case *sqlparser.CountStar, *sqlparser.Count, *sqlparser.Sum, *sqlparser.Avg, *sqlparser.Max, *sqlparser.Min:
			score += weightAggregate
		case *sqlparser.OverClause:
			score += weightWindow
		}
		return true, nil
	}, stmt)
	return score
}

// heuristicScore approximates the structural score for non-SQL text such
// as document pipelines serialized to JSON.
func heuristicScore(query string) int {
	lower := strings.ToLower(query)
	score := 0
	if strings.Contains(lower, "$lookup") || strings.Contains(lower, "join") {
		score += weightJoin
	}
	if strings.Contains(lower, "$group") || strings.Contains(lower, "group by") {
		score += weightGroupBy + weightAggregate
	}
	if strings.Contains(lower, "$match") || strings.Contains(lower, "where") {
		score += weightWhere
	}
	if strings.Contains(lower, "$sort") || strings.Contains(lower, "order by") {
		score += weightOrderBy
	}
	if strings.Contains(lower, "$limit") || strings.Contains(lower, "limit") {
		score += weightLimit
	}
	return score
}
