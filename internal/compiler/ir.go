package compiler

import "strconv"

// Aggregation is the aggregate function applied to the selected columns.
type Aggregation string

const (
	AggregationNone  Aggregation = ""
	AggregationCount Aggregation = "COUNT"
	AggregationSum   Aggregation = "SUM"
	AggregationAvg   Aggregation = "AVG"
	AggregationMax   Aggregation = "MAX"
	AggregationMin   Aggregation = "MIN"
)

// Condition is one WHERE predicate. Value keeps its textual form; the
// generator decides quoting based on whether it is numeric.
type Condition struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// IsNumeric reports whether the condition value should be emitted unquoted.
func (c Condition) IsNumeric() bool {
	_, err := strconv.ParseFloat(c.Value, 64)
	return err == nil
}

// Join is one JOIN clause emitted by a business-intelligence template.
type Join struct {
	Table  string `json:"table"`
	Alias  string `json:"alias,omitempty"`
	OnExpr string `json:"onExpr"`
}

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Expr       string `json:"expr"`
	Descending bool   `json:"descending"`
}

// QueryIR is the dialect-neutral form a natural-language query is parsed
// into. It lives for a single request and is never persisted.
type QueryIR struct {
	Table       string      `json:"table"`
	Columns     []string    `json:"columns"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	// AggregateColumn is the argument of the aggregate, "*" for COUNT.
	AggregateColumn string    `json:"aggregateColumn,omitempty"`
	GroupBy         []string  `json:"groupBy,omitempty"`
	OrderBy         []OrderBy `json:"orderBy,omitempty"`
	Having          string    `json:"having,omitempty"`
	Limit           int       `json:"limit,omitempty"`
	Joins           []Join    `json:"joins,omitempty"`
	Confidence      float64   `json:"confidence"`
	// MatchedRule names the parse rule that produced this IR, for logging.
	MatchedRule string `json:"matchedRule,omitempty"`
}

// Tables lists every table the IR references, base table first.
func (ir *QueryIR) Tables() []string {
	tables := []string{ir.Table}
	for _, j := range ir.Joins {
		tables = append(tables, j.Table)
	}
	return tables
}
