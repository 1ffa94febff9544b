package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"querygate/internal/database/metadata"
)

var (
	numberPattern  = regexp.MustCompile(`\$?(\d+(?:\.\d+)?)`)
	topNPattern    = regexp.MustCompile(`top\s+(\d+)`)
	betweenPattern = regexp.MustCompile(`between\s+\$?(\d+(?:\.\d+)?)\s+and\s+\$?(\d+(?:\.\d+)?)`)
	categoryThresholdPattern = regexp.MustCompile(
		`(?:^|\s)([a-z]+)\s+([a-z_]+)\s+(under|below|cheaper than|less than|over|above|more than)\s+\$?(\d+(?:\.\d+)?)`)
	groupByPattern = regexp.MustCompile(`(?:by|per|grouped by)\s+([a-z_]+)`)
	orderByPattern = regexp.MustCompile(`(?:sorted by|ordered by|order by)\s+([a-z_]+)`)
)

// defaultRules is the ordered rule list, most specific first. Business
// intelligence join templates lead so that analytics phrasing is not
// swallowed by the simpler single-table rules.
func defaultRules() []parseRule {
	return []parseRule{
		{
			name:  "bi_top_customers_by_spend",
			match: matchAll("top", "customer"),
			build: buildTopCustomers,
		},
		{
			name:  "bi_best_selling_products",
			match: matchAny("best selling", "best-selling", "bestselling", "most sold"),
			build: buildBestSelling,
		},
		{
			name:  "bi_low_stock",
			match: matchAny("low stock", "low on stock", "running low", "almost out of stock"),
			build: buildLowStock,
		},
		{
			name:  "bi_warehouse_totals",
			match: matchAll("warehouse", "total"),
			build: buildWarehouseTotals,
		},
		{
			name: "multi_condition_category_threshold",
			match: func(text string) bool {
				return categoryThresholdPattern.MatchString(text)
			},
			build: buildCategoryThreshold,
		},
		{
			name: "count_with_filter",
			match: func(text string) bool {
				return matchAny("how many", "count")(text) && hasComparisonPhrase(text)
			},
			build: buildCountWithFilter,
		},
		{
			name: "between_filter",
			match: func(text string) bool {
				return betweenPattern.MatchString(text)
			},
			build: buildBetween,
		},
		{
			name:  "comparison_filter",
			match: hasComparisonPhrase,
			build: buildComparison,
		},
		{
			name:  "aggregate",
			match: matchAny("average", "avg", "mean", "sum of", "total", "highest", "maximum", "max", "lowest", "minimum", "min"),
			build: buildAggregate,
		},
		{
			name: "group_by",
			match: func(text string) bool {
				return groupByPattern.MatchString(text)
			},
			build: buildGroupBy,
		},
		{
			name: "order_by",
			match: func(text string) bool {
				return orderByPattern.MatchString(text) || matchAny("most expensive", "cheapest", "newest", "oldest")(text)
			},
			build: buildOrderBy,
		},
		{
			name:  "category_filter",
			match: matchAny("category", "in the"),
			build: buildCategoryFilter,
		},
		{
			name:  "count",
			match: matchAny("how many", "count", "number of"),
			build: buildCount,
		},
		{
			name:  "select_all",
			match: matchAny("show", "list", "get", "all", "display", "give me"),
			build: buildSelectAll,
		},
	}
}

func matchAny(phrases ...string) func(string) bool {
	return func(text string) bool {
		for _, p := range phrases {
			if strings.Contains(text, p) {
				return true
			}
		}
		return false
	}
}

func matchAll(phrases ...string) func(string) bool {
	return func(text string) bool {
		for _, p := range phrases {
			if !strings.Contains(text, p) {
				return false
			}
		}
		return true
	}
}

var lessPhrases = []string{"less than", "cheaper than", "under", "below", "fewer than"}
var morePhrases = []string{"more than", "greater than", "over", "above", "at least"}

func hasComparisonPhrase(text string) bool {
	return matchAny(append(lessPhrases, morePhrases...)...)(text)
}

// comparisonOperator maps the phrasing to an operator, "<" when the text
// says less, ">" when it says more.
func comparisonOperator(text string) (string, bool) {
	for _, p := range lessPhrases {
		if strings.Contains(text, p) {
			return "<", true
		}
	}
	for _, p := range morePhrases {
		if strings.Contains(text, p) {
			return ">", true
		}
	}
	return "", false
}

// resolveColumn returns the first candidate that exists in the table's
// schema, or the first candidate when the schema has no opinion.
func resolveColumn(snap *metadata.SchemaSnapshot, table string, candidates ...string) string {
	if snap != nil {
		cols, ok := snap.Tables[table]
		if ok {
			for _, candidate := range candidates {
				for _, col := range cols {
					if strings.EqualFold(col.Name, candidate) {
						return col.Name
					}
				}
			}
		}
	}
	return candidates[0]
}

// numericColumn guesses which column a numeric comparison refers to.
func numericColumn(snap *metadata.SchemaSnapshot, table, text string) string {
	switch {
	case matchAny("stock", "quantity", "inventory")(text):
		return resolveColumn(snap, table, "quantity", "stock")
	case matchAny("salary", "pay", "wage")(text):
		return resolveColumn(snap, table, "salary")
	case matchAny("age", "old")(text):
		return resolveColumn(snap, table, "age")
	default:
		return resolveColumn(snap, table, "price", "amount", "total")
	}
}

func extractNumber(text string) (string, bool) {
	m := numberPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func extractLimit(text string, fallback int) int {
	if m := topNPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func buildTopCustomers(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	if snap == nil || !snap.HasTable("customers") || !snap.HasTable("orders") {
		return false
	}
	ir.Table = "customers"
	ir.Columns = []string{"customers.id", "customers.name", "SUM(orders.total) AS total_spend"}
	ir.Joins = []Join{{Table: "orders", OnExpr: "customers.id = orders.customer_id"}}
	ir.GroupBy = []string{"customers.id", "customers.name"}
	ir.OrderBy = []OrderBy{{Expr: "total_spend", Descending: true}}
	ir.Limit = extractLimit(text, 10)
	return true
}

func buildBestSelling(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	if snap == nil || !snap.HasTable("products") || !snap.HasTable("order_items") {
		return false
	}
	ir.Table = "products"
	ir.Columns = []string{"products.id", "products.name", "SUM(order_items.quantity) AS units_sold"}
	ir.Joins = []Join{{Table: "order_items", OnExpr: "products.id = order_items.product_id"}}
	ir.GroupBy = []string{"products.id", "products.name"}
	ir.OrderBy = []OrderBy{{Expr: "units_sold", Descending: true}}
	ir.Limit = extractLimit(text, 10)
	return true
}

func buildLowStock(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	table := ir.Table
	if snap != nil && snap.HasTable("inventory") {
		table = "inventory"
	}
	if table == "" {
		return false
	}
	threshold := "10"
	if n, ok := extractNumber(text); ok {
		threshold = n
	}
	col := resolveColumn(snap, table, "quantity", "stock")
	ir.Table = table
	ir.Conditions = append(ir.Conditions, Condition{Column: col, Operator: "<", Value: threshold})
	ir.OrderBy = []OrderBy{{Expr: col}}
	return true
}

func buildWarehouseTotals(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	if snap == nil || !snap.HasTable("warehouses") || !snap.HasTable("inventory") {
		return false
	}
	ir.Table = "warehouses"
	ir.Columns = []string{"warehouses.id", "warehouses.name", "SUM(inventory.quantity) AS total_stock"}
	ir.Joins = []Join{{Table: "inventory", OnExpr: "warehouses.id = inventory.warehouse_id"}}
	ir.GroupBy = []string{"warehouses.id", "warehouses.name"}
	if op, ok := comparisonOperator(text); ok {
		if n, numOK := extractNumber(text); numOK {
			ir.Having = fmt.Sprintf("SUM(inventory.quantity) %s %s", op, n)
		}
	}
	ir.OrderBy = []OrderBy{{Expr: "total_stock", Descending: true}}
	return true
}

func buildCategoryThreshold(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	m := categoryThresholdPattern.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	category, noun, phrase, amount := m[1], m[2], m[3], m[4]
	if isStopWord(category) {
		return false
	}
	// The word before the threshold must be the table itself, so that
	// "products cost less than 50" is not read as a category filter.
	if !isTableForm(noun, ir.Table) {
		return false
	}
	op := "<"
	for _, p := range morePhrases {
		if phrase == p {
			op = ">"
		}
	}
	ir.Conditions = append(ir.Conditions,
		Condition{Column: resolveColumn(snap, ir.Table, "category"), Operator: "=", Value: titleCase(category)},
		Condition{Column: numericColumn(snap, ir.Table, text), Operator: op, Value: amount},
	)
	return true
}

func buildCountWithFilter(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	op, ok := comparisonOperator(text)
	if !ok {
		return false
	}
	value, ok := extractNumber(text)
	if !ok {
		return false
	}
	ir.Aggregation = AggregationCount
	ir.AggregateColumn = "*"
	ir.Conditions = append(ir.Conditions, Condition{
		Column:   numericColumn(snap, ir.Table, text),
		Operator: op,
		Value:    value,
	})
	return true
}

func buildBetween(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	m := betweenPattern.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	col := numericColumn(snap, ir.Table, text)
	ir.Conditions = append(ir.Conditions,
		Condition{Column: col, Operator: ">=", Value: m[1]},
		Condition{Column: col, Operator: "<=", Value: m[2]},
	)
	return true
}

func buildComparison(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	op, ok := comparisonOperator(text)
	if !ok {
		return false
	}
	value, ok := extractNumber(text)
	if !ok {
		return false
	}
	ir.Conditions = append(ir.Conditions, Condition{
		Column:   numericColumn(snap, ir.Table, text),
		Operator: op,
		Value:    value,
	})
	return true
}

func buildAggregate(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	switch {
	case matchAny("average", "avg", "mean")(text):
		ir.Aggregation = AggregationAvg
	case matchAny("sum of", "total")(text):
		ir.Aggregation = AggregationSum
	case matchAny("highest", "maximum", "max")(text):
		ir.Aggregation = AggregationMax
	case matchAny("lowest", "minimum", "min")(text):
		ir.Aggregation = AggregationMin
	default:
		return false
	}
	ir.AggregateColumn = numericColumn(snap, ir.Table, text)
	return true
}

func buildGroupBy(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	m := groupByPattern.FindStringSubmatch(text)
	if m == nil || isStopWord(m[1]) {
		return false
	}
	col := resolveColumn(snap, ir.Table, m[1], "category")
	ir.GroupBy = []string{col}
	ir.Columns = []string{col, "COUNT(*) AS count"}
	return true
}

func buildOrderBy(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	switch {
	case strings.Contains(text, "most expensive"):
		ir.OrderBy = []OrderBy{{Expr: resolveColumn(snap, ir.Table, "price"), Descending: true}}
	case strings.Contains(text, "cheapest"):
		ir.OrderBy = []OrderBy{{Expr: resolveColumn(snap, ir.Table, "price")}}
	case strings.Contains(text, "newest"):
		ir.OrderBy = []OrderBy{{Expr: resolveColumn(snap, ir.Table, "created_at", "id"), Descending: true}}
	case strings.Contains(text, "oldest"):
		ir.OrderBy = []OrderBy{{Expr: resolveColumn(snap, ir.Table, "created_at", "id")}}
	default:
		m := orderByPattern.FindStringSubmatch(text)
		if m == nil {
			return false
		}
		ir.OrderBy = []OrderBy{{
			Expr:       resolveColumn(snap, ir.Table, m[1]),
			Descending: strings.Contains(text, "descending") || strings.Contains(text, "desc"),
		}}
	}
	return true
}

var categoryFilterPattern = regexp.MustCompile(`(?:in the|in)\s+([a-z]+)\s+category|category\s+([a-z]+)`)

func buildCategoryFilter(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool {
	m := categoryFilterPattern.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	category := m[1]
	if category == "" {
		category = m[2]
	}
	if category == "" || isStopWord(category) {
		return false
	}
	ir.Conditions = append(ir.Conditions, Condition{
		Column:   resolveColumn(snap, ir.Table, "category"),
		Operator: "=",
		Value:    titleCase(category),
	})
	return true
}

func buildCount(ir *QueryIR, _ string, _ *metadata.SchemaSnapshot) bool {
	ir.Aggregation = AggregationCount
	ir.AggregateColumn = "*"
	return true
}

func buildSelectAll(ir *QueryIR, _ string, _ *metadata.SchemaSnapshot) bool {
	ir.Columns = []string{"*"}
	return true
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "all": {}, "any": {}, "my": {}, "me": {},
	"show": {}, "list": {}, "get": {}, "find": {}, "of": {}, "in": {}, "for": {},
}

func isStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// isTableForm reports whether the word is a spelling of the table name.
func isTableForm(word, table string) bool {
	for _, form := range nameForms(strings.ToLower(table)) {
		if word == form {
			return true
		}
	}
	return false
}

// titleCase upper-cases the first letter so category values match the
// conventional stored form.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
