package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"vitess.io/vitess/go/vt/sqlparser"

	"querygate/internal/database"
	"querygate/internal/database/metadata"
	"querygate/internal/model"
	"querygate/internal/security"
	"querygate/internal/utils"
)

// DocumentQuery is the structured pipeline emitted for document stores,
// which have no shared textual query language.
type DocumentQuery struct {
	Collection        string   `json:"collection"`
	Filter            bson.M   `json:"filter,omitempty"`
	Projection        bson.M   `json:"projection,omitempty"`
	AggregatePipeline []bson.M `json:"aggregatePipeline,omitempty"`
}

// GeneratedQuery is the output of code generation, exactly one of SQL or
// Document populated depending on the target kind.
type GeneratedQuery struct {
	SQL      string         `json:"sql,omitempty"`
	Document *DocumentQuery `json:"document,omitempty"`
}

// Text renders the query for logging and for returning to the caller.
func (q *GeneratedQuery) Text() string {
	if q.SQL != "" {
		return q.SQL
	}
	if q.Document != nil {
		return fmt.Sprintf("db.%s pipeline", q.Document.Collection)
	}
	return ""
}

// Generator turns a QueryIR into dialect text. Every referenced table is
// permission-checked before anything is emitted.
type Generator struct {
	gate            *security.Gate
	drivers         *database.DriverRegistry
	confidenceFloor float64
}

// NewGenerator builds a generator. A non-positive floor falls back to 0.3.
func NewGenerator(gate *security.Gate, drivers *database.DriverRegistry, confidenceFloor float64) *Generator {
	if confidenceFloor <= 0 {
		confidenceFloor = 0.3
	}
	return &Generator{gate: gate, drivers: drivers, confidenceFloor: confidenceFloor}
}

// Generate emits the dialect query for the IR. It fails closed: an IR
// below the confidence floor is rejected with schema-derived suggestions,
// and any table the caller cannot read raises a permission error carrying
// an alternative suggestion.
func (g *Generator) Generate(ir *QueryIR, kind model.DatabaseKind, rc model.TenantRoutingContext, snap *metadata.SchemaSnapshot) (*GeneratedQuery, error) {
	if ir.Confidence < g.confidenceFloor || ir.Table == "" {
		return nil, utils.NewLowConfidenceError(suggestQueries(snap))
	}

	for _, table := range ir.Tables() {
		if g.gate.CheckTablePermission(rc, table, security.AccessRead) {
			continue
		}
		return nil, utils.NewPermissionError(
			fmt.Sprintf("role %s may not read table %s in this tenant", rc.PrimaryRole(), table),
			alternativeSuggestion(g.gate.ReadableTables(rc)),
		)
	}

	if kind == model.DatabaseKindDocument {
		return &GeneratedQuery{Document: g.generateDocument(ir)}, nil
	}

	sql, err := g.generateSQL(ir, kind)
	if err != nil {
		return nil, err
	}
	return &GeneratedQuery{SQL: sql}, nil
}

func (g *Generator) generateSQL(ir *QueryIR, kind model.DatabaseKind) (string, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selectList(ir), ", "))
	b.WriteString(" FROM ")
	b.WriteString(ir.Table)

	for _, join := range ir.Joins {
		b.WriteString(" JOIN ")
		b.WriteString(join.Table)
		if join.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(join.Alias)
		}
		b.WriteString(" ON ")
		b.WriteString(join.OnExpr)
	}

	if len(ir.Conditions) > 0 {
		b.WriteString(" WHERE ")
		parts := make([]string, 0, len(ir.Conditions))
		for _, c := range ir.Conditions {
			parts = append(parts, fmt.Sprintf("%s %s %s", c.Column, c.Operator, sqlValue(c)))
		}
		b.WriteString(strings.Join(parts, " AND "))
	}

	if len(ir.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(ir.GroupBy, ", "))
	}
	if ir.Having != "" {
		b.WriteString(" HAVING ")
		b.WriteString(ir.Having)
	}
	if len(ir.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		terms := make([]string, 0, len(ir.OrderBy))
		for _, o := range ir.OrderBy {
			if o.Descending {
				terms = append(terms, o.Expr+" DESC")
			} else {
				terms = append(terms, o.Expr)
			}
		}
		b.WriteString(strings.Join(terms, ", "))
	}

	sql := b.String()
	if ir.Limit > 0 {
		driver, err := g.drivers.GetDriver(kind)
		if err != nil {
			return "", err
		}
		sql = driver.ApplyPagination(sql, ir.Limit, 0)
	}

	// Parse the result before handing it to a tenant database. A failure
	// here is a generator bug and must not reach the store.
	if _, err := sqlparser.Parse(sql); err != nil {
		return "", utils.NewExecutionError(fmt.Errorf("generated query failed validation: %w", err))
	}
	return sql, nil
}

// selectList resolves the projected expressions. An aggregate without a
// GROUP BY collapses the projection to the aggregate alone.
func selectList(ir *QueryIR) []string {
	if ir.Aggregation != AggregationNone && len(ir.GroupBy) == 0 {
		col := ir.AggregateColumn
		if col == "" {
			col = "*"
		}
		return []string{fmt.Sprintf("%s(%s)", ir.Aggregation, col)}
	}
	if len(ir.Columns) == 0 {
		return []string{"*"}
	}
	return ir.Columns
}

// sqlValue quotes strings and leaves numbers bare. Single quotes inside a
// string value are doubled.
func sqlValue(c Condition) string {
	if c.IsNumeric() {
		return c.Value
	}
	return "'" + strings.ReplaceAll(c.Value, "'", "''") + "'"
}

func (g *Generator) generateDocument(ir *QueryIR) *DocumentQuery {
	doc := &DocumentQuery{Collection: ir.Table, Filter: documentFilter(ir.Conditions)}

	needsPipeline := ir.Aggregation != AggregationNone || len(ir.GroupBy) > 0 || len(ir.Joins) > 0
	if !needsPipeline {
		if proj := documentProjection(ir.Columns); len(proj) > 0 {
			doc.Projection = proj
		}
		return doc
	}

	var pipeline []bson.M
	if len(doc.Filter) > 0 {
		pipeline = append(pipeline, bson.M{"$match": doc.Filter})
	}
	for _, join := range ir.Joins {
		if stage, ok := lookupStage(join); ok {
			pipeline = append(pipeline, stage)
		}
	}
	switch {
	case ir.Aggregation == AggregationCount && len(ir.GroupBy) == 0:
		pipeline = append(pipeline, bson.M{"$count": "count"})
	case len(ir.GroupBy) > 0:
		pipeline = append(pipeline, bson.M{"$group": bson.M{
			"_id":   "$" + trimTablePrefix(ir.GroupBy[0]),
			"count": bson.M{"$sum": 1},
		}})
	case ir.Aggregation != AggregationNone:
		pipeline = append(pipeline, bson.M{"$group": bson.M{
			"_id":    nil,
			"result": bson.M{"$" + strings.ToLower(string(ir.Aggregation)): "$" + ir.AggregateColumn},
		}})
	}
	for _, o := range ir.OrderBy {
		dir := 1
		if o.Descending {
			dir = -1
		}
		pipeline = append(pipeline, bson.M{"$sort": bson.M{trimTablePrefix(o.Expr): dir}})
	}
	if ir.Limit > 0 {
		pipeline = append(pipeline, bson.M{"$limit": ir.Limit})
	}

	doc.Filter = nil
	doc.AggregatePipeline = pipeline
	return doc
}

func documentFilter(conditions []Condition) bson.M {
	if len(conditions) == 0 {
		return nil
	}
	filter := bson.M{}
	for _, c := range conditions {
		switch c.Operator {
		case "=":
			filter[c.Column] = documentValue(c)
		case "<":
			filter[c.Column] = bson.M{"$lt": documentValue(c)}
		case "<=":
			filter[c.Column] = bson.M{"$lte": documentValue(c)}
		case ">":
			filter[c.Column] = bson.M{"$gt": documentValue(c)}
		case ">=":
			filter[c.Column] = bson.M{"$gte": documentValue(c)}
		}
	}
	return filter
}

func documentValue(c Condition) interface{} {
	if f, err := strconv.ParseFloat(c.Value, 64); err == nil {
		return f
	}
	return c.Value
}

func documentProjection(columns []string) bson.M {
	proj := bson.M{}
	for _, col := range columns {
		if col == "*" {
			return nil
		}
		proj[col] = 1
	}
	return proj
}

// lookupStage converts a join whose ON expression is a plain equality,
// such as "customers.id = orders.customer_id", into a $lookup stage.
func lookupStage(join Join) (bson.M, bool) {
	sides := strings.SplitN(join.OnExpr, "=", 2)
	if len(sides) != 2 {
		return nil, false
	}
	local := trimTablePrefix(strings.TrimSpace(sides[0]))
	foreign := trimTablePrefix(strings.TrimSpace(sides[1]))
	return bson.M{"$lookup": bson.M{
		"from":         join.Table,
		"localField":   local,
		"foreignField": foreign,
		"as":           join.Table,
	}}, true
}

func trimTablePrefix(expr string) string {
	if i := strings.LastIndexByte(expr, '.'); i >= 0 {
		return expr[i+1:]
	}
	return expr
}

// suggestQueries derives example phrasings from the tenant schema so a
// failed parse tells the user what would work.
func suggestQueries(snap *metadata.SchemaSnapshot) string {
	if snap == nil || len(snap.Tables) == 0 {
		return "try naming one of your tenant's tables, for example \"show me all orders\""
	}
	names := snap.TableNames()
	if len(names) > 3 {
		names = names[:3]
	}
	suggestions := make([]string, 0, len(names))
	for _, t := range names {
		suggestions = append(suggestions, fmt.Sprintf("\"show me all %s\"", t))
	}
	return "try one of: " + strings.Join(suggestions, ", ")
}

func alternativeSuggestion(readable []string) string {
	if len(readable) == 0 {
		return "ask an administrator to grant access to this table"
	}
	if len(readable) > 5 {
		readable = readable[:5]
	}
	return "your role can query: " + strings.Join(readable, ", ")
}
