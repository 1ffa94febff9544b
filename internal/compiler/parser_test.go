package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/internal/database/metadata"
)

func retailSnapshot() *metadata.SchemaSnapshot {
	return &metadata.SchemaSnapshot{
		TenantID:     "tenant-1",
		DatabaseKind: "relational-sqlite",
		Tables: map[string][]metadata.ColumnSchema{
			"products": {
				{Name: "id", Type: "integer"},
				{Name: "name", Type: "text"},
				{Name: "category", Type: "text"},
				{Name: "price", Type: "real"},
			},
			"orders": {
				{Name: "id", Type: "integer"},
				{Name: "customer_id", Type: "integer"},
				{Name: "total", Type: "real"},
			},
		},
	}
}

func biSnapshot() *metadata.SchemaSnapshot {
	snap := retailSnapshot()
	snap.Tables["customers"] = []metadata.ColumnSchema{
		{Name: "id", Type: "integer"}, {Name: "name", Type: "text"},
	}
	snap.Tables["order_items"] = []metadata.ColumnSchema{
		{Name: "product_id", Type: "integer"}, {Name: "quantity", Type: "integer"},
	}
	snap.Tables["inventory"] = []metadata.ColumnSchema{
		{Name: "warehouse_id", Type: "integer"}, {Name: "quantity", Type: "integer"},
	}
	snap.Tables["warehouses"] = []metadata.ColumnSchema{
		{Name: "id", Type: "integer"}, {Name: "name", Type: "text"},
	}
	return snap
}

func TestParseSelectAll(t *testing.T) {
	ir := NewParser().Parse("Show me all products", retailSnapshot())

	assert.Equal(t, "products", ir.Table)
	assert.Equal(t, []string{"*"}, ir.Columns)
	assert.GreaterOrEqual(t, ir.Confidence, 0.3)
	assert.Empty(t, ir.Conditions)
	assert.Equal(t, AggregationNone, ir.Aggregation)
}

func TestParseCountWithFilter(t *testing.T) {
	ir := NewParser().Parse("How many products cost less than $50?", retailSnapshot())

	assert.Equal(t, "products", ir.Table)
	assert.Equal(t, AggregationCount, ir.Aggregation)
	require.Len(t, ir.Conditions, 1)
	assert.Equal(t, Condition{Column: "price", Operator: "<", Value: "50"}, ir.Conditions[0])
	assert.GreaterOrEqual(t, ir.Confidence, 0.3)
}

func TestParseUnknownTableFailsClosed(t *testing.T) {
	ir := NewParser().Parse("Show me all spaceships", retailSnapshot())

	assert.Empty(t, ir.Table)
	assert.Zero(t, ir.Confidence)
}

func TestParseSingularTableForm(t *testing.T) {
	ir := NewParser().Parse("find the most expensive product", retailSnapshot())

	assert.Equal(t, "products", ir.Table)
	require.Len(t, ir.OrderBy, 1)
	assert.Equal(t, "price", ir.OrderBy[0].Expr)
	assert.True(t, ir.OrderBy[0].Descending)
}

func TestParseCategoryThreshold(t *testing.T) {
	ir := NewParser().Parse("Electronics products under $100", retailSnapshot())

	require.Len(t, ir.Conditions, 2)
	assert.Equal(t, Condition{Column: "category", Operator: "=", Value: "Electronics"}, ir.Conditions[0])
	assert.Equal(t, Condition{Column: "price", Operator: "<", Value: "100"}, ir.Conditions[1])
}

func TestParseBetween(t *testing.T) {
	ir := NewParser().Parse("products priced between $10 and $20", retailSnapshot())

	require.Len(t, ir.Conditions, 2)
	assert.Equal(t, ">=", ir.Conditions[0].Operator)
	assert.Equal(t, "10", ir.Conditions[0].Value)
	assert.Equal(t, "<=", ir.Conditions[1].Operator)
	assert.Equal(t, "20", ir.Conditions[1].Value)
}

func TestParseTopCustomersTemplate(t *testing.T) {
	ir := NewParser().Parse("top 5 customers by spend", biSnapshot())

	assert.Equal(t, "customers", ir.Table)
	require.Len(t, ir.Joins, 1)
	assert.Equal(t, "orders", ir.Joins[0].Table)
	assert.NotEmpty(t, ir.GroupBy)
	assert.Equal(t, 5, ir.Limit)
	require.Len(t, ir.OrderBy, 1)
	assert.True(t, ir.OrderBy[0].Descending)
}

func TestParseTopCustomersNeedsJoinTables(t *testing.T) {
	// Without an orders table the template cannot fire; the plain rules
	// take over instead of inventing a join.
	snap := &metadata.SchemaSnapshot{Tables: map[string][]metadata.ColumnSchema{
		"customers": {{Name: "id"}, {Name: "name"}},
	}}
	ir := NewParser().Parse("top 5 customers by spend", snap)

	assert.Equal(t, "customers", ir.Table)
	assert.Empty(t, ir.Joins)
}

func TestParseBestSellingTemplate(t *testing.T) {
	ir := NewParser().Parse("best selling products this month", biSnapshot())

	assert.Equal(t, "products", ir.Table)
	require.Len(t, ir.Joins, 1)
	assert.Equal(t, "order_items", ir.Joins[0].Table)
}

func TestParseLowStockTemplate(t *testing.T) {
	ir := NewParser().Parse("which inventory items are running low", biSnapshot())

	assert.Equal(t, "inventory", ir.Table)
	require.Len(t, ir.Conditions, 1)
	assert.Equal(t, "<", ir.Conditions[0].Operator)
	assert.Equal(t, "quantity", ir.Conditions[0].Column)
}

func TestParseGroupBy(t *testing.T) {
	ir := NewParser().Parse("count products per category", retailSnapshot())

	assert.Equal(t, "products", ir.Table)
	assert.Equal(t, []string{"category"}, ir.GroupBy)
}

func TestParseAverageAggregate(t *testing.T) {
	ir := NewParser().Parse("average price of orders", retailSnapshot())

	assert.Equal(t, "orders", ir.Table)
	assert.Equal(t, AggregationAvg, ir.Aggregation)
}
