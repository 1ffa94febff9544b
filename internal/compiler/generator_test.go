package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"querygate/internal/config"
	"querygate/internal/database"
	"querygate/internal/model"
	"querygate/internal/security"
	"querygate/internal/utils"
)

func testGenerator() *Generator {
	cfg := config.SecurityConfig{
		RiskScoreThreshold: 10,
		ComplexityCeilings: map[string]int{"guest": 3, "viewer": 5, "admin": 50},
	}
	gate := security.NewGate(cfg, nil)
	return NewGenerator(gate, database.NewDriverRegistry(), 0.3)
}

func adminContext() model.TenantRoutingContext {
	return model.TenantRoutingContext{
		UserID:   "u1",
		TenantID: "tenant-1",
		Roles:    []string{"admin"},
		Industry: "retail",
	}
}

func TestGenerateSelectAll(t *testing.T) {
	snap := retailSnapshot()
	ir := NewParser().Parse("Show me all products", snap)

	query, err := testGenerator().Generate(ir, model.DatabaseKindSQLite, adminContext(), snap)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM products", query.SQL)
	assert.Nil(t, query.Document)
}

func TestGenerateCountWithFilter(t *testing.T) {
	snap := retailSnapshot()
	ir := NewParser().Parse("How many products cost less than $50?", snap)

	query, err := testGenerator().Generate(ir, model.DatabaseKindMySQL, adminContext(), snap)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM products WHERE price < 50", query.SQL)
}

func TestGenerateQuotesStringValues(t *testing.T) {
	snap := retailSnapshot()
	ir := NewParser().Parse("Electronics products under $100", snap)

	query, err := testGenerator().Generate(ir, model.DatabaseKindPostgres, adminContext(), snap)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, "category = 'Electronics'")
	assert.Contains(t, query.SQL, "price < 100")
}

func TestGenerateTopCustomersJoin(t *testing.T) {
	snap := biSnapshot()
	ir := NewParser().Parse("top 5 customers by spend", snap)

	query, err := testGenerator().Generate(ir, model.DatabaseKindMySQL, adminContext(), snap)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, "JOIN orders ON customers.id = orders.customer_id")
	assert.Contains(t, query.SQL, "GROUP BY customers.id, customers.name")
	assert.Contains(t, query.SQL, "ORDER BY total_spend DESC")
	assert.Contains(t, query.SQL, "LIMIT 5")
}

func TestGenerateLowConfidenceRejected(t *testing.T) {
	snap := retailSnapshot()
	ir := NewParser().Parse("Show me all spaceships", snap)

	_, err := testGenerator().Generate(ir, model.DatabaseKindSQLite, adminContext(), snap)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeLowConfidence))

	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Hint, "show me all")
}

func TestGeneratePermissionDenied(t *testing.T) {
	snap := retailSnapshot()
	ir := NewParser().Parse("Show me all orders", snap)

	viewer := model.TenantRoutingContext{
		UserID:   "u1",
		TenantID: "tenant-1",
		Roles:    []string{"viewer"},
		Industry: "technology",
	}
	_, err := testGenerator().Generate(ir, model.DatabaseKindSQLite, viewer, snap)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodePermissionDenied))

	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.NotEmpty(t, appErr.Hint, "denials must carry an alternative suggestion")
	assert.Contains(t, appErr.Message, "orders")
}

func TestGenerateDocumentFilter(t *testing.T) {
	snap := retailSnapshot()
	snap.DatabaseKind = model.DatabaseKindDocument
	ir := NewParser().Parse("products cheaper than $25", snap)

	query, err := testGenerator().Generate(ir, model.DatabaseKindDocument, adminContext(), snap)
	require.NoError(t, err)
	require.NotNil(t, query.Document)
	assert.Empty(t, query.SQL)
	assert.Equal(t, "products", query.Document.Collection)

	price, ok := query.Document.Filter["price"]
	require.True(t, ok)
	assert.Equal(t, bson.M{"$lt": float64(25)}, price)
}

func TestGenerateDocumentCountPipeline(t *testing.T) {
	snap := retailSnapshot()
	ir := NewParser().Parse("How many products cost less than $50?", snap)

	query, err := testGenerator().Generate(ir, model.DatabaseKindDocument, adminContext(), snap)
	require.NoError(t, err)
	require.NotNil(t, query.Document)
	require.NotEmpty(t, query.Document.AggregatePipeline)

	last := query.Document.AggregatePipeline[len(query.Document.AggregatePipeline)-1]
	assert.Contains(t, last, "$count")
}

func TestRoundTripReferencesOnlySchemaTables(t *testing.T) {
	snap := biSnapshot()
	inputs := []string{
		"Show me all products",
		"How many products cost less than $50?",
		"top 10 customers by spend",
		"best selling products",
		"Electronics products under $100",
	}
	for _, text := range inputs {
		ir := NewParser().Parse(text, snap)
		if ir.Confidence < 0.3 {
			continue
		}
		for _, table := range ir.Tables() {
			assert.True(t, snap.HasTable(table), "input %q referenced unknown table %q", text, table)
		}
	}
}

func TestGeneratedQueryTextForLogging(t *testing.T) {
	sqlQuery := &GeneratedQuery{SQL: "SELECT 1"}
	assert.Equal(t, "SELECT 1", sqlQuery.Text())

	docQuery := &GeneratedQuery{Document: &DocumentQuery{Collection: "products"}}
	assert.True(t, strings.Contains(docQuery.Text(), "products"))
}
