package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"querygate/internal/config"
	"querygate/internal/database"
	"querygate/internal/database/metadata"
	"querygate/internal/model"
	"querygate/internal/repository"
	"querygate/internal/security"
)

type staticExtractor struct {
	snapshots map[string]*metadata.SchemaSnapshot
}

func (e *staticExtractor) ExtractSchema(ctx context.Context, tenantID string) (*metadata.SchemaSnapshot, error) {
	return e.snapshots[tenantID], nil
}

func seedRetailDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer db.Close()

	stmts := []string{
		"CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT, category TEXT, price REAL)",
		"INSERT INTO products VALUES (1, 'Keyboard', 'Electronics', 49.90)",
		"INSERT INTO products VALUES (2, 'Monitor', 'Electronics', 199.00)",
		"INSERT INTO products VALUES (3, 'Desk', 'Furniture', 320.00)",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	retailPath := filepath.Join(t.TempDir(), "retail.db")
	seedRetailDB(t, retailPath)

	registry := repository.NewMemoryTenantRegistry()
	registry.Put(&model.TenantRecord{
		TenantID:     "retail-1",
		DatabaseKind: model.DatabaseKindSQLite,
		Industry:     "retail",
		Config:       model.ConnectionConfig{Database: retailPath},
	})
	registry.Put(&model.TenantRecord{
		TenantID:     "tech-1",
		DatabaseKind: model.DatabaseKindSQLite,
		Industry:     "technology",
		Config:       model.ConnectionConfig{Database: filepath.Join(t.TempDir(), "tech.db")},
	})

	cfg := &config.Config{
		Security: config.SecurityConfig{
			UserRatePerMinute:    30,
			AddressRatePerMinute: 50,
			RiskScoreThreshold:   10,
			ComplexityCeilings: map[string]int{
				"guest": 3, "viewer": 5, "analyst": 30, "admin": 50,
			},
		},
		Compiler: config.CompilerConfig{ConfidenceFloor: 0.3},
	}

	drivers := database.NewDriverRegistry()
	manager := database.NewConnectionManager(registry, drivers, config.PoolConfig{})
	t.Cleanup(manager.CloseAll)

	schemas := metadata.NewSchemaCache(time.Hour, time.Hour)
	snapshots := map[string]*metadata.SchemaSnapshot{
		"retail-1": {
			TenantID:     "retail-1",
			DatabaseKind: model.DatabaseKindSQLite,
			Tables: map[string][]metadata.ColumnSchema{
				"products": {
					{Name: "id", Type: "integer"},
					{Name: "name", Type: "text"},
					{Name: "category", Type: "text"},
					{Name: "price", Type: "real"},
				},
			},
			LastUpdated: time.Now(),
		},
		"tech-1": {
			TenantID:     "tech-1",
			DatabaseKind: model.DatabaseKindSQLite,
			Tables: map[string][]metadata.ColumnSchema{
				"employees": {{Name: "id", Type: "integer"}, {Name: "salary", Type: "real"}},
				"projects":  {{Name: "id", Type: "integer"}, {Name: "name", Type: "text"}},
			},
			LastUpdated: time.Now(),
		},
	}
	for _, snap := range snapshots {
		schemas.Set(snap)
	}

	gate := security.NewGate(cfg.Security, security.NewMemoryPermissionStore())
	return NewOrchestrator(cfg, registry, manager, gate,
		drivers, schemas, &staticExtractor{snapshots: snapshots}, nil)
}

func TestExecuteQuerySuccess(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	result := orchestrator.ExecuteQuery(context.Background(), &model.QueryRequest{
		TenantID:     "retail-1",
		UserID:       "analyst-1",
		Roles:        []string{"analyst"},
		NaturalQuery: "Give me all products",
	})

	if result.Status != model.QueryStatusSuccess {
		t.Fatalf("expected success, got %s: %s", result.Status, result.Message)
	}
	if result.GeneratedQuery != "SELECT * FROM products" {
		t.Errorf("unexpected generated query: %q", result.GeneratedQuery)
	}
	if result.RowCount != 3 {
		t.Errorf("expected 3 rows, got %d", result.RowCount)
	}
	if result.QueryID == "" {
		t.Error("expected a query id")
	}
	found := false
	for _, col := range result.Columns {
		if col == "name" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a name column, got %v", result.Columns)
	}
}

func TestExecuteQueryFilteredCount(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	result := orchestrator.ExecuteQuery(context.Background(), &model.QueryRequest{
		TenantID:     "retail-1",
		UserID:       "analyst-2",
		Roles:        []string{"analyst"},
		NaturalQuery: "How many products cost less than $50?",
	})

	if result.Status != model.QueryStatusSuccess {
		t.Fatalf("expected success, got %s: %s", result.Status, result.Message)
	}
	if result.GeneratedQuery != "SELECT COUNT(*) FROM products WHERE price < 50" {
		t.Errorf("unexpected generated query: %q", result.GeneratedQuery)
	}
	if result.RowCount != 1 {
		t.Fatalf("expected one aggregate row, got %d", result.RowCount)
	}
}

func TestExecuteQueryBlocksUnauthorizedTable(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	result := orchestrator.ExecuteQuery(context.Background(), &model.QueryRequest{
		TenantID:     "tech-1",
		UserID:       "viewer-1",
		Roles:        []string{"viewer"},
		NaturalQuery: "Give me all employees",
	})

	if result.Status != model.QueryStatusBlocked {
		t.Fatalf("expected blocked, got %s: %s", result.Status, result.Message)
	}
	if result.GeneratedQuery != "" {
		t.Errorf("blocked result leaked the generated query: %q", result.GeneratedQuery)
	}
	if len(result.Rows) != 0 {
		t.Errorf("blocked result carried rows: %d", len(result.Rows))
	}
	if !strings.Contains(result.Message, "employees") {
		t.Errorf("denial should name the table, got %q", result.Message)
	}
	if !strings.Contains(result.Message, "projects") {
		t.Errorf("denial should suggest readable alternatives, got %q", result.Message)
	}
}

func TestExecuteQueryBlocksInjection(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	result := orchestrator.ExecuteQuery(context.Background(), &model.QueryRequest{
		TenantID:     "retail-1",
		UserID:       "attacker",
		Roles:        []string{"analyst"},
		NaturalQuery: "'; DROP TABLE users; --",
	})

	if result.Status != model.QueryStatusBlocked {
		t.Fatalf("expected blocked, got %s: %s", result.Status, result.Message)
	}
	if strings.Contains(result.Message, "DROP TABLE") {
		t.Errorf("blocked message echoed the payload: %q", result.Message)
	}
}

func TestExecuteQueryUnknownTenant(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	result := orchestrator.ExecuteQuery(context.Background(), &model.QueryRequest{
		TenantID:     "ghost",
		UserID:       "u1",
		Roles:        []string{"analyst"},
		NaturalQuery: "Give me all products",
	})

	if result.Status != model.QueryStatusError {
		t.Fatalf("expected error, got %s", result.Status)
	}
	if !strings.Contains(result.Message, "not found") {
		t.Errorf("expected a not-found message, got %q", result.Message)
	}
}

func TestExecuteQueryInvalidRequest(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	result := orchestrator.ExecuteQuery(context.Background(), &model.QueryRequest{
		TenantID: "retail-1",
		UserID:   "u1",
	})

	if result.Status != model.QueryStatusError {
		t.Fatalf("expected error for a missing query, got %s", result.Status)
	}
}

func TestExecuteQueryUnparseableInput(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	result := orchestrator.ExecuteQuery(context.Background(), &model.QueryRequest{
		TenantID:     "retail-1",
		UserID:       "u2",
		Roles:        []string{"analyst"},
		NaturalQuery: "please summon the quarterly spirits",
	})

	if result.Status != model.QueryStatusError {
		t.Fatalf("expected error for an unparseable query, got %s", result.Status)
	}
	if !strings.Contains(result.Message, "show me all") {
		t.Errorf("low-confidence failure should suggest phrasings, got %q", result.Message)
	}
}
