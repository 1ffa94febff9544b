package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"querygate/internal/database"
	"querygate/internal/model"
)

// MetadataExtractor introspects tenant stores to rebuild schema snapshots.
// It rides the same managed pools the query path uses.
type MetadataExtractor struct {
	manager *database.ConnectionManager
}

// NewMetadataExtractor creates an extractor over the connection manager.
func NewMetadataExtractor(manager *database.ConnectionManager) *MetadataExtractor {
	return &MetadataExtractor{manager: manager}
}

// ExtractSchema rebuilds the tenant's snapshot from its live database.
func (e *MetadataExtractor) ExtractSchema(ctx context.Context, tenantID string) (*SchemaSnapshot, error) {
	conn, err := e.manager.GetConnection(ctx, tenantID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	snapshot := &SchemaSnapshot{
		TenantID:     tenantID,
		DatabaseKind: conn.Kind,
		LastUpdated:  time.Now(),
		Version:      fmt.Sprintf("v%d", time.Now().Unix()),
	}

	if conn.Kind == model.DatabaseKindDocument {
		tables, err := e.extractCollections(ctx, conn)
		if err != nil {
			return nil, err
		}
		snapshot.Tables = tables
		return snapshot, nil
	}

	tables, err := e.extractTables(ctx, conn)
	if err != nil {
		return nil, err
	}
	snapshot.Tables = tables
	snapshot.Relationships = e.extractRelationships(ctx, conn)
	return snapshot, nil
}

// extractTables lists tables and their columns for a relational tenant.
func (e *MetadataExtractor) extractTables(ctx context.Context, conn *database.Connection) (map[string][]ColumnSchema, error) {
	tables := make(map[string][]ColumnSchema)

	rows, err := conn.DB.QueryContext(ctx, e.tableQuery(conn.Kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, name := range names {
		columns, err := e.extractColumns(ctx, conn, name)
		if err != nil {
			continue
		}
		tables[name] = columns
	}
	return tables, nil
}

func (e *MetadataExtractor) extractColumns(ctx context.Context, conn *database.Connection, tableName string) ([]ColumnSchema, error) {
	query, args := e.columnQuery(conn.Kind, tableName)

	rows, err := conn.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnSchema
	for rows.Next() {
		var col ColumnSchema
		if conn.Kind == model.DatabaseKindSQLite {
			// PRAGMA table_info: cid, name, type, notnull, dflt_value, pk
			var cid, notNull, pk int
			var dflt sql.NullString
			if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
				continue
			}
			col.Nullable = notNull == 0
		} else {
			var nullable string
			if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
				continue
			}
			col.Nullable = strings.EqualFold(nullable, "YES")
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// extractRelationships reads foreign keys so the compiler can build joins.
// Missing relationship metadata is tolerated; join templates carry their own
// default keys.
func (e *MetadataExtractor) extractRelationships(ctx context.Context, conn *database.Connection) []Relationship {
	query := e.foreignKeyQuery(conn.Kind)
	if query == "" {
		return nil
	}

	rows, err := conn.DB.QueryContext(ctx, query)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var rel Relationship
		if err := rows.Scan(&rel.FromTable, &rel.FromColumn, &rel.ToTable, &rel.ToColumn); err != nil {
			continue
		}
		rels = append(rels, rel)
	}
	return rels
}

// extractCollections lists collections of a document tenant and samples one
// record per collection to sketch field names.
func (e *MetadataExtractor) extractCollections(ctx context.Context, conn *database.Connection) (map[string][]ColumnSchema, error) {
	names, err := conn.Mongo.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	tables := make(map[string][]ColumnSchema, len(names))
	for _, name := range names {
		var sample bson.M
		err := conn.Mongo.Collection(name).FindOne(ctx, bson.D{}).Decode(&sample)
		if err != nil {
			// Empty collection: register the name with no field sketch.
			tables[name] = nil
			continue
		}

		columns := make([]ColumnSchema, 0, len(sample))
		for field, value := range sample {
			columns = append(columns, ColumnSchema{
				Name:     field,
				Type:     fmt.Sprintf("%T", value),
				Nullable: true,
			})
		}
		tables[name] = columns
	}
	return tables, nil
}

func (e *MetadataExtractor) tableQuery(kind model.DatabaseKind) string {
	switch kind {
	case model.DatabaseKindPostgres:
		return "SELECT tablename FROM pg_tables WHERE schemaname NOT IN ('pg_catalog', 'information_schema')"
	case model.DatabaseKindSQLite:
		return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"
	default: // mysql
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE()"
	}
}

func (e *MetadataExtractor) columnQuery(kind model.DatabaseKind, tableName string) (string, []interface{}) {
	switch kind {
	case model.DatabaseKindPostgres:
		return "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_name = $1", []interface{}{tableName}
	case model.DatabaseKindSQLite:
		// PRAGMA does not take placeholders. Table names come from
		// sqlite_master above, not from user input.
		return fmt.Sprintf("PRAGMA table_info(%q)", tableName), nil
	default:
		return "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?", []interface{}{tableName}
	}
}

func (e *MetadataExtractor) foreignKeyQuery(kind model.DatabaseKind) string {
	switch kind {
	case model.DatabaseKindMySQL:
		return "SELECT table_name, column_name, referenced_table_name, referenced_column_name " +
			"FROM information_schema.key_column_usage " +
			"WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL"
	case model.DatabaseKindPostgres:
		return "SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name " +
			"FROM information_schema.table_constraints tc " +
			"JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name " +
			"JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name " +
			"WHERE tc.constraint_type = 'FOREIGN KEY'"
	default:
		return ""
	}
}
