package drivers

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"querygate/internal/model"
)

// SQLiteDriver implements Driver for embedded SQLite tenant stores. Each
// tenant's database is a single file; the Database field carries its path.
type SQLiteDriver struct{}

func (d *SQLiteDriver) Open(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite", dsn)
}

func (d *SQLiteDriver) BuildDSN(config *model.ConnectionConfig) string {
	return config.Database
}

func (d *SQLiteDriver) ValidateDSN(dsn string) error {
	if dsn == "" {
		return fmt.Errorf("sqlite DSN requires a file path")
	}
	return nil
}

// GetDefaultPort returns 0: sqlite is file-backed and has no listener.
func (d *SQLiteDriver) GetDefaultPort() int { return 0 }

func (d *SQLiteDriver) GetKindName() string { return string(model.DatabaseKindSQLite) }

func (d *SQLiteDriver) GetDriverName() string { return "sqlite" }

func (d *SQLiteDriver) TestConnection(ctx context.Context, db *sql.DB) error {
	var one int
	return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (d *SQLiteDriver) ConfigurePool(db *sql.DB, config *model.ConnectionConfig) {
	configurePoolDefaults(db, config)
	// A file-backed store serializes writers; there is no point holding a
	// large pool open against it.
	db.SetMaxOpenConns(1 + config.MaxOverflow)
}

func (d *SQLiteDriver) ApplyPagination(query string, limit, offset int) string {
	if offset > 0 {
		return fmt.Sprintf("%s LIMIT %d OFFSET %d", query, limit, offset)
	}
	return fmt.Sprintf("%s LIMIT %d", query, limit)
}
