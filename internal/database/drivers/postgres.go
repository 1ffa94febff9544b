package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"querygate/internal/model"
)

// PostgresDriver implements Driver for PostgreSQL tenant stores.
type PostgresDriver struct{}

func (d *PostgresDriver) Open(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

func (d *PostgresDriver) BuildDSN(config *model.ConnectionConfig) string {
	sslMode := "disable"
	if config.SSL {
		sslMode = "require"
	}

	parts := []string{
		fmt.Sprintf("host=%s", config.Host),
		fmt.Sprintf("port=%d", d.portOrDefault(config.Port)),
		fmt.Sprintf("dbname=%s", config.Database),
		fmt.Sprintf("user=%s", config.Username),
		fmt.Sprintf("sslmode=%s", sslMode),
	}
	if config.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", config.Password))
	}
	if config.Timezone != "" {
		parts = append(parts, fmt.Sprintf("timezone=%s", config.Timezone))
	}
	return strings.Join(parts, " ")
}

func (d *PostgresDriver) ValidateDSN(dsn string) error {
	if dsn == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if !strings.Contains(dsn, "host=") || !strings.Contains(dsn, "dbname=") {
		return fmt.Errorf("postgres DSN must carry host and dbname")
	}
	return nil
}

func (d *PostgresDriver) GetDefaultPort() int { return 5432 }

func (d *PostgresDriver) GetKindName() string { return string(model.DatabaseKindPostgres) }

func (d *PostgresDriver) GetDriverName() string { return "postgres" }

func (d *PostgresDriver) TestConnection(ctx context.Context, db *sql.DB) error {
	var one int
	return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (d *PostgresDriver) ConfigurePool(db *sql.DB, config *model.ConnectionConfig) {
	configurePoolDefaults(db, config)
}

func (d *PostgresDriver) ApplyPagination(query string, limit, offset int) string {
	if offset > 0 {
		return fmt.Sprintf("%s LIMIT %d OFFSET %d", query, limit, offset)
	}
	return fmt.Sprintf("%s LIMIT %d", query, limit)
}

func (d *PostgresDriver) portOrDefault(port int) int {
	if port <= 0 {
		return d.GetDefaultPort()
	}
	return port
}
