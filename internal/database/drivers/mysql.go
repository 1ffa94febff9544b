package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"querygate/internal/model"
)

// MySQLDriver implements Driver for MySQL/MariaDB tenant stores.
type MySQLDriver struct{}

func (d *MySQLDriver) Open(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

func (d *MySQLDriver) BuildDSN(config *model.ConnectionConfig) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		config.Username,
		config.Password,
		config.Host,
		d.portOrDefault(config.Port),
		config.Database,
	)

	params := []string{"parseTime=true"}
	if config.SSL {
		params = append(params, "tls=true")
	}
	if config.Timezone != "" {
		params = append(params, "loc="+config.Timezone)
	}
	return dsn + "?" + strings.Join(params, "&")
}

func (d *MySQLDriver) ValidateDSN(dsn string) error {
	if dsn == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if !strings.Contains(dsn, "@tcp(") {
		return fmt.Errorf("mysql DSN must use tcp address form")
	}
	return nil
}

func (d *MySQLDriver) GetDefaultPort() int { return 3306 }

func (d *MySQLDriver) GetKindName() string { return string(model.DatabaseKindMySQL) }

func (d *MySQLDriver) GetDriverName() string { return "mysql" }

func (d *MySQLDriver) TestConnection(ctx context.Context, db *sql.DB) error {
	var one int
	return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (d *MySQLDriver) ConfigurePool(db *sql.DB, config *model.ConnectionConfig) {
	configurePoolDefaults(db, config)
}

func (d *MySQLDriver) ApplyPagination(query string, limit, offset int) string {
	if offset > 0 {
		return fmt.Sprintf("%s LIMIT %d OFFSET %d", query, limit, offset)
	}
	return fmt.Sprintf("%s LIMIT %d", query, limit)
}

func (d *MySQLDriver) portOrDefault(port int) int {
	if port <= 0 {
		return d.GetDefaultPort()
	}
	return port
}
