package drivers

import (
	"context"
	"database/sql"
	"time"

	"querygate/internal/model"
)

// Driver defines the kind-specific operations for a relational tenant store.
// The document kind does not speak database/sql and is handled by the
// connection manager directly.
type Driver interface {
	// Open opens a database handle for the DSN
	Open(dsn string) (*sql.DB, error)

	// BuildDSN builds a connection string from tenant configuration
	BuildDSN(config *model.ConnectionConfig) string

	// ValidateDSN validates the connection string
	ValidateDSN(dsn string) error

	// GetDefaultPort returns the default port for the database
	GetDefaultPort() int

	// GetKindName returns the database kind this driver serves
	GetKindName() string

	// GetDriverName returns the underlying sql driver name
	GetDriverName() string

	// TestConnection issues a trivial round trip
	TestConnection(ctx context.Context, db *sql.DB) error

	// ConfigurePool applies kind-specific pool settings
	ConfigurePool(db *sql.DB, config *model.ConnectionConfig)

	// ApplyPagination appends dialect-correct LIMIT/OFFSET syntax
	ApplyPagination(query string, limit, offset int) string
}

// configurePoolDefaults applies the shared pool sizing rules. Kind-specific
// drivers call this and then adjust what differs for their engine.
func configurePoolDefaults(db *sql.DB, config *model.ConnectionConfig) {
	maxOpen := config.PoolSize
	if maxOpen <= 0 {
		maxOpen = 10
	}
	// Overflow connections open beyond the steady-state pool and are
	// recycled by the idle deadline below.
	db.SetMaxOpenConns(maxOpen + config.MaxOverflow)

	maxIdle := maxOpen / 2
	if maxIdle < 2 {
		maxIdle = 2
	}
	db.SetMaxIdleConns(maxIdle)

	recycle := time.Duration(config.IdleRecycle) * time.Second
	if recycle <= 0 {
		recycle = 30 * time.Minute
	}
	db.SetConnMaxLifetime(recycle)
	db.SetConnMaxIdleTime(recycle / 2)
}
