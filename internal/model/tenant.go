package model

import (
	"fmt"
	"time"
)

// DatabaseKind identifies the kind of physical store a tenant runs on.
type DatabaseKind string

const (
	DatabaseKindMySQL    DatabaseKind = "relational-mysql"
	DatabaseKindPostgres DatabaseKind = "relational-postgres"
	DatabaseKindSQLite   DatabaseKind = "relational-sqlite"
	DatabaseKindDocument DatabaseKind = "document"
)

// IsRelational reports whether the kind speaks SQL.
func (k DatabaseKind) IsRelational() bool {
	return k == DatabaseKindMySQL || k == DatabaseKindPostgres || k == DatabaseKindSQLite
}

// PoolStatus is the lifecycle status of a tenant's connection pool.
type PoolStatus string

const (
	PoolStatusHealthy     PoolStatus = "healthy"
	PoolStatusDegraded    PoolStatus = "degraded"
	PoolStatusFailed      PoolStatus = "failed"
	PoolStatusMaintenance PoolStatus = "maintenance"
)

// ConnectionConfig holds the physical connection parameters for a tenant store.
type ConnectionConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Database    string `json:"database" validate:"required"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	SSL         bool   `json:"ssl"`
	Timezone    string `json:"timezone"`
	PoolSize    int    `json:"poolSize"`    // Max open connections, default per kind
	MaxOverflow int    `json:"maxOverflow"` // Extra connections allowed beyond PoolSize
	IdleRecycle int    `json:"idleRecycle"` // Seconds before an idle connection is recycled
	WaitTimeout int    `json:"waitTimeout"` // Seconds to wait for a free connection, default 30
}

// TenantConnectionInfo tracks the lifecycle of one tenant's pool.
// The connection manager is the only writer.
type TenantConnectionInfo struct {
	TenantID     string           `json:"tenantId"`
	DatabaseKind DatabaseKind     `json:"databaseKind"`
	Config       ConnectionConfig `json:"config"`
	PoolSize     int              `json:"poolSize"`
	MaxOverflow  int              `json:"maxOverflow"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastUsedAt   time.Time        `json:"lastUsedAt"`
	Status       PoolStatus       `json:"status"`
	ErrorCount   int              `json:"errorCount"`
}

// ConnectionMetrics is a point-in-time snapshot of a tenant pool.
// Rebuilt from live pool state on every read, never persisted.
type ConnectionMetrics struct {
	TenantID          string    `json:"tenantId"`
	ActiveConnections int       `json:"activeConnections"`
	IdleConnections   int       `json:"idleConnections"`
	PoolUtilization   float64   `json:"poolUtilization"`
	ErrorRate         float64   `json:"errorRate"`
	AvgResponseTimeMs float64   `json:"avgResponseTimeMs"`
	LastActivity      time.Time `json:"lastActivity"`
}

// AccessLevel is the ordinal role classification used for table-permission
// defaults and complexity ceilings.
type AccessLevel int

const (
	AccessLevelGuest AccessLevel = iota
	AccessLevelViewer
	AccessLevelBusinessUser
	AccessLevelAnalyst
	AccessLevelAdmin
	AccessLevelSuperAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case AccessLevelGuest:
		return "guest"
	case AccessLevelViewer:
		return "viewer"
	case AccessLevelBusinessUser:
		return "business_user"
	case AccessLevelAnalyst:
		return "analyst"
	case AccessLevelAdmin:
		return "admin"
	case AccessLevelSuperAdmin:
		return "super_admin"
	default:
		return fmt.Sprintf("access_level(%d)", int(l))
	}
}

// TenantRoutingContext is the per-request identity the gateway consumes.
// It is derived once from an already-authenticated identity and is immutable
// for the request's lifetime. A user switching tenants gets a fresh context.
type TenantRoutingContext struct {
	UserID            string      `json:"userId" validate:"required"`
	TenantID          string      `json:"tenantId" validate:"required"`
	Roles             []string    `json:"roles"`
	Industry          string      `json:"industry"`
	AccessLevel       AccessLevel `json:"accessLevel"`
	AllowedOperations []string    `json:"allowedOperations"`
	SessionID         string      `json:"sessionId"`
	SourceAddress     string      `json:"sourceAddress"`
}

// PrimaryRole returns the first role, or "guest" when none were issued.
func (c *TenantRoutingContext) PrimaryRole() string {
	if len(c.Roles) == 0 {
		return "guest"
	}
	return c.Roles[0]
}

// HasRole reports whether the context carries the named role.
func (c *TenantRoutingContext) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TenantRecord is one row of the persisted tenant registry: which store a
// tenant runs on, how to reach it, and the tenant's industry (used by the
// role/industry permission table). Read-only from the gateway's perspective.
type TenantRecord struct {
	TenantID     string           `json:"tenantId"`
	DatabaseKind DatabaseKind     `json:"databaseKind"`
	Industry     string           `json:"industry"`
	Config       ConnectionConfig `json:"config"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}
