package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"querygate/internal/model"
)

// tenantRow is the gorm mapping for the registry table. The connection
// config is stored as a JSON column alongside kind and industry.
type tenantRow struct {
	TenantID     string           `gorm:"type:char(36);primaryKey;column:tenant_id"`
	DatabaseKind string           `gorm:"size:32;not null;column:database_kind"`
	Industry     string           `gorm:"size:64;column:industry"`
	Config       connectionColumn `gorm:"type:json;not null;column:config"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (tenantRow) TableName() string { return "tenants" }

type connectionColumn model.ConnectionConfig

// Value implements driver.Valuer for the JSON config column.
func (c connectionColumn) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for the JSON config column.
func (c *connectionColumn) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("unsupported config column type %T", value)
	}
}

type gormTenantRegistry struct {
	db *gorm.DB
}

// NewTenantRegistry creates a registry backed by the shared registry database.
func NewTenantRegistry(db *gorm.DB) TenantRegistry {
	return &gormTenantRegistry{db: db}
}

func (r *gormTenantRegistry) GetTenant(ctx context.Context, tenantID string) (*model.TenantRecord, error) {
	var row tenantRow
	result := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRegistryQuery, result.Error)
	}
	return rowToRecord(&row)
}

func (r *gormTenantRegistry) ListTenants(ctx context.Context) ([]*model.TenantRecord, error) {
	var rows []tenantRow
	result := r.db.WithContext(ctx).Order("tenant_id").Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryQuery, result.Error)
	}

	records := make([]*model.TenantRecord, 0, len(rows))
	for i := range rows {
		record, err := rowToRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *gormTenantRegistry) GetIndustry(ctx context.Context, tenantID string) (string, error) {
	record, err := r.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return record.Industry, nil
}

func rowToRecord(row *tenantRow) (*model.TenantRecord, error) {
	kind := model.DatabaseKind(row.DatabaseKind)
	switch kind {
	case model.DatabaseKindMySQL, model.DatabaseKindPostgres,
		model.DatabaseKindSQLite, model.DatabaseKindDocument:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, row.DatabaseKind)
	}

	return &model.TenantRecord{
		TenantID:     row.TenantID,
		DatabaseKind: kind,
		Industry:     row.Industry,
		Config:       model.ConnectionConfig(row.Config),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

// MemoryTenantRegistry is an in-process registry used by tests and by
// embedders that manage tenant records themselves.
type MemoryTenantRegistry struct {
	mutex   sync.RWMutex
	tenants map[string]*model.TenantRecord
}

// NewMemoryTenantRegistry creates an empty in-memory registry.
func NewMemoryTenantRegistry() *MemoryTenantRegistry {
	return &MemoryTenantRegistry{tenants: make(map[string]*model.TenantRecord)}
}

// Put registers or replaces a tenant record.
func (r *MemoryTenantRegistry) Put(record *model.TenantRecord) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	copied := *record
	r.tenants[record.TenantID] = &copied
}

func (r *MemoryTenantRegistry) GetTenant(ctx context.Context, tenantID string) (*model.TenantRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	record, ok := r.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *MemoryTenantRegistry) ListTenants(ctx context.Context) ([]*model.TenantRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	records := make([]*model.TenantRecord, 0, len(r.tenants))
	for _, record := range r.tenants {
		copied := *record
		records = append(records, &copied)
	}
	return records, nil
}

func (r *MemoryTenantRegistry) GetIndustry(ctx context.Context, tenantID string) (string, error) {
	record, err := r.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return record.Industry, nil
}
