package repository

import (
	"context"

	"querygate/internal/model"
)

// TenantRegistry is the persisted mapping from tenant id to database kind,
// connection credentials, and industry. The registry is owned by an external
// system; the gateway only reads it.
type TenantRegistry interface {
	// GetTenant retrieves a tenant record by id
	GetTenant(ctx context.Context, tenantID string) (*model.TenantRecord, error)

	// ListTenants retrieves all registered tenants
	ListTenants(ctx context.Context) ([]*model.TenantRecord, error)

	// GetIndustry retrieves just the industry classification for a tenant
	GetIndustry(ctx context.Context, tenantID string) (string, error)
}
