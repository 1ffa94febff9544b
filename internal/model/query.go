package model

import (
	"time"
)

// QueryStatus is the terminal status of one gateway request.
type QueryStatus string

const (
	QueryStatusSuccess QueryStatus = "success"
	QueryStatusError   QueryStatus = "error"
	QueryStatusBlocked QueryStatus = "blocked"
)

// QueryRequest is the inbound contract: natural language plus routing identity.
// The identity fields come from an already-authenticated session; the gateway
// never verifies passwords or issues tokens itself.
type QueryRequest struct {
	TenantID      string      `json:"tenantId" validate:"required"`
	UserID        string      `json:"userId" validate:"required"`
	Roles         []string    `json:"roles"`
	AccessLevel   AccessLevel `json:"accessLevel"`
	NaturalQuery  string      `json:"naturalQuery" validate:"required,min=1,max=2000"`
	MaxResults    int         `json:"maxResults" validate:"omitempty,min=1,max=10000"`
	ExportFormat  string      `json:"exportFormat" validate:"omitempty,oneof=csv records tabular"`
	SourceAddress string      `json:"sourceAddress"`
}

// ApplyDefaults fills unset request fields.
func (r *QueryRequest) ApplyDefaults() {
	if r.MaxResults <= 0 {
		r.MaxResults = 100
	}
	if len(r.Roles) == 0 {
		r.Roles = []string{"guest"}
	}
}

// RoutingContext derives the immutable per-request identity from the request.
func (r *QueryRequest) RoutingContext(sessionID string) *TenantRoutingContext {
	return &TenantRoutingContext{
		UserID:        r.UserID,
		TenantID:      r.TenantID,
		Roles:         append([]string(nil), r.Roles...),
		AccessLevel:   r.AccessLevel,
		SessionID:     sessionID,
		SourceAddress: r.SourceAddress,
	}
}

// Row is one result row. Column order is carried separately in
// QueryResult.Columns so output masking cannot disturb downstream formatting.
type Row map[string]interface{}

// QueryResult is the outbound contract of the orchestrator.
type QueryResult struct {
	QueryID          string      `json:"queryId"`
	GeneratedQuery   string      `json:"generatedQuery,omitempty"`
	Columns          []string    `json:"columns,omitempty"`
	Rows             []Row       `json:"rows,omitempty"`
	RowCount         int         `json:"rowCount"`
	ExecutionTimeMs  int64       `json:"executionTimeMs"`
	Status           QueryStatus `json:"status"`
	Message          string      `json:"message,omitempty"`
	SecurityFiltered bool        `json:"securityFiltered"`
	ExecutedAt       time.Time   `json:"executedAt"`
}

// SecurityEvent is the structured record emitted to the audit sink.
// The gateway emits these; storage and retention belong to a collaborator.
type SecurityEvent struct {
	Kind     string    `json:"kind"`
	Severity string    `json:"severity"`
	TenantID string    `json:"tenantId"`
	UserID   string    `json:"userId"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}
