package database

import (
	"context"
	"time"

	"go.uber.org/zap"

	"querygate/internal/logger"
	"querygate/internal/model"
	"querygate/internal/utils"
)

// HealthChecker performs round-trip health checks against tenant pools.
type HealthChecker struct {
	manager *ConnectionManager
}

// NewHealthChecker creates a HealthChecker over the given manager.
func NewHealthChecker(manager *ConnectionManager) *HealthChecker {
	return &HealthChecker{manager: manager}
}

// HealthCheckResult is the outcome of one tenant's ping.
type HealthCheckResult struct {
	TenantID     string           `json:"tenantId"`
	DatabaseKind string           `json:"databaseKind"`
	Status       model.PoolStatus `json:"status"`
	Healthy      bool             `json:"healthy"`
	Message      string           `json:"message,omitempty"`
	Latency      time.Duration    `json:"latency"`
	CheckedAt    time.Time        `json:"checkedAt"`
}

// HealthReport aggregates per-tenant results into an overall status:
// healthy when at least 80% of checked tenants respond, unhealthy when none
// do, degraded in between.
type HealthReport struct {
	Overall        string              `json:"overall"`
	TotalTenants   int                 `json:"totalTenants"`
	HealthyTenants int                 `json:"healthyTenants"`
	Results        []HealthCheckResult `json:"results"`
	CheckedAt      time.Time           `json:"checkedAt"`
}

// CheckTenant pings one tenant's pool. The ping happens outside any pool
// lock; only the status bookkeeping takes the short handle lock.
func (hc *HealthChecker) CheckTenant(ctx context.Context, tenantID string) (HealthCheckResult, error) {
	hc.manager.mutex.RLock()
	handle, exists := hc.manager.pools[tenantID]
	hc.manager.mutex.RUnlock()

	if !exists {
		return HealthCheckResult{}, utils.NewNotFoundError("pool", tenantID)
	}
	return hc.checkHandle(ctx, handle), nil
}

// CheckAll pings every live pool and aggregates the report.
func (hc *HealthChecker) CheckAll(ctx context.Context) HealthReport {
	handles := hc.manager.snapshot()

	report := HealthReport{
		TotalTenants: len(handles),
		Results:      make([]HealthCheckResult, 0, len(handles)),
		CheckedAt:    time.Now(),
	}

	for _, handle := range handles {
		result := hc.checkHandle(ctx, handle)
		if result.Healthy {
			report.HealthyTenants++
		}
		report.Results = append(report.Results, result)
	}

	switch {
	case report.TotalTenants == 0:
		report.Overall = "healthy"
	case report.HealthyTenants == 0:
		report.Overall = "unhealthy"
	case float64(report.HealthyTenants) >= 0.8*float64(report.TotalTenants):
		report.Overall = "healthy"
	default:
		report.Overall = "degraded"
	}
	return report
}

func (hc *HealthChecker) checkHandle(ctx context.Context, handle *poolHandle) HealthCheckResult {
	start := time.Now()
	result := HealthCheckResult{
		TenantID:     handle.tenantID,
		DatabaseKind: string(handle.kind),
		CheckedAt:    start,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := handle.ping(pingCtx)
	result.Latency = time.Since(start)

	if err != nil {
		handle.recordError()
		result.Healthy = false
		result.Message = err.Error()
	} else {
		result.Healthy = true
	}
	result.Status = handle.currentStatus()
	return result
}

// StartPeriodic runs the health loop until the context is canceled.
func (hc *HealthChecker) StartPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := hc.CheckAll(ctx)
			if report.Overall != "healthy" {
				logger.Logger.Warn("tenant pools degraded",
					zap.String("overall", report.Overall),
					zap.Int("healthy", report.HealthyTenants),
					zap.Int("total", report.TotalTenants))
			}
		}
	}
}
