package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"querygate/internal/config"
	"querygate/internal/logger"
	"querygate/internal/model"
	"querygate/internal/repository"
	"querygate/internal/utils"
)

// ConnectionManager owns every tenant pool in the process. It is the single
// shared mutable resource of the gateway and is safe for concurrent use from
// many requests across many tenants. Pool creation locks are sharded per
// tenant so one tenant's slow dial never blocks another tenant's traffic.
type ConnectionManager struct {
	registry repository.TenantRegistry
	drivers  *DriverRegistry
	cfg      config.PoolConfig

	mutex sync.RWMutex
	pools map[string]*poolHandle

	createMu    sync.Mutex
	createLocks map[string]*sync.Mutex

	generation atomic.Uint64
}

// NewConnectionManager creates a manager over the given tenant registry.
func NewConnectionManager(registry repository.TenantRegistry, drivers *DriverRegistry, cfg config.PoolConfig) *ConnectionManager {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.IdleSweepInterval <= 0 {
		cfg.IdleSweepInterval = 5 * time.Minute
	}
	if cfg.DegradedErrorCount <= 0 {
		cfg.DegradedErrorCount = 5
	}
	if cfg.FailedErrorCount <= 0 {
		cfg.FailedErrorCount = 10
	}

	return &ConnectionManager{
		registry:    registry,
		drivers:     drivers,
		cfg:         cfg,
		pools:       make(map[string]*poolHandle),
		createLocks: make(map[string]*sync.Mutex),
	}
}

// GetConnection returns a pooled connection for the tenant, creating the pool
// lazily on first use. A pool that has reached Failed status is recreated
// once; any further failure surfaces to the caller rather than retrying.
func (cm *ConnectionManager) GetConnection(ctx context.Context, tenantID string, kindHint model.DatabaseKind) (*Connection, error) {
	handle, err := cm.lookupOrCreate(ctx, tenantID, kindHint)
	if err != nil {
		return nil, err
	}

	if handle.currentStatus() == model.PoolStatusFailed {
		handle, err = cm.recreate(ctx, tenantID)
		if err != nil {
			return nil, err
		}
	}

	// Pre-ping before handing the pool out. Bounded by the pool-wait
	// timeout: hitting it is the normal Exhausted condition, retryable by
	// the caller, not a fatal error.
	pingCtx, cancel := context.WithTimeout(ctx, cm.cfg.WaitTimeout)
	defer cancel()

	if err := handle.ping(pingCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, utils.NewExhaustedError(tenantID, err)
		}
		handle.recordError()
		if handle.currentStatus() == model.PoolStatusFailed {
			recreated, recreateErr := cm.recreate(ctx, tenantID)
			if recreateErr != nil {
				return nil, recreateErr
			}
			handle = recreated
		} else {
			return nil, utils.NewPoolInitError(tenantID, err)
		}
	}

	handle.markUsed()
	return cm.wrap(handle), nil
}

// CreatePool tears down and rebuilds a tenant's pool, resetting its error
// counter and status. Used after credential rotation or sustained failures.
func (cm *ConnectionManager) CreatePool(ctx context.Context, tenantID string, forceRecreate bool) bool {
	cm.mutex.RLock()
	_, exists := cm.pools[tenantID]
	cm.mutex.RUnlock()

	if exists && !forceRecreate {
		return true
	}

	_, err := cm.recreate(ctx, tenantID)
	if err != nil {
		logger.Logger.Error("pool recreation failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return false
	}
	return true
}

// ClosePool releases a tenant's pool resources. Idempotent.
func (cm *ConnectionManager) ClosePool(tenantID string) bool {
	cm.mutex.Lock()
	handle, exists := cm.pools[tenantID]
	if exists {
		delete(cm.pools, tenantID)
	}
	cm.mutex.Unlock()

	if !exists {
		return false
	}
	// Callers still holding the handle observe maintenance, not the last
	// health status, while it drains.
	handle.setStatus(model.PoolStatusMaintenance)
	if err := handle.close(); err != nil {
		logger.Logger.Warn("pool close reported error",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
	return true
}

// CloseAll shuts every pool down. Called at process exit.
func (cm *ConnectionManager) CloseAll() {
	cm.mutex.Lock()
	handles := make([]*poolHandle, 0, len(cm.pools))
	for id, handle := range cm.pools {
		handles = append(handles, handle)
		delete(cm.pools, id)
	}
	cm.mutex.Unlock()

	for _, handle := range handles {
		_ = handle.close()
	}
}

// Metrics returns the live metrics snapshot for one tenant pool.
func (cm *ConnectionManager) Metrics(tenantID string) (model.ConnectionMetrics, error) {
	cm.mutex.RLock()
	handle, exists := cm.pools[tenantID]
	cm.mutex.RUnlock()

	if !exists {
		return model.ConnectionMetrics{}, utils.NewNotFoundError("pool", tenantID)
	}
	return handle.metrics(), nil
}

// AllMetrics returns metrics snapshots for every live pool, keyed by tenant.
func (cm *ConnectionManager) AllMetrics() map[string]model.ConnectionMetrics {
	result := make(map[string]model.ConnectionMetrics)
	for _, handle := range cm.snapshot() {
		result[handle.tenantID] = handle.metrics()
	}
	return result
}

// Info returns the lifecycle view of one tenant pool.
func (cm *ConnectionManager) Info(tenantID string) (model.TenantConnectionInfo, error) {
	cm.mutex.RLock()
	handle, exists := cm.pools[tenantID]
	cm.mutex.RUnlock()

	if !exists {
		return model.TenantConnectionInfo{}, utils.NewNotFoundError("pool", tenantID)
	}
	return handle.info(), nil
}

// PoolGeneration reports which pool instance currently serves the tenant.
// Each (re)creation increments the generation; two connections from the same
// unbroken pool report the same value.
func (cm *ConnectionManager) PoolGeneration(tenantID string) (uint64, bool) {
	cm.mutex.RLock()
	handle, exists := cm.pools[tenantID]
	cm.mutex.RUnlock()

	if !exists {
		return 0, false
	}
	return handle.generation, true
}

// StartSweeper runs the idle-pool sweep loop until the context is canceled.
// Pools that served no request within the idle timeout are closed so a long
// tail of dormant tenants cannot pin resources.
func (cm *ConnectionManager) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(cm.cfg.IdleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.sweepIdle()
		}
	}
}

func (cm *ConnectionManager) sweepIdle() {
	cutoff := time.Now().Add(-cm.cfg.IdleTimeout)
	for _, handle := range cm.snapshot() {
		if handle.idleSince().Before(cutoff) {
			if cm.ClosePool(handle.tenantID) {
				logger.Logger.Info("swept idle pool",
					zap.String("tenant_id", handle.tenantID),
					zap.Time("last_used", handle.idleSince()))
			}
		}
	}
}

// snapshot copies the live handle set under a short read lock so callers can
// do network round trips without holding any manager lock.
func (cm *ConnectionManager) snapshot() []*poolHandle {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	handles := make([]*poolHandle, 0, len(cm.pools))
	for _, handle := range cm.pools {
		handles = append(handles, handle)
	}
	return handles
}

func (cm *ConnectionManager) wrap(handle *poolHandle) *Connection {
	conn := &Connection{
		TenantID: handle.tenantID,
		Kind:     handle.kind,
		DB:       handle.db,
		Driver:   handle.driver,
		handle:   handle,
	}
	if handle.kind == model.DatabaseKindDocument {
		conn.Mongo = handle.mongoClient.Database(handle.mongoDBName)
	}
	return conn
}

// lookupOrCreate implements double-checked pool creation with a per-tenant
// creation lock: concurrent first requests for one tenant build one pool,
// and never serialize against other tenants.
func (cm *ConnectionManager) lookupOrCreate(ctx context.Context, tenantID string, kindHint model.DatabaseKind) (*poolHandle, error) {
	cm.mutex.RLock()
	handle, exists := cm.pools[tenantID]
	cm.mutex.RUnlock()

	if exists {
		if kindHint != "" && handle.kind != kindHint {
			return nil, utils.NewNotFoundError("pool of requested kind", tenantID)
		}
		return handle, nil
	}

	lock := cm.creationLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	// Double check: another request may have built the pool while we
	// waited on the creation lock.
	cm.mutex.RLock()
	handle, exists = cm.pools[tenantID]
	cm.mutex.RUnlock()
	if exists {
		return handle, nil
	}

	return cm.buildPool(ctx, tenantID, kindHint)
}

// recreate rebuilds the tenant's pool under its creation lock.
func (cm *ConnectionManager) recreate(ctx context.Context, tenantID string) (*poolHandle, error) {
	lock := cm.creationLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	cm.mutex.Lock()
	old, exists := cm.pools[tenantID]
	if exists {
		delete(cm.pools, tenantID)
	}
	cm.mutex.Unlock()
	if exists {
		old.setStatus(model.PoolStatusMaintenance)
		_ = old.close()
	}

	return cm.buildPool(ctx, tenantID, "")
}

// buildPool dials the tenant's store and installs the new handle. The caller
// must hold the tenant's creation lock; the manager map lock is only taken
// for the final install, never across the dial.
func (cm *ConnectionManager) buildPool(ctx context.Context, tenantID string, kindHint model.DatabaseKind) (*poolHandle, error) {
	record, err := cm.registry.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrTenantNotFound) {
			return nil, utils.NewNotFoundError("tenant", tenantID)
		}
		return nil, utils.NewPoolInitError(tenantID, err)
	}
	if kindHint != "" && record.DatabaseKind != kindHint {
		return nil, utils.NewNotFoundError("pool of requested kind", tenantID)
	}

	config := record.Config
	if config.PoolSize <= 0 {
		config.PoolSize = cm.cfg.DefaultSize
	}
	if config.MaxOverflow <= 0 {
		config.MaxOverflow = cm.cfg.DefaultOverflow
	}

	handle := &poolHandle{
		tenantID:      tenantID,
		kind:          record.DatabaseKind,
		config:        config,
		generation:    cm.generation.Add(1),
		breaker:       newPoolBreaker(tenantID, cm.cfg.BreakerFailures, cm.cfg.BreakerRecovery),
		status:        model.PoolStatusHealthy,
		createdAt:     time.Now(),
		lastUsedAt:    time.Now(),
		degradedAfter: cm.cfg.DegradedErrorCount,
		failedAfter:   cm.cfg.FailedErrorCount,
	}

	dialCtx, cancel := context.WithTimeout(ctx, cm.cfg.WaitTimeout)
	defer cancel()

	if record.DatabaseKind == model.DatabaseKindDocument {
		client, err := connectDocument(dialCtx, &config)
		if err != nil {
			return nil, utils.NewPoolInitError(tenantID, err)
		}
		handle.mongoClient = client
		handle.mongoDBName = config.Database
	} else {
		driver, err := cm.drivers.GetDriver(record.DatabaseKind)
		if err != nil {
			return nil, utils.NewPoolInitError(tenantID, err)
		}

		dsn := driver.BuildDSN(&config)
		if err := driver.ValidateDSN(dsn); err != nil {
			return nil, utils.NewPoolInitError(tenantID, err)
		}

		db, err := driver.Open(dsn)
		if err != nil {
			return nil, utils.NewPoolInitError(tenantID, err)
		}
		driver.ConfigurePool(db, &config)

		if err := driver.TestConnection(dialCtx, db); err != nil {
			_ = db.Close()
			return nil, utils.NewPoolInitError(tenantID, err)
		}
		handle.db = db
		handle.driver = driver
	}

	cm.mutex.Lock()
	cm.pools[tenantID] = handle
	cm.mutex.Unlock()

	logger.Logger.Info("tenant pool created",
		zap.String("tenant_id", tenantID),
		zap.String("kind", string(record.DatabaseKind)),
		zap.Uint64("generation", handle.generation))

	return handle, nil
}

func (cm *ConnectionManager) creationLock(tenantID string) *sync.Mutex {
	cm.createMu.Lock()
	defer cm.createMu.Unlock()

	lock, exists := cm.createLocks[tenantID]
	if !exists {
		lock = &sync.Mutex{}
		cm.createLocks[tenantID] = lock
	}
	return lock
}
