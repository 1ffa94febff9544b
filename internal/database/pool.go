package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"querygate/internal/database/drivers"
	"querygate/internal/model"
	"querygate/internal/utils"
)

// poolHandle owns the physical connections of one tenant. Exactly one live
// handle exists per (tenant, kind); the manager enforces that invariant.
type poolHandle struct {
	tenantID string
	kind     model.DatabaseKind
	config   model.ConnectionConfig

	// generation increments every time the pool is (re)created, which lets
	// tests assert that concurrent acquires share a single pool instance.
	generation uint64

	db          *sql.DB
	driver      drivers.Driver
	mongoClient *mongo.Client
	mongoDBName string

	breaker *gobreaker.CircuitBreaker

	mutex      sync.Mutex
	status     model.PoolStatus
	errorCount int
	createdAt  time.Time
	lastUsedAt time.Time

	queryTotal   int64
	errorTotal   int64
	avgLatencyMs float64

	degradedAfter int
	failedAfter   int
}

func newPoolBreaker(tenantID string, failures int, recovery time.Duration) *gobreaker.CircuitBreaker {
	if failures <= 0 {
		failures = 5
	}
	if recovery <= 0 {
		recovery = 60 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "tenant:" + tenantID,
		Timeout: recovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
	})
}

// Connection is what callers get back from the manager: the live handle for
// the tenant's store plus the reporting hooks the manager needs to track it.
type Connection struct {
	TenantID string
	Kind     model.DatabaseKind
	DB       *sql.DB
	Mongo    *mongo.Database
	Driver   drivers.Driver

	handle *poolHandle
}

// Do runs a database call through the tenant's circuit breaker and feeds the
// outcome back into the pool's health accounting. A breaker that is open
// fails fast with ServiceUnavailable instead of waiting out a timeout.
func (c *Connection) Do(fn func() error) error {
	start := time.Now()
	_, err := c.handle.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		c.handle.recordError()
		return utils.NewServiceUnavailableError(c.TenantID)
	}
	if err != nil {
		c.handle.recordError()
		return err
	}
	c.handle.recordSuccess(time.Since(start))
	return nil
}

// Status returns the pool's current lifecycle status.
func (c *Connection) Status() model.PoolStatus {
	return c.handle.currentStatus()
}

// ping issues the kind-appropriate trivial round trip. Called without any
// pool lock held; network time must never sit under a lock.
func (h *poolHandle) ping(ctx context.Context) error {
	if h.kind == model.DatabaseKindDocument {
		return h.mongoClient.Ping(ctx, readpref.Primary())
	}
	return h.driver.TestConnection(ctx, h.db)
}

func (h *poolHandle) close() error {
	if h.kind == model.DatabaseKindDocument {
		if h.mongoClient == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.mongoClient.Disconnect(ctx)
	}
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *poolHandle) markUsed() {
	h.mutex.Lock()
	h.lastUsedAt = time.Now()
	h.mutex.Unlock()
}

func (h *poolHandle) idleSince() time.Time {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.lastUsedAt
}

func (h *poolHandle) currentStatus() model.PoolStatus {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.status
}

func (h *poolHandle) setStatus(status model.PoolStatus) {
	h.mutex.Lock()
	h.status = status
	h.mutex.Unlock()
}

// recordError bumps the consecutive-error counter and applies the monotonic
// status ladder: healthy pools degrade past degradedAfter errors, degraded
// pools fail past failedAfter. Only pool recreation walks the ladder back.
func (h *poolHandle) recordError() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.errorCount++
	h.errorTotal++
	h.queryTotal++

	if h.errorCount > h.failedAfter {
		h.status = model.PoolStatusFailed
	} else if h.errorCount > h.degradedAfter && h.status == model.PoolStatusHealthy {
		h.status = model.PoolStatusDegraded
	}
}

// recordSuccess resets the consecutive-error counter. Status stays where the
// ladder put it; recovery is explicit via CreatePool.
func (h *poolHandle) recordSuccess(latency time.Duration) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.errorCount = 0
	h.queryTotal++
	h.lastUsedAt = time.Now()

	ms := float64(latency.Milliseconds())
	if h.avgLatencyMs == 0 {
		h.avgLatencyMs = ms
	} else {
		// Exponential moving average, light enough to hold under the lock.
		h.avgLatencyMs = h.avgLatencyMs*0.9 + ms*0.1
	}
}

// metrics rebuilds a point-in-time snapshot from live pool state.
func (h *poolHandle) metrics() model.ConnectionMetrics {
	h.mutex.Lock()
	queryTotal := h.queryTotal
	errorTotal := h.errorTotal
	avgLatency := h.avgLatencyMs
	lastUsed := h.lastUsedAt
	h.mutex.Unlock()

	m := model.ConnectionMetrics{
		TenantID:          h.tenantID,
		AvgResponseTimeMs: avgLatency,
		LastActivity:      lastUsed,
	}
	if queryTotal > 0 {
		m.ErrorRate = float64(errorTotal) / float64(queryTotal)
	}

	if h.kind != model.DatabaseKindDocument && h.db != nil {
		stats := h.db.Stats()
		m.ActiveConnections = stats.InUse
		m.IdleConnections = stats.Idle
		if stats.MaxOpenConnections > 0 {
			m.PoolUtilization = float64(stats.InUse) / float64(stats.MaxOpenConnections)
		}
	}
	return m
}

// info rebuilds the lifecycle view of the pool.
func (h *poolHandle) info() model.TenantConnectionInfo {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return model.TenantConnectionInfo{
		TenantID:     h.tenantID,
		DatabaseKind: h.kind,
		Config:       h.config,
		PoolSize:     h.config.PoolSize,
		MaxOverflow:  h.config.MaxOverflow,
		CreatedAt:    h.createdAt,
		LastUsedAt:   h.lastUsedAt,
		Status:       h.status,
		ErrorCount:   h.errorCount,
	}
}

// connectDocument dials a tenant's document store with pool limits mapped
// onto the mongo client options.
func connectDocument(ctx context.Context, config *model.ConnectionConfig) (*mongo.Client, error) {
	uri := buildMongoURI(config)

	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(uint64(poolSize + config.MaxOverflow)).
		SetMinPoolSize(uint64(poolSize / 4)).
		SetMaxConnIdleTime(30 * time.Minute)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}
	return client, nil
}

func buildMongoURI(config *model.ConnectionConfig) string {
	port := config.Port
	if port <= 0 {
		port = 27017
	}
	if config.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s",
			config.Username, config.Password, config.Host, port, config.Database)
	}
	return fmt.Sprintf("mongodb://%s:%d/%s", config.Host, port, config.Database)
}
