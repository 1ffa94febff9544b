package metadata

import (
	"context"
	"sync"
	"time"

	"querygate/internal/model"
)

// ColumnSchema describes one column of a tenant table or collection.
type ColumnSchema struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Relationship links two tables for join generation.
type Relationship struct {
	FromTable  string `json:"fromTable"`
	FromColumn string `json:"fromColumn"`
	ToTable    string `json:"toTable"`
	ToColumn   string `json:"toColumn"`
}

// SchemaSnapshot is the advisory view of one tenant's schema. Consumers must
// fail closed on stale or missing entries, never guess.
type SchemaSnapshot struct {
	TenantID      string                    `json:"tenantId"`
	DatabaseKind  model.DatabaseKind        `json:"databaseKind"`
	Tables        map[string][]ColumnSchema `json:"tables"`
	Relationships []Relationship            `json:"relationships,omitempty"`
	LastUpdated   time.Time                 `json:"lastUpdated"`
	Version       string                    `json:"version"`
}

// TableNames lists the snapshot's tables.
func (s *SchemaSnapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	return names
}

// HasTable reports whether the snapshot knows the table.
func (s *SchemaSnapshot) HasTable(name string) bool {
	_, ok := s.Tables[name]
	return ok
}

// SchemaExtractor rebuilds a snapshot by introspecting the tenant's live
// database. Implemented by MetadataExtractor; narrowed here so the cache can
// be tested without a live store.
type SchemaExtractor interface {
	ExtractSchema(ctx context.Context, tenantID string) (*SchemaSnapshot, error)
}

type cachedSnapshot struct {
	snapshot  *SchemaSnapshot
	expiresAt time.Time
}

// SchemaCache caches snapshots per tenant with a TTL. Writers replace whole
// entries atomically; keys are tenant ids, so cross-tenant collisions are
// structurally impossible.
type SchemaCache struct {
	cache      map[string]*cachedSnapshot
	mutex      sync.RWMutex
	ttl        time.Duration
	cleanupInt time.Duration
}

// NewSchemaCache creates a cache with the given TTL (default one hour).
func NewSchemaCache(ttl, cleanupInterval time.Duration) *SchemaCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &SchemaCache{
		cache:      make(map[string]*cachedSnapshot),
		ttl:        ttl,
		cleanupInt: cleanupInterval,
	}
}

// Start runs the expiry sweep loop until the context is canceled.
func (sc *SchemaCache) Start(ctx context.Context) {
	ticker := time.NewTicker(sc.cleanupInt)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.cleanupExpired()
		}
	}
}

// Get retrieves a live snapshot for the tenant, or reports a miss.
func (sc *SchemaCache) Get(tenantID string) (*SchemaSnapshot, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	cached, exists := sc.cache[tenantID]
	if !exists || time.Now().After(cached.expiresAt) {
		return nil, false
	}
	return cached.snapshot, true
}

// Set stores a snapshot, replacing any previous entry whole.
func (sc *SchemaCache) Set(snapshot *SchemaSnapshot) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	sc.cache[snapshot.TenantID] = &cachedSnapshot{
		snapshot:  snapshot,
		expiresAt: time.Now().Add(sc.ttl),
	}
}

// Invalidate drops the tenant's entry. Invalidation is always per tenant and
// explicit; there is no pattern or global flush in the request path.
func (sc *SchemaCache) Invalidate(tenantID string) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	delete(sc.cache, tenantID)
}

// GetOrRefresh returns the cached snapshot, introspecting the tenant's store
// on a miss. forceRefresh bypasses the cache entirely.
func (sc *SchemaCache) GetOrRefresh(ctx context.Context, tenantID string, extractor SchemaExtractor, forceRefresh bool) (*SchemaSnapshot, error) {
	if !forceRefresh {
		if snapshot, ok := sc.Get(tenantID); ok {
			return snapshot, nil
		}
	}

	snapshot, err := extractor.ExtractSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sc.Set(snapshot)
	return snapshot, nil
}

// Clear drops every entry. Used on shutdown and in tests.
func (sc *SchemaCache) Clear() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	sc.cache = make(map[string]*cachedSnapshot)
}

// Stats reports cache occupancy.
func (sc *SchemaCache) Stats() (total, active int) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	now := time.Now()
	total = len(sc.cache)
	for _, cached := range sc.cache {
		if now.Before(cached.expiresAt) {
			active++
		}
	}
	return total, active
}

func (sc *SchemaCache) cleanupExpired() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	now := time.Now()
	for id, cached := range sc.cache {
		if now.After(cached.expiresAt) {
			delete(sc.cache, id)
		}
	}
}
