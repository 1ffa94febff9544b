package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"querygate/internal/model"
)

func snapshotFor(tenantID string) *SchemaSnapshot {
	return &SchemaSnapshot{
		TenantID:     tenantID,
		DatabaseKind: model.DatabaseKindSQLite,
		Tables: map[string][]ColumnSchema{
			"products": {{Name: "id", Type: "integer"}, {Name: "price", Type: "real"}},
		},
		LastUpdated: time.Now(),
		Version:     "v1",
	}
}

// fakeExtractor counts introspection calls so tests can tell cache hits
// from refreshes.
type fakeExtractor struct {
	calls int
	err   error
}

func (f *fakeExtractor) ExtractSchema(ctx context.Context, tenantID string) (*SchemaSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return snapshotFor(tenantID), nil
}

func TestSchemaCacheSetGet(t *testing.T) {
	cache := NewSchemaCache(time.Hour, time.Hour)
	cache.Set(snapshotFor("tenant-1"))

	snap, ok := cache.Get("tenant-1")
	if !ok {
		t.Fatal("expected a hit after Set")
	}
	if snap.TenantID != "tenant-1" || !snap.HasTable("products") {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	if _, ok := cache.Get("tenant-2"); ok {
		t.Error("tenant-2 must not see tenant-1's entry")
	}
}

func TestSchemaCacheInvalidate(t *testing.T) {
	cache := NewSchemaCache(time.Hour, time.Hour)
	cache.Set(snapshotFor("tenant-1"))
	cache.Set(snapshotFor("tenant-2"))

	cache.Invalidate("tenant-1")

	if _, ok := cache.Get("tenant-1"); ok {
		t.Error("invalidated entry still served")
	}
	if _, ok := cache.Get("tenant-2"); !ok {
		t.Error("invalidation must stay scoped to one tenant")
	}
}

func TestSchemaCacheTTLExpiry(t *testing.T) {
	cache := NewSchemaCache(10*time.Millisecond, time.Hour)
	cache.Set(snapshotFor("tenant-1"))

	if _, ok := cache.Get("tenant-1"); !ok {
		t.Fatal("expected a hit before the TTL elapses")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := cache.Get("tenant-1"); ok {
		t.Error("expired entry still served")
	}
}

func TestGetOrRefresh(t *testing.T) {
	cache := NewSchemaCache(time.Hour, time.Hour)
	extractor := &fakeExtractor{}
	ctx := context.Background()

	if _, err := cache.GetOrRefresh(ctx, "tenant-1", extractor, false); err != nil {
		t.Fatalf("refresh on miss: %v", err)
	}
	if _, err := cache.GetOrRefresh(ctx, "tenant-1", extractor, false); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if extractor.calls != 1 {
		t.Errorf("expected one introspection, got %d", extractor.calls)
	}

	if _, err := cache.GetOrRefresh(ctx, "tenant-1", extractor, true); err != nil {
		t.Fatalf("forced refresh: %v", err)
	}
	if extractor.calls != 2 {
		t.Errorf("forceRefresh must bypass the cache, got %d calls", extractor.calls)
	}
}

func TestGetOrRefreshPropagatesExtractorError(t *testing.T) {
	cache := NewSchemaCache(time.Hour, time.Hour)
	boom := errors.New("introspection failed")
	extractor := &fakeExtractor{err: boom}

	_, err := cache.GetOrRefresh(context.Background(), "tenant-1", extractor, false)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the extractor error, got %v", err)
	}
	if _, ok := cache.Get("tenant-1"); ok {
		t.Error("a failed refresh must not install an entry")
	}
}

func TestSchemaCacheStats(t *testing.T) {
	cache := NewSchemaCache(10*time.Millisecond, time.Hour)
	cache.Set(snapshotFor("tenant-1"))
	cache.Set(snapshotFor("tenant-2"))

	if total, active := cache.Stats(); total != 2 || active != 2 {
		t.Errorf("expected 2/2, got %d/%d", active, total)
	}
	time.Sleep(20 * time.Millisecond)
	if _, active := cache.Stats(); active != 0 {
		t.Errorf("expired entries still counted active: %d", active)
	}
}
