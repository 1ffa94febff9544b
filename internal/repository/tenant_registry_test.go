package repository

import (
	"context"
	"errors"
	"testing"

	"querygate/internal/model"
)

func TestMemoryRegistryPutGet(t *testing.T) {
	registry := NewMemoryTenantRegistry()
	registry.Put(&model.TenantRecord{
		TenantID:     "tenant-1",
		DatabaseKind: model.DatabaseKindPostgres,
		Industry:     "healthcare",
		Config:       model.ConnectionConfig{Host: "db1", Database: "clinic"},
	})

	record, err := registry.GetTenant(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if record.DatabaseKind != model.DatabaseKindPostgres || record.Industry != "healthcare" {
		t.Errorf("unexpected record: %+v", record)
	}

	// Returned records are copies; mutating one must not poison the registry.
	record.Industry = "finance"
	again, _ := registry.GetTenant(context.Background(), "tenant-1")
	if again.Industry != "healthcare" {
		t.Errorf("registry record mutated through a returned copy: %s", again.Industry)
	}
}

func TestMemoryRegistryUnknownTenant(t *testing.T) {
	registry := NewMemoryTenantRegistry()

	_, err := registry.GetTenant(context.Background(), "nope")
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
	if _, err := registry.GetIndustry(context.Background(), "nope"); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("GetIndustry should surface the same sentinel, got %v", err)
	}
}

func TestMemoryRegistryListAndIndustry(t *testing.T) {
	registry := NewMemoryTenantRegistry()
	registry.Put(&model.TenantRecord{TenantID: "a", DatabaseKind: model.DatabaseKindSQLite, Industry: "retail"})
	registry.Put(&model.TenantRecord{TenantID: "b", DatabaseKind: model.DatabaseKindDocument, Industry: "technology"})

	records, err := registry.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("ListTenants: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	industry, err := registry.GetIndustry(context.Background(), "b")
	if err != nil {
		t.Fatalf("GetIndustry: %v", err)
	}
	if industry != "technology" {
		t.Errorf("expected technology, got %s", industry)
	}
}

func TestPutReplacesRecord(t *testing.T) {
	registry := NewMemoryTenantRegistry()
	registry.Put(&model.TenantRecord{TenantID: "a", DatabaseKind: model.DatabaseKindSQLite, Industry: "retail"})
	registry.Put(&model.TenantRecord{TenantID: "a", DatabaseKind: model.DatabaseKindMySQL, Industry: "finance"})

	record, err := registry.GetTenant(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if record.DatabaseKind != model.DatabaseKindMySQL || record.Industry != "finance" {
		t.Errorf("Put did not replace the record: %+v", record)
	}
}
