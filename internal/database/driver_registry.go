package database

import (
	"fmt"
	"sync"

	"querygate/internal/database/drivers"
	"querygate/internal/model"
)

// DriverRegistry manages the relational driver set. The document kind is
// connected through the mongo client directly and never passes through here.
type DriverRegistry struct {
	drivers map[model.DatabaseKind]func() drivers.Driver
	mutex   sync.RWMutex
}

// NewDriverRegistry creates a registry with all supported relational kinds.
func NewDriverRegistry() *DriverRegistry {
	registry := &DriverRegistry{
		drivers: make(map[model.DatabaseKind]func() drivers.Driver),
	}
	registry.registerDrivers()
	return registry
}

func (dr *DriverRegistry) registerDrivers() {
	dr.mutex.Lock()
	defer dr.mutex.Unlock()

	dr.drivers[model.DatabaseKindMySQL] = func() drivers.Driver {
		return &drivers.MySQLDriver{}
	}
	dr.drivers[model.DatabaseKindPostgres] = func() drivers.Driver {
		return &drivers.PostgresDriver{}
	}
	dr.drivers[model.DatabaseKindSQLite] = func() drivers.Driver {
		return &drivers.SQLiteDriver{}
	}
}

// GetDriver returns a driver instance for the given relational kind.
func (dr *DriverRegistry) GetDriver(kind model.DatabaseKind) (drivers.Driver, error) {
	dr.mutex.RLock()
	defer dr.mutex.RUnlock()

	factory, exists := dr.drivers[kind]
	if !exists {
		return nil, fmt.Errorf("no driver registered for database kind: %s", kind)
	}
	return factory(), nil
}

// IsSupported reports whether the kind can be served at all.
func (dr *DriverRegistry) IsSupported(kind model.DatabaseKind) bool {
	if kind == model.DatabaseKindDocument {
		return true
	}
	dr.mutex.RLock()
	defer dr.mutex.RUnlock()
	_, exists := dr.drivers[kind]
	return exists
}

// SupportedKinds lists every kind the gateway can route to.
func (dr *DriverRegistry) SupportedKinds() []model.DatabaseKind {
	dr.mutex.RLock()
	defer dr.mutex.RUnlock()

	kinds := make([]model.DatabaseKind, 0, len(dr.drivers)+1)
	for kind := range dr.drivers {
		kinds = append(kinds, kind)
	}
	kinds = append(kinds, model.DatabaseKindDocument)
	return kinds
}
