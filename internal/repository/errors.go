package repository

import "errors"

// Common registry errors
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrInvalidKind    = errors.New("invalid database kind")
	ErrRegistryQuery  = errors.New("tenant registry query failed")
)
