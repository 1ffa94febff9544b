package utils

import (
	"errors"
	"fmt"
)

// Stable error kinds surfaced to callers. Security violations and permission
// denials are never retried and never downgraded; exhaustion and transient
// execution failures may be retried once by the orchestrator.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeSecurityViolation  = "SECURITY_VIOLATION"
	ErrCodeLowConfidence      = "LOW_CONFIDENCE"
	ErrCodePoolExhausted      = "POOL_EXHAUSTED"
	ErrCodePoolInitFailed     = "POOL_INIT_FAILED"
	ErrCodeExecutionError     = "EXECUTION_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// AppError carries a stable code, a human-readable message, and optional
// details. Raw stack traces never cross the boundary.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	// Hint is a user-facing remediation suggestion, required on permission
	// denials so the caller never sees a bare "access denied".
	Hint  string `json:"hint,omitempty"`
	Cause error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is match on code, so sentinel AppErrors work as targets.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NewNotFoundError reports an unknown tenant, pool, or table.
func NewNotFoundError(resource, id string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: id,
	}
}

// NewPermissionError reports a role/table/industry denial with remediation.
func NewPermissionError(message, hint string) *AppError {
	return &AppError{
		Code:    ErrCodePermissionDenied,
		Message: message,
		Hint:    hint,
	}
}

// NewSecurityViolation reports an injection, isolation breach, or rate-limit
// hit. The caller must block the request and emit a security event.
func NewSecurityViolation(message string, details string) *AppError {
	return &AppError{
		Code:    ErrCodeSecurityViolation,
		Message: message,
		Details: details,
	}
}

// NewLowConfidenceError reports a parse that could not reach the confidence
// floor, with schema-derived query suggestions in the hint.
func NewLowConfidenceError(hint string) *AppError {
	return &AppError{
		Code:    ErrCodeLowConfidence,
		Message: "could not understand the query",
		Hint:    hint,
	}
}

// NewExhaustedError reports a pool-wait timeout. Retryable by the caller.
func NewExhaustedError(tenantID string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodePoolExhausted,
		Message: "connection pool exhausted",
		Details: tenantID,
		Cause:   cause,
	}
}

// NewPoolInitError reports a failed pool creation.
func NewPoolInitError(tenantID string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodePoolInitFailed,
		Message: "failed to initialize connection pool",
		Details: tenantID,
		Cause:   cause,
	}
}

// NewExecutionError reports a query the underlying database rejected.
func NewExecutionError(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeExecutionError,
		Message: "query execution failed",
		Cause:   cause,
	}
}

// NewServiceUnavailableError reports a tenant store behind an open circuit
// breaker. Fails fast instead of cascading timeouts.
func NewServiceUnavailableError(tenantID string) *AppError {
	return &AppError{
		Code:    ErrCodeServiceUnavailable,
		Message: "tenant database temporarily unavailable",
		Details: tenantID,
	}
}

// NewRateLimitError reports a sliding-window cap being exceeded.
func NewRateLimitError(scope string) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimitExceeded,
		Message: "rate limit exceeded, please try again later",
		Details: scope,
	}
}

// CodeOf extracts the stable error code, defaulting to internal error.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether the orchestrator may retry once via pool
// recreation. Security and permission failures are never retryable.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodePoolExhausted, ErrCodeExecutionError:
		return true
	default:
		return false
	}
}
