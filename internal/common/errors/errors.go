// internal/common/errors/errors.go
// Package errors provides the standardized error taxonomy of the contract runtime.
package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Error Codes
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Load-time, fatal to boot or reload. Never surfaced per-request.
	ErrCodeContractInvalid ErrorCode = "CONTRACT_INVALID"

	// Per-request codes, converted to a ProblemResponse at the dispatcher boundary.
	ErrCodeOperationNotFound   ErrorCode = "OPERATION_NOT_FOUND"
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrCodePersistenceConflict ErrorCode = "PERSISTENCE_CONFLICT"
	ErrCodeRecordNotFound      ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodePersistenceFailed   ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeMalformedRequest    ErrorCode = "MALFORMED_REQUEST"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"

	// Observability-only. Never fails the original request.
	ErrCodeEventPublishDegraded ErrorCode = "EVENT_PUBLISH_DEGRADED"
)

// FieldIssue is a single field-level validation failure.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// RuntimeError represents a structured runtime error.
type RuntimeError struct {
	Code      ErrorCode    `json:"code"`
	Message   string       `json:"message"`
	Details   string       `json:"details,omitempty"`
	Issues    []FieldIssue `json:"issues,omitempty"`
	Retryable bool         `json:"retryable"`
	Timestamp time.Time    `json:"timestamp"`
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("RuntimeError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewContractInvalidError creates a fatal contract load error.
func NewContractInvalidError(details string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeContractInvalid,
		Message:   "Contract document is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewOperationNotFoundError creates a route resolution error.
func NewOperationNotFoundError(method, path string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeOperationNotFound,
		Message:   "No operation declared for route",
		Details:   fmt.Sprintf("method: %s, path: %s", method, path),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a validation error carrying field-level issues.
func NewValidationFailedError(issues []FieldIssue) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Issues:    issues,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistenceConflictError creates a store-level conflict error, distinct
// from validation failure.
func NewPersistenceConflictError(details string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodePersistenceConflict,
		Message:   "Record conflicts with existing data",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordNotFoundError creates a missing-record error.
func NewRecordNotFoundError(collection, key string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeRecordNotFound,
		Message:   "Record not found",
		Details:   fmt.Sprintf("collection: %s, key: %s", collection, key),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamUnavailableError creates a retryable proxy upstream error.
// Upstream failures are never mapped to success or to validation failures.
func NewUpstreamUnavailableError(upstream string, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeUpstreamUnavailable,
		Message:   "Proxy upstream is unavailable",
		Details:   fmt.Sprintf("upstream: %s, error: %s", upstream, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistenceFailedError creates a retryable data store error.
func NewPersistenceFailedError(err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodePersistenceFailed,
		Message:   "Data store operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedRequestError creates a request parse error.
func NewMalformedRequestError(err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeMalformedRequest,
		Message:   "Request body could not be parsed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEventPublishDegradedError creates the observability-only publish error.
func NewEventPublishDegradedError(eventName string, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeEventPublishDegraded,
		Message:   "Change event could not be delivered",
		Details:   fmt.Sprintf("event: %s, error: %s", eventName, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected internal error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Mapping
// ==========================

// HTTPStatus maps an error code to its HTTP status. Every contract served by
// the runtime shares this mapping; consumers can rely on one error contract
// regardless of which API they call.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeOperationNotFound, ErrCodeRecordNotFound:
		return http.StatusNotFound
	case ErrCodeValidationFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeMalformedRequest:
		return http.StatusBadRequest
	case ErrCodePersistenceConflict:
		return http.StatusConflict
	case ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	case ErrCodePersistenceFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus returns the HTTP status for the error.
func (e *RuntimeError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// IsRetryable checks if an error code is retryable.
func IsRetryable(code ErrorCode) bool {
	switch code {
	case ErrCodeUpstreamUnavailable, ErrCodePersistenceFailed, ErrCodeEventPublishDegraded:
		return true
	default:
		return false
	}
}
