// Package errors provides unified error handling for the service layer
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Authentication errors (1xxx)
	ErrCodeUnauthorized     ErrorCode = "AUTH_1001"
	ErrCodeInvalidToken     ErrorCode = "AUTH_1002"
	ErrCodeTokenExpired     ErrorCode = "AUTH_1003"
	ErrCodeInvalidSignature ErrorCode = "AUTH_1004"

	// Authorization errors (2xxx)
	ErrCodeForbidden         ErrorCode = "AUTHZ_2001"
	ErrCodeInsufficientRole  ErrorCode = "AUTHZ_2002"
	ErrCodeOwnershipRequired ErrorCode = "AUTHZ_2003"

	// Validation errors (3xxx) - malformed plans, unknown enums, cycles, dangling edges
	ErrCodeInvalidInput     ErrorCode = "VAL_3001"
	ErrCodeMissingParameter ErrorCode = "VAL_3002"
	ErrCodeInvalidFormat    ErrorCode = "VAL_3003"
	ErrCodeOutOfRange       ErrorCode = "VAL_3004"
	ErrCodeGraphCycle       ErrorCode = "VAL_3005"
	ErrCodeDanglingEdge     ErrorCode = "VAL_3006"
	ErrCodeUnknownLocation  ErrorCode = "VAL_3007"
	ErrCodeSchemaVersion    ErrorCode = "VAL_3008"

	// Resource errors (4xxx)
	ErrCodeNotFound      ErrorCode = "RES_4001"
	ErrCodeAlreadyExists ErrorCode = "RES_4002"
	ErrCodeConflict      ErrorCode = "RES_4003"

	// Service / infrastructure errors (5xxx)
	ErrCodeInternal          ErrorCode = "SVC_5001"
	ErrCodeDatabaseError     ErrorCode = "SVC_5002"
	ErrCodeFatalStartup      ErrorCode = "SVC_5003"
	ErrCodeExternalAPI       ErrorCode = "SVC_5004"
	ErrCodeTimeout           ErrorCode = "SVC_5005"
	ErrCodeRateLimitExceeded ErrorCode = "SVC_5006"

	// Transport errors (6xxx) - HTTP failures during plan execution, recorded on node results
	ErrCodeTransportRefused ErrorCode = "XPORT_6001"
	ErrCodeTransportTimeout ErrorCode = "XPORT_6002"
	ErrCodeTransportStatus  ErrorCode = "XPORT_6003"

	// Assertion errors (7xxx) - a predicate evaluated false
	ErrCodeAssertionFailed ErrorCode = "ASSERT_7001"

	// Secret resolution errors (8xxx) - fail-fast, run aborts before first request
	ErrCodeSecretProviderUnknown ErrorCode = "SECRET_8001"
	ErrCodeSecretMissing         ErrorCode = "SECRET_8002"
	ErrCodeSecretFieldAbsent     ErrorCode = "SECRET_8003"
	ErrCodeSecretParseFailure    ErrorCode = "SECRET_8004"
	ErrCodeSecretDuplicate       ErrorCode = "SECRET_8005"

	// Job processing errors (9xxx) - any exception inside the worker's job path
	ErrCodeJobProcessing ErrorCode = "JOB_9001"
)

// ServiceError represents a structured error with code, message, and HTTP status
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Authentication Errors

func Unauthorized(message string) *ServiceError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(err error) *ServiceError {
	return Wrap(ErrCodeInvalidToken, "Invalid authentication token", http.StatusUnauthorized, err)
}

func TokenExpired() *ServiceError {
	return New(ErrCodeTokenExpired, "Authentication token has expired", http.StatusUnauthorized)
}

func InvalidSignature(err error) *ServiceError {
	return Wrap(ErrCodeInvalidSignature, "Invalid signature", http.StatusUnauthorized, err)
}

// Authorization Errors

func Forbidden(message string) *ServiceError {
	return New(ErrCodeForbidden, message, http.StatusForbidden)
}

func InsufficientRole(required string) *ServiceError {
	return New(ErrCodeInsufficientRole, "Insufficient role", http.StatusForbidden).
		WithDetails("required", required)
}

func OwnershipRequired(resource string) *ServiceError {
	return New(ErrCodeOwnershipRequired, "Ownership verification required", http.StatusForbidden).
		WithDetails("resource", resource)
}

// Validation Errors

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "Invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ErrCodeMissingParameter, "Missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

func InvalidFormat(field, expected string) *ServiceError {
	return New(ErrCodeInvalidFormat, "Invalid format", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("expected", expected)
}

func OutOfRange(field string, minValue, maxValue interface{}) *ServiceError {
	return New(ErrCodeOutOfRange, "Value out of range", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("min", minValue).
		WithDetails("max", maxValue)
}

func GraphCycle(nodeID string) *ServiceError {
	return New(ErrCodeGraphCycle, "Plan graph contains a cycle", http.StatusBadRequest).
		WithDetails("node", nodeID)
}

func DanglingEdge(from, to string) *ServiceError {
	return New(ErrCodeDanglingEdge, "Edge references an unknown node", http.StatusBadRequest).
		WithDetails("from", from).
		WithDetails("to", to)
}

func UnknownLocation(location string) *ServiceError {
	return New(ErrCodeUnknownLocation, "Plan references an unregistered location", http.StatusBadRequest).
		WithDetails("location", location)
}

func SchemaVersion(got string) *ServiceError {
	return New(ErrCodeSchemaVersion, "Unsupported plan schema version", http.StatusBadRequest).
		WithDetails("version", got)
}

// Resource Errors

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "Resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func AlreadyExists(resource, id string) *ServiceError {
	return New(ErrCodeAlreadyExists, "Resource already exists", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Service Errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func DatabaseError(operation string, err error) *ServiceError {
	return Wrap(ErrCodeDatabaseError, "Database operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

// FatalStartup wraps an error encountered while bootstrapping a process
// (unreachable DB, invalid config). Callers are expected to exit non-zero.
func FatalStartup(reason string, err error) *ServiceError {
	return Wrap(ErrCodeFatalStartup, reason, http.StatusInternalServerError, err)
}

func ExternalAPIError(service string, err error) *ServiceError {
	return Wrap(ErrCodeExternalAPI, "External API call failed", http.StatusBadGateway, err).
		WithDetails("service", service)
}

func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "Operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Transport Errors - recorded on a node result, never bubbled as a process-level error

func TransportRefused(err error) *ServiceError {
	return Wrap(ErrCodeTransportRefused, "Connection refused", http.StatusBadGateway, err)
}

func TransportTimeout(timeoutMs int64) *ServiceError {
	return New(ErrCodeTransportTimeout, fmt.Sprintf("Request timed out after %dms", timeoutMs), http.StatusGatewayTimeout).
		WithDetails("timeout_ms", timeoutMs)
}

func TransportStatus(statusCode int, body string) *ServiceError {
	return New(ErrCodeTransportStatus, fmt.Sprintf("HTTP %d", statusCode), http.StatusBadGateway).
		WithDetails("status_code", statusCode).
		WithDetails("body", body)
}

// Assertion Errors

func AssertionFailed(path, predicate string, expected interface{}) *ServiceError {
	return New(ErrCodeAssertionFailed, "Assertion failed", http.StatusOK).
		WithDetails("path", path).
		WithDetails("predicate", predicate).
		WithDetails("expected", expected)
}

// Secret Resolution Errors - fail-fast, abort the run before any HTTP call

func SecretProviderUnknown(name string) *ServiceError {
	return New(ErrCodeSecretProviderUnknown, "Unknown secret provider", http.StatusBadRequest).
		WithDetails("provider", name)
}

func SecretMissing(provider, ref string) *ServiceError {
	return New(ErrCodeSecretMissing, "Secret reference not found", http.StatusBadRequest).
		WithDetails("provider", provider).
		WithDetails("ref", ref)
}

func SecretFieldAbsent(provider, ref, field string) *ServiceError {
	return New(ErrCodeSecretFieldAbsent, "Secret field not present in resolved value", http.StatusBadRequest).
		WithDetails("provider", provider).
		WithDetails("ref", ref).
		WithDetails("field", field)
}

func SecretParseFailure(provider, ref string, err error) *ServiceError {
	return Wrap(ErrCodeSecretParseFailure, "Failed to parse secret value as JSON", http.StatusBadRequest, err).
		WithDetails("provider", provider).
		WithDetails("ref", ref)
}

func SecretDuplicateProvider(name string) *ServiceError {
	return New(ErrCodeSecretDuplicate, "Secret provider already registered", http.StatusConflict).
		WithDetails("provider", name)
}

// Job Processing Errors

func JobProcessing(err error) *ServiceError {
	return Wrap(ErrCodeJobProcessing, "Job processing failed", http.StatusInternalServerError, err)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
