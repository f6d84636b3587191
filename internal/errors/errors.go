// Package errors defines the service error taxonomy and its HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure in API responses.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeMissingField       ErrorCode = "MISSING_FIELD"
	CodeAuthRequired       ErrorCode = "AUTHENTICATION_REQUIRED"
	CodeAuthorizationDeny  ErrorCode = "AUTHORIZATION_DENIED"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeRateLimitExceeded  ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is an error carrying an HTTP status and a client-safe message.
// Err holds the underlying cause and is never rendered to clients.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

// New creates a ServiceError.
func New(code ErrorCode, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap creates a ServiceError around a cause.
func Wrap(err error, code ErrorCode, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation reports malformed client input.
func Validation(message string) *ServiceError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// MissingField reports a required field that was empty or absent.
func MissingField(field string) *ServiceError {
	return New(CodeMissingField, field+" is required", http.StatusBadRequest).WithDetails("field", field)
}

// AuthenticationRequired reports a mutating request without a caller address.
func AuthenticationRequired(message string) *ServiceError {
	if message == "" {
		message = "wallet address header required"
	}
	return New(CodeAuthRequired, message, http.StatusUnauthorized)
}

// AuthorizationDenied reports a caller acting on a resource it does not own.
func AuthorizationDenied(message string) *ServiceError {
	if message == "" {
		message = "forbidden"
	}
	return New(CodeAuthorizationDeny, message, http.StatusForbidden)
}

// NotFound reports an unknown resource id.
func NotFound(resource string) *ServiceError {
	return New(CodeNotFound, resource+" not found", http.StatusNotFound)
}

// Conflict reports a state transition that is not allowed from the current state.
func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict)
}

// RateLimitExceeded reports a client over its request quota.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// BackendUnavailable reports a record store failure. The reason is meant for
// operators and is only rendered as a detail, never the underlying error.
func BackendUnavailable(reason string, err error) *ServiceError {
	return Wrap(err, CodeBackendUnavailable, "backend unavailable", http.StatusInternalServerError).
		WithDetails("reason", reason)
}

// Internal reports an unexpected fault.
func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return Wrap(err, CodeInternal, message, http.StatusInternalServerError)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// HTTPStatus returns the status for err, defaulting to 500.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
