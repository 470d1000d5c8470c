// Package errors defines the service error contract shared by all handlers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned to clients.
const (
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNotFound       = "NOT_FOUND"
	CodeRateLimited    = "RATE_LIMITED"
	CodeUpstreamError  = "UPSTREAM_ERROR"
	CodeSessionExpired = "SESSION_EXPIRED"
)

// ServiceError is the canonical error shape surfaced by the HTTP layer.
type ServiceError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
	HTTPStatus int      `json:"-"`
	cause      error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithCause attaches an underlying error without changing the client-facing shape.
func (e *ServiceError) WithCause(err error) *ServiceError {
	clone := *e
	clone.cause = err
	return &clone
}

// Unauthorized signals a missing or unusable session.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// SessionExpired signals a session whose refresh has failed; the client must
// re-authenticate rather than retry.
func SessionExpired(message string) *ServiceError {
	return &ServiceError{Code: CodeSessionExpired, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// Forbidden signals an authenticated caller lacking the required role.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// InvalidInput signals a request rejected by local validation. Fields names
// the offending request fields, if known.
func InvalidInput(message string, fields ...string) *ServiceError {
	return &ServiceError{Code: CodeInvalidInput, Message: message, Fields: fields, HTTPStatus: http.StatusBadRequest}
}

// NotFound signals an unknown resource.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// RateLimited signals the caller exceeded the request budget.
func RateLimited(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// Upstream wraps a backend failure whose status should be forwarded as-is.
func Upstream(status int, message string) *ServiceError {
	if status < 400 {
		status = http.StatusBadGateway
	}
	return &ServiceError{Code: CodeUpstreamError, Message: message, HTTPStatus: status}
}

// AsService extracts a *ServiceError from err, or wraps it as a generic
// upstream failure so no raw error text reaches the client.
func AsService(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return (&ServiceError{
		Code:       CodeUpstreamError,
		Message:    "the service is temporarily unavailable",
		HTTPStatus: http.StatusBadGateway,
	}).WithCause(err)
}
