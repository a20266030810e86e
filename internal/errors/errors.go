// Package errors provides standardized error handling for the Gap
// Intelligence API.
//
// This package implements a consistent error format across all API
// endpoints:
//   - Structured error responses with machine-readable kinds
//   - Automatic HTTP status code mapping
//   - Optional error details for debugging
//
// Error Structure:
//   - Kind: Machine-readable classification (e.g. "NOT_FOUND")
//   - Message: Human-readable error message
//   - Details: Optional additional context (wrapped errors)
//   - StatusCode: HTTP status code (400, 401, 403, 404, 409, 413, 503, 500)
//
// Kinds (spec §7):
//   - Invalid, Unauthenticated, Forbidden, NotFound, Conflict,
//     PayloadTooLarge: client errors surfaced verbatim to the HTTP caller.
//   - ExternalUnavailable: an AI provider or email relay call failed.
//     Background paths (enrichment, notification) swallow these after
//     logging; only a synchronous request path returns 503 for one.
//   - Internal: anything else, logged with details but never echoed to
//     the client.
//
// Usage patterns:
//
//	return nil, errors.NotFound("gap")
//	return nil, errors.Conflict("gap is already resolved")
//	return nil, errors.InternalWrap("failed to persist gap", err)
package errors

import (
	"fmt"
	"net/http"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	KindInvalid             Kind = "INVALID"
	KindUnauthenticated     Kind = "UNAUTHENTICATED"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotFound             Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindPayloadTooLarge     Kind = "PAYLOAD_TOO_LARGE"
	KindExternalUnavailable Kind = "EXTERNAL_UNAVAILABLE"
	KindInternal            Kind = "INTERNAL"
)

// AppError is a standardized application error with HTTP context.
type AppError struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`

	StatusCode int `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrorResponse is the JSON body returned to clients.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ToResponse converts e to its wire format.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: string(e.Kind), Message: e.Message, Details: e.Details}
}

func statusForKind(k Kind) int {
	switch k {
	case KindInvalid:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindExternalUnavailable:
		return http.StatusServiceUnavailable
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, StatusCode: statusForKind(kind)}
}

// Wrap creates an AppError of the given kind, carrying err's message as
// Details.
func Wrap(kind Kind, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &AppError{Kind: kind, Message: message, Details: details, StatusCode: statusForKind(kind)}
}

func Invalid(message string) *AppError { return New(KindInvalid, message) }

func InvalidWrap(message string, err error) *AppError { return Wrap(KindInvalid, message, err) }

func Unauthenticated(message string) *AppError { return New(KindUnauthenticated, message) }

func Forbidden(message string) *AppError { return New(KindForbidden, message) }

func NotFound(resource string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError { return New(KindConflict, message) }

func PayloadTooLarge(message string) *AppError { return New(KindPayloadTooLarge, message) }

// ExternalUnavailable wraps a failure reaching an external collaborator
// (AI provider, email relay). Callers on background paths log and drop
// this rather than propagate it.
func ExternalUnavailable(service string, err error) *AppError {
	return Wrap(KindExternalUnavailable, fmt.Sprintf("%s is currently unavailable", service), err)
}

func Internal(message string) *AppError { return New(KindInternal, message) }

func InternalWrap(message string, err error) *AppError {
	return Wrap(KindInternal, message, err)
}

// IsKind reports whether err is an *AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Kind == kind
}

// As extracts *AppError from err if possible.
func As(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}
