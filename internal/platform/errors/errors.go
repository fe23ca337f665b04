// Package errors provides the structured error taxonomy shared by the planner core and its adapters.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of a failure. It decides how the failure is
// presented to the user and which HTTP status an API handler answers with.
type ErrorType string

const (
	// TypeTransport is a network or HTTP failure talking to a remote service.
	TypeTransport ErrorType = "transport"
	// TypeRejection is a 2xx envelope carrying success: false.
	TypeRejection ErrorType = "rejection"
	// TypeGuard is a precondition checked locally; never reaches the network.
	TypeGuard ErrorType = "guard"
	// TypeTimeout is a client-side deadline that elapsed before a result arrived.
	TypeTimeout ErrorType = "timeout"
	// TypeNotFound indicates an unknown local resource (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeInternal indicates an unexpected failure (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	// Details is secondary diagnostic text supplied by a remote service.
	Details string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeGuard:
		return http.StatusConflict
	case TypeNotFound:
		return http.StatusNotFound
	case TypeTransport, TypeRejection:
		return http.StatusBadGateway
	case TypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// TransportError wraps a network or HTTP failure.
func TransportError(message string, cause error) *Error {
	return &Error{Type: TypeTransport, Message: message, Cause: cause, Context: make(map[string]any)}
}

// RejectionError reports a success: false answer. message and details are
// taken verbatim from the remote envelope and may be empty.
func RejectionError(message, details string) *Error {
	return &Error{Type: TypeRejection, Message: message, Details: details, Context: make(map[string]any)}
}

// GuardError reports a violated local precondition.
func GuardError(message string) *Error {
	return &Error{Type: TypeGuard, Message: message, Context: make(map[string]any)}
}

// TimeoutError reports a client-side deadline with a fixed message.
func TimeoutError(message string) *Error {
	return &Error{Type: TypeTimeout, Message: message, Context: make(map[string]any)}
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message, Context: make(map[string]any)}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause, Context: make(map[string]any)}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Details string         `json:"details,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Details: e.Details,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal error", err)
}

// TypeOf returns the category of err, or TypeInternal for unstructured errors.
func TypeOf(err error) ErrorType {
	return AsStructuredError(err).Type
}

// UserMessage returns the message to show the user for err: the structured
// message when one is present, otherwise fallback. Transport and internal
// failures always use fallback since their messages are not user-facing.
func UserMessage(err error, fallback string) string {
	var structuredErr *Error
	if !errors.As(err, &structuredErr) {
		return fallback
	}
	switch structuredErr.Type {
	case TypeTransport, TypeInternal:
		return fallback
	}
	if structuredErr.Message == "" {
		return fallback
	}
	return structuredErr.Message
}

// DetailsOf returns the secondary diagnostic text carried by err, if any.
func DetailsOf(err error) string {
	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr.Details
	}
	return ""
}
