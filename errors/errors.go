// Package errors provides the error handling system for the IVF Copilot relay.
// Every failure that reaches the HTTP boundary is converted into a CopilotError
// and written as a single JSON envelope of the form {"error": ...}.
//
// The package offers:
//
//   - Typed errors carrying the HTTP status they map to
//   - Verbatim passthrough of upstream error bodies
//   - Integrated logging with zap
//   - Middleware integration for panic recovery
//
// Basic usage:
//
//	// Simple error response
//	errors.Error(w, "Something went wrong", http.StatusBadRequest)
//
//	// Convert any error at the boundary
//	errors.WriteError(w, errors.FromError(requestID, err))
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger allows setting a custom zap logger instance.
// If nil is provided, the function will do nothing to prevent
// accidentally disabling logging.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType represents the categories of failure the relay distinguishes.
type ErrorType string

const (
	// ValidationError represents malformed or missing client input
	ValidationError ErrorType = "validation_error"

	// ConfigError represents deployment misconfiguration, such as a missing credential
	ConfigError ErrorType = "config_error"

	// UpstreamError represents a non-success response from the completion service
	UpstreamError ErrorType = "upstream_error"

	// UnavailableError represents an upstream that is short-circuited by the breaker
	UnavailableError ErrorType = "unavailable_error"

	// InternalError represents any other failure
	InternalError ErrorType = "internal_error"

	// RateLimitError represents rate limiting errors
	RateLimitError ErrorType = "rate_limit_error"

	// PayloadTooLargeError represents request bodies above the configured limit
	PayloadTooLargeError ErrorType = "payload_too_large"

	// NotFoundError represents unknown routes
	NotFoundError ErrorType = "not_found"

	// MethodNotAllowedError represents a known route called with the wrong method
	MethodNotAllowedError ErrorType = "method_not_allowed"
)

// CopilotError is the error type that crosses the HTTP boundary. Only the
// payload is serialized; type, code and request ID stay server side and are
// used for logging and the response status.
type CopilotError struct {
	// Type categorizes the error
	Type ErrorType

	// Message is the human-readable error description sent to the client
	Message string

	// Code is the HTTP status code
	Code int

	// RequestID links the error to a specific request
	RequestID string

	// Payload replaces Message in the envelope when set. Upstream errors carry
	// the upstream body here verbatim.
	Payload json.RawMessage

	err error
}

// Error implements the error interface. It returns a string that
// combines the error type, message, and underlying error (if any).
func (e *CopilotError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, implementing the unwrap
// interface for error chains.
func (e *CopilotError) Unwrap() error {
	return e.err
}

// Is implements error matching for errors.Is, allowing type-based
// error matching while ignoring other fields.
func (e *CopilotError) Is(target error) bool {
	t, ok := target.(*CopilotError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// MarshalJSON renders the error envelope.
func (e *CopilotError) MarshalJSON() ([]byte, error) {
	if len(e.Payload) > 0 {
		return json.Marshal(ErrorResponse{Error: e.Payload})
	}
	return json.Marshal(ErrorResponse{Error: e.Message})
}

// WriteError formats and writes a CopilotError to an http.ResponseWriter.
// It sets the appropriate content type and status code, then writes
// the error envelope as a JSON response.
func WriteError(w http.ResponseWriter, err *CopilotError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(err.Code)
	if encErr := json.NewEncoder(w).Encode(err); encErr != nil {
		DefaultLogger.Error("failed to encode error response",
			zap.Error(encErr),
			zap.String("request_id", err.RequestID),
		)
	}
}

// Error is a drop-in replacement for http.Error that writes the message as
// an internal error envelope. It picks up the request ID from the response
// headers if available.
func Error(w http.ResponseWriter, message string, code int) {
	ErrorWithType(w, message, InternalError, code)
}

// ErrorWithType is like Error but allows specifying the error type.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	WriteError(w, &CopilotError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}
