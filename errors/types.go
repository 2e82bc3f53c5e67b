package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Client-visible messages that are part of the API contract.
const (
	MsgQuestionRequired    = "question is required"
	MsgInvalidBody         = "invalid request body"
	MsgQuestionTooLong     = "question is too long"
	MsgBodyTooLarge        = "request body too large"
	MsgRateLimited         = "rate limit exceeded"
	MsgUpstreamUnavailable = "upstream temporarily unavailable"
	MsgInternal            = "internal server error"
)

// NewError creates a new CopilotError with the given parameters.
// It is a general-purpose constructor that allows full control over
// the error's fields. For most cases, you should use one of the
// specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "encode failed", 500, "req_123", encErr)
func NewError(errType ErrorType, message string, code int, requestID string, err error) *CopilotError {
	return &CopilotError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		err:       err,
	}
}

// NewValidationError creates a validation error answered with 400.
// Use this for any client input failure, such as:
//   - Missing or non-string question
//   - Unparseable request body
//   - Questions above the token budget
func NewValidationError(requestID, message string) *CopilotError {
	return &CopilotError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
	}
}

// NewConfigError reports a missing deployment setting. The request fails
// with 500; the process keeps serving.
//
// Example:
//
//	err := NewConfigError("req_123", "OPENAI_API_KEY")
func NewConfigError(requestID, envVar string) *CopilotError {
	return &CopilotError{
		Type:      ConfigError,
		Message:   fmt.Sprintf("Missing %s env var", envVar),
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
	}
}

// NewUpstreamError passes a non-success upstream response through verbatim:
// the upstream status becomes the response status and the upstream body is
// embedded as the error payload.
func NewUpstreamError(requestID string, status int, body json.RawMessage) *CopilotError {
	payload := body
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return &CopilotError{
		Type:      UpstreamError,
		Message:   http.StatusText(status),
		Code:      status,
		RequestID: requestID,
		Payload:   payload,
	}
}

// NewUnavailableError creates the error returned while the upstream circuit is open.
func NewUnavailableError(requestID string, err error) *CopilotError {
	return &CopilotError{
		Type:      UnavailableError,
		Message:   MsgUpstreamUnavailable,
		Code:      http.StatusServiceUnavailable,
		RequestID: requestID,
		err:       err,
	}
}

// NewRateLimitError creates a rate limit error with appropriate defaults.
func NewRateLimitError(requestID string) *CopilotError {
	return &CopilotError{
		Type:      RateLimitError,
		Message:   MsgRateLimited,
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
	}
}

// NewPayloadTooLargeError creates the error for bodies above the size limit.
func NewPayloadTooLargeError(requestID string, err error) *CopilotError {
	return &CopilotError{
		Type:      PayloadTooLargeError,
		Message:   MsgBodyTooLarge,
		Code:      http.StatusRequestEntityTooLarge,
		RequestID: requestID,
		err:       err,
	}
}

// NewInternalError creates an internal server error. The message sent to the
// client is the string form of err, or a generic message when err is nil.
func NewInternalError(requestID string, err error) *CopilotError {
	message := MsgInternal
	if err != nil {
		message = err.Error()
	}
	return &CopilotError{
		Type:      InternalError,
		Message:   message,
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

// FromError converts any error into a CopilotError. Errors that already are
// (or wrap) a CopilotError keep their classification; anything else becomes
// an internal error carrying its string representation.
func FromError(requestID string, err error) *CopilotError {
	var cErr *CopilotError
	if As(err, &cErr) {
		if cErr.RequestID == "" {
			cErr.RequestID = requestID
		}
		return cErr
	}
	return NewInternalError(requestID, err)
}
