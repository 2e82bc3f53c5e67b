package middleware

type contextKey string

const (
	// RequestIDKey stores the request ID in the request context
	RequestIDKey contextKey = "request_id"

	// RequestIDHeader carries the request ID on requests and responses
	RequestIDHeader = "X-Request-ID"

	// ResponseTimeHeader reports how long the server spent on a request
	ResponseTimeHeader = "X-Response-Time"

	// maxRequestIDLength bounds client supplied request IDs
	maxRequestIDLength = 128
)
