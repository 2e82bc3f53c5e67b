package provider

import "errors"

var (
	// ErrCircuitOpen is returned while the circuit breaker rejects calls
	ErrCircuitOpen = errors.New("upstream circuit breaker is open")

	// ErrInvalidResponse is returned when the upstream body is not valid JSON
	ErrInvalidResponse = errors.New("invalid upstream response")

	// errServerStatus marks 5xx responses as breaker failures. It never
	// leaves the package.
	errServerStatus = errors.New("upstream server error")
)
