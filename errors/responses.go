// Package errors provides error response utilities.
package errors

import (
	"errors"
)

// ErrorResponse is the envelope every failed request receives. Error is
// either a message string or, for upstream failures, the upstream body.
type ErrorResponse struct {
	Error interface{} `json:"error"`
}

// As is a wrapper around errors.As for better error type assertion
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
