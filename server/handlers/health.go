package handlers

import (
	"io"
	"net/http"

	"github.com/ivfcopilot/copilot/errors"
	"github.com/ivfcopilot/copilot/server/middleware"
)

// Health returns a handler answering with a fixed plain text message.
func Health(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, message)
	}
}

// NotFound writes a JSON 404 envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	errors.WriteError(w, errors.NewError(errors.NotFoundError, "not found",
		http.StatusNotFound, middleware.GetRequestID(r.Context()), nil))
}

// MethodNotAllowed writes a JSON 405 envelope.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	errors.WriteError(w, errors.NewError(errors.MethodNotAllowedError, "method not allowed",
		http.StatusMethodNotAllowed, middleware.GetRequestID(r.Context()), nil))
}
