// Package handlers provides the HTTP handlers of the relay.
//
// Every failure is converted into an errors.CopilotError, logged once and
// written as a {"error": ...} envelope. Successful answers are written as
// {"answer": "..."}.
package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/ivfcopilot/copilot/errors"
	"github.com/ivfcopilot/copilot/server/middleware"
	"github.com/ivfcopilot/copilot/server/processing"
	"github.com/ivfcopilot/copilot/server/validation"
	"go.uber.org/zap"
)

// AnswerHandler serves POST /api/answer.
type AnswerHandler struct {
	validator    *validation.Validator
	processor    *processing.Processor
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewAnswerHandler creates the answer handler. A non-positive maxBodyBytes
// disables the body size limit.
func NewAnswerHandler(v *validation.Validator, p *processing.Processor, maxBodyBytes int64, logger *zap.Logger) *AnswerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerHandler{
		validator:    v,
		processor:    p,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// ServeHTTP runs credential check, body validation, the upstream call and
// answer extraction, in that order. The first failure ends the request.
func (h *AnswerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	if err := h.validator.CheckCredential(requestID); err != nil {
		h.fail(w, requestID, err)
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			h.fail(w, requestID, errors.NewPayloadTooLargeError(requestID, err))
			return
		}
		h.fail(w, requestID, errors.NewValidationError(requestID, errors.MsgInvalidBody))
		return
	}

	req, err := h.validator.ParseRequest(requestID, body)
	if err != nil {
		h.fail(w, requestID, err)
		return
	}

	answer, err := h.processor.Answer(r.Context(), requestID, req)
	if err != nil {
		h.fail(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, answer, h.logger)
}

func (h *AnswerHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	reader := io.Reader(r.Body)
	if h.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	return io.ReadAll(reader)
}

func (h *AnswerHandler) fail(w http.ResponseWriter, requestID string, err error) {
	cErr := errors.FromError(requestID, err)
	errors.LogError(h.logger, cErr, requestID)
	errors.WriteError(w, cErr)
}

// writeJSON writes v without escaping <, > and &, so answers reach the
// client byte for byte.
func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *zap.Logger) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
		errors.WriteError(w, errors.NewInternalError("", nil))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("failed to write response", zap.Error(err))
	}
}
