// Package validation checks incoming answer requests before any upstream
// call is made.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/ivfcopilot/copilot/config"
	"github.com/ivfcopilot/copilot/errors"
	"github.com/ivfcopilot/copilot/server/processing"
)

var validate = validator.New()

// Validator turns raw request bodies into AnswerRequests. It is immutable
// and safe for concurrent use.
type Validator struct {
	hasCredential     bool
	maxQuestionTokens int
	counter           *TokenCounter
}

// NewValidator creates a validator for cfg. The counter is only required
// when cfg enables the question token budget.
func NewValidator(cfg *config.Config, counter *TokenCounter) (*Validator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Validation.MaxQuestionTokens > 0 && counter == nil {
		return nil, fmt.Errorf("token counter required when max_question_tokens is set")
	}
	return &Validator{
		hasCredential:     cfg.HasCredential(),
		maxQuestionTokens: cfg.Validation.MaxQuestionTokens,
		counter:           counter,
	}, nil
}

// CheckCredential fails with a config error when no upstream credential is
// configured.
func (v *Validator) CheckCredential(requestID string) error {
	if !v.hasCredential {
		return errors.NewConfigError(requestID, config.CredentialEnvVar)
	}
	return nil
}

// Validate runs CheckCredential and then ParseRequest.
func (v *Validator) Validate(requestID string, body []byte) (*processing.AnswerRequest, error) {
	if err := v.CheckCredential(requestID); err != nil {
		return nil, err
	}
	return v.ParseRequest(requestID, body)
}

// ParseRequest decodes and validates body. An empty body and bodies that are
// valid JSON but not objects are treated as {}. Returned errors are
// *errors.CopilotError.
func (v *Validator) ParseRequest(requestID string, body []byte) (*processing.AnswerRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return nil, errors.NewValidationError(requestID, errors.MsgInvalidBody)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		fields = nil
	}

	req := &processing.AnswerRequest{
		UserState: normalizeUserState(fields["user_state"]),
		DPT:       fields["dpt"],
	}

	rawQuestion := bytes.TrimSpace(fields["question"])
	if len(rawQuestion) == 0 || rawQuestion[0] != '"' {
		return nil, errors.NewValidationError(requestID, errors.MsgQuestionRequired)
	}
	if err := json.Unmarshal(rawQuestion, &req.Question); err != nil {
		return nil, errors.NewValidationError(requestID, errors.MsgQuestionRequired)
	}
	if err := validate.Struct(req); err != nil {
		return nil, errors.NewValidationError(requestID, errors.MsgQuestionRequired)
	}

	if v.maxQuestionTokens > 0 {
		if err := v.counter.ValidateTokens(req.Question, v.maxQuestionTokens); err != nil {
			return nil, errors.NewError(errors.ValidationError, errors.MsgQuestionTooLong,
				http.StatusBadRequest, requestID, err)
		}
	}

	return req, nil
}

// normalizeUserState maps an absent or falsy user_state (null, false, 0, "")
// to an empty object. Anything else is kept verbatim.
func normalizeUserState(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("{}")
	}
	switch string(trimmed) {
	case "null", "false", `""`:
		return json.RawMessage("{}")
	}
	if f, err := strconv.ParseFloat(string(trimmed), 64); err == nil && f == 0 {
		return json.RawMessage("{}")
	}
	return trimmed
}
