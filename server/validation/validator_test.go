package validation

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/ivfcopilot/copilot/config"
	"github.com/ivfcopilot/copilot/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(apiKey string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Upstream.APIKey = apiKey
	return cfg
}

func requireCopilotError(t *testing.T, err error, code int, message string) {
	t.Helper()
	var copilotErr *errors.CopilotError
	require.True(t, stderrors.As(err, &copilotErr), "expected CopilotError, got %v", err)
	assert.Equal(t, code, copilotErr.Code)
	assert.Equal(t, message, copilotErr.Message)
	assert.Equal(t, "req-1", copilotErr.RequestID)
}

func TestNewValidator(t *testing.T) {
	_, err := NewValidator(nil, nil)
	assert.Error(t, err)

	cfg := testConfig("sk-test")
	cfg.Validation.MaxQuestionTokens = 10
	_, err = NewValidator(cfg, nil)
	assert.Error(t, err)

	_, err = NewValidator(cfg, NewTokenCounterWithTokenizer(wordTokenizer{}))
	assert.NoError(t, err)
}

func TestCheckCredential(t *testing.T) {
	v, err := NewValidator(testConfig(""), nil)
	require.NoError(t, err)
	requireCopilotError(t, v.CheckCredential("req-1"), http.StatusInternalServerError,
		"Missing OPENAI_API_KEY env var")

	v, err = NewValidator(testConfig("   "), nil)
	require.NoError(t, err)
	assert.Error(t, v.CheckCredential("req-1"))

	v, err = NewValidator(testConfig("sk-test"), nil)
	require.NoError(t, err)
	assert.NoError(t, v.CheckCredential("req-1"))
}

func TestValidateCredentialBeforeBody(t *testing.T) {
	v, err := NewValidator(testConfig(""), nil)
	require.NoError(t, err)

	for _, body := range []string{`not json`, `{}`, `{"question":"hi"}`} {
		_, err := v.Validate("req-1", []byte(body))
		requireCopilotError(t, err, http.StatusInternalServerError, "Missing OPENAI_API_KEY env var")
	}
}

func TestParseRequest(t *testing.T) {
	v, err := NewValidator(testConfig("sk-test"), nil)
	require.NoError(t, err)

	tests := []struct {
		name          string
		body          string
		wantErr       string
		wantQuestion  string
		wantUserState string
		wantDPT       string
	}{
		{
			name:          "full request",
			body:          `{"user_state":{"embryo_day":5},"dpt":7,"question":"Is this normal?"}`,
			wantQuestion:  "Is this normal?",
			wantUserState: `{"embryo_day":5}`,
			wantDPT:       `7`,
		},
		{
			name:          "question only",
			body:          `{"question":"hi"}`,
			wantQuestion:  "hi",
			wantUserState: `{}`,
		},
		{
			name:          "null user state",
			body:          `{"user_state":null,"question":"hi"}`,
			wantQuestion:  "hi",
			wantUserState: `{}`,
		},
		{
			name:          "falsy user state",
			body:          `{"user_state":0,"question":"hi"}`,
			wantQuestion:  "hi",
			wantUserState: `{}`,
		},
		{
			name:          "array user state kept",
			body:          `{"user_state":[1,2],"question":"hi"}`,
			wantQuestion:  "hi",
			wantUserState: `[1,2]`,
		},
		{
			name:          "dpt not type checked",
			body:          `{"dpt":"five","question":"hi"}`,
			wantQuestion:  "hi",
			wantUserState: `{}`,
			wantDPT:       `"five"`,
		},
		{
			name:          "whitespace question accepted",
			body:          `{"question":"  "}`,
			wantQuestion:  "  ",
			wantUserState: `{}`,
		},
		{name: "missing question", body: `{"user_state":{}}`, wantErr: errors.MsgQuestionRequired},
		{name: "null question", body: `{"question":null}`, wantErr: errors.MsgQuestionRequired},
		{name: "empty question", body: `{"question":""}`, wantErr: errors.MsgQuestionRequired},
		{name: "numeric question", body: `{"question":42}`, wantErr: errors.MsgQuestionRequired},
		{name: "object question", body: `{"question":{"text":"hi"}}`, wantErr: errors.MsgQuestionRequired},
		{name: "json array body", body: `["question"]`, wantErr: errors.MsgQuestionRequired},
		{name: "json null body", body: `null`, wantErr: errors.MsgQuestionRequired},
		{name: "not json", body: `question=hi`, wantErr: errors.MsgInvalidBody},
		{name: "empty body", body: ``, wantErr: errors.MsgQuestionRequired},
		{name: "whitespace body", body: " \n\t", wantErr: errors.MsgQuestionRequired},
		{name: "truncated json", body: `{"question":"hi"`, wantErr: errors.MsgInvalidBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := v.ParseRequest("req-1", []byte(tt.body))

			if tt.wantErr != "" {
				requireCopilotError(t, err, http.StatusBadRequest, tt.wantErr)
				assert.Nil(t, req)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantQuestion, req.Question)
			assert.JSONEq(t, tt.wantUserState, string(req.UserState))
			if tt.wantDPT == "" {
				assert.Empty(t, req.DPT)
			} else {
				assert.JSONEq(t, tt.wantDPT, string(req.DPT))
			}
		})
	}
}

func TestParseRequestTokenBudget(t *testing.T) {
	cfg := testConfig("sk-test")
	cfg.Validation.MaxQuestionTokens = 3
	v, err := NewValidator(cfg, NewTokenCounterWithTokenizer(wordTokenizer{}))
	require.NoError(t, err)

	req, err := v.ParseRequest("req-1", []byte(`{"question":"one two three"}`))
	require.NoError(t, err)
	assert.Equal(t, "one two three", req.Question)

	_, err = v.ParseRequest("req-1", []byte(`{"question":"one two three four"}`))
	requireCopilotError(t, err, http.StatusBadRequest, errors.MsgQuestionTooLong)
}
