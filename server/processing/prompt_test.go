package processing

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	tests := []struct {
		name string
		req  *AnswerRequest
		want string
	}{
		{
			name: "full context",
			req: &AnswerRequest{
				UserState: json.RawMessage(`{"embryo_day":5}`),
				DPT:       json.RawMessage(`7`),
				Question:  "Is cramping normal?",
			},
			want: "User context JSON:\n{\n  \"user_state\": {\n    \"embryo_day\": 5\n  },\n  \"dpt\": 7,\n  \"question\": \"Is cramping normal?\"\n}",
		},
		{
			name: "missing user state and dpt",
			req:  &AnswerRequest{Question: "hi"},
			want: "User context JSON:\n{\n  \"user_state\": {},\n  \"question\": \"hi\"\n}",
		},
		{
			name: "null dpt is kept",
			req: &AnswerRequest{
				UserState: json.RawMessage(`{}`),
				DPT:       json.RawMessage(`null`),
				Question:  "hi",
			},
			want: "User context JSON:\n{\n  \"user_state\": {},\n  \"dpt\": null,\n  \"question\": \"hi\"\n}",
		},
		{
			name: "client literals and key order are kept",
			req: &AnswerRequest{
				UserState: json.RawMessage(`{"b":1.0,"2":1e2}`),
				DPT:       json.RawMessage(`5.50`),
				Question:  "hi",
			},
			want: "User context JSON:\n{\n  \"user_state\": {\n    \"b\": 1.0,\n    \"2\": 1e2\n  },\n  \"dpt\": 5.50,\n  \"question\": \"hi\"\n}",
		},
		{
			name: "html characters are not escaped",
			req:  &AnswerRequest{Question: "<b> & </b>"},
			want: "User context JSON:\n{\n  \"user_state\": {},\n  \"question\": \"<b> & </b>\"\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := BuildMessages(tt.req)
			require.NoError(t, err)
			require.Len(t, messages, 2)

			assert.Equal(t, Message{Role: RoleSystem, Content: SystemPrompt}, messages[0])
			assert.Equal(t, RoleUser, messages[1].Role)
			assert.Equal(t, tt.want, messages[1].Content)
		})
	}
}

func TestBuildMessagesDeterministic(t *testing.T) {
	req := &AnswerRequest{
		UserState: json.RawMessage(`{"a":1,"b":[1,2]}`),
		DPT:       json.RawMessage(`"3"`),
		Question:  "같은 질문",
	}

	first, err := BuildMessages(req)
	require.NoError(t, err)
	second, err := BuildMessages(req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildMessagesNil(t *testing.T) {
	_, err := BuildMessages(nil)
	assert.Error(t, err)
}

func TestSystemPromptHeadings(t *testing.T) {
	for _, heading := range []string{
		"[한 줄 요약]",
		"[지금 시점에 흔한 범위]",
		"[병원에 문의해야 하는 경우]",
		"[오늘 할 수 있는 행동(안전한 범위)]",
		"[주의]",
	} {
		assert.True(t, strings.Contains(SystemPrompt, heading), heading)
	}
}
