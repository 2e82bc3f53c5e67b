package processing

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SystemPrompt is sent verbatim as the first message of every request.
const SystemPrompt = `You are an IVF support assistant for people who had embryo transfer.
You must:
- Answer in Korean.
- Use the provided DPT (days past transfer) and embryo_day context.
- Never diagnose or claim certainty.
- Provide balanced, anxiety-reducing guidance.
- If there are red flags (severe pain, heavy bleeding, fever, fainting, severe one-sided pain, shortness of breath), advise contacting a clinic/ER.

Output must follow exactly this format with headings:

[한 줄 요약]
...

[지금 시점에 흔한 범위]
- ...

[병원에 문의해야 하는 경우]
- ...

[오늘 할 수 있는 행동(안전한 범위)]
- ...

[주의]
의료 조언이 아닙니다. 증상이 심하거나 불안하면 병원에 문의하세요.`

// UserMessagePrefix precedes the serialized user context.
const UserMessagePrefix = "User context JSON:\n"

var emptyObject = json.RawMessage("{}")

// BuildMessages returns the system and user messages for req. The output
// depends only on req: the same request always yields the same bytes.
func BuildMessages(req *AnswerRequest) ([]Message, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	userContext, err := serializeContext(req)
	if err != nil {
		return nil, fmt.Errorf("serialize user context: %w", err)
	}

	return []Message{
		{Role: RoleSystem, Content: SystemPrompt},
		{Role: RoleUser, Content: UserMessagePrefix + userContext},
	}, nil
}

// serializeContext renders {user_state, dpt, question} with two-space
// indentation, leaving <, > and & unescaped.
func serializeContext(req *AnswerRequest) (string, error) {
	payload := AnswerRequest{
		UserState: req.UserState,
		DPT:       req.DPT,
		Question:  req.Question,
	}
	if len(payload.UserState) == 0 {
		payload.UserState = emptyObject
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return "", err
	}

	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
