package processing

import (
	"strings"

	"github.com/buger/jsonparser"
)

// FallbackAnswer is returned when the upstream body carries no usable text.
const FallbackAnswer = "답변을 생성하지 못했어요. 질문을 조금 더 구체적으로 적어주세요."

// ExtractAnswer pulls the answer text out of an upstream response body.
//
// A non-blank top-level "output_text" string wins. Otherwise every
// output[].content[].text string is collected in order and joined with
// newlines. When neither yields text, FallbackAnswer is returned and
// fallback is true. Any body, including invalid JSON, produces an answer.
func ExtractAnswer(body []byte) (answer string, fallback bool) {
	defer func() {
		if r := recover(); r != nil {
			answer, fallback = FallbackAnswer, true
		}
	}()

	if text, err := jsonparser.GetString(body, "output_text"); err == nil && !isBlank(text) {
		return text, false
	}

	if joined := joinOutputText(body); !isBlank(joined) {
		return joined, false
	}

	return FallbackAnswer, true
}

func joinOutputText(body []byte) string {
	output, dataType, _, err := jsonparser.Get(body, "output")
	if err != nil || dataType != jsonparser.Array {
		return ""
	}

	var texts []string
	_, _ = jsonparser.ArrayEach(output, func(item []byte, itemType jsonparser.ValueType, _ int, err error) {
		if err != nil || itemType != jsonparser.Object {
			return
		}
		content, contentType, _, err := jsonparser.Get(item, "content")
		if err != nil || contentType != jsonparser.Array {
			return
		}
		_, _ = jsonparser.ArrayEach(content, func(part []byte, partType jsonparser.ValueType, _ int, err error) {
			if err != nil || partType != jsonparser.Object {
				return
			}
			text, err := jsonparser.GetString(part, "text")
			if err != nil || text == "" {
				return
			}
			texts = append(texts, text)
		})
	})

	return strings.Join(texts, "\n")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
