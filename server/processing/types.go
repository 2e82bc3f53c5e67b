// Package processing implements the request-to-answer pipeline: prompt
// construction, the upstream call and answer extraction.
package processing

import "encoding/json"

// Role values accepted by the completion service.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// AnswerRequest is a validated client request. UserState and DPT are kept as
// raw JSON so that they reach the prompt exactly as the client sent them.
type AnswerRequest struct {
	// UserState is arbitrary client context; absent or falsy becomes {}
	UserState json.RawMessage `json:"user_state"`

	// DPT is "days past transfer". It is not type checked and is omitted
	// from the prompt when the client did not send it.
	DPT json.RawMessage `json:"dpt,omitempty"`

	// Question is the user's question, never empty after validation
	Question string `json:"question" validate:"required"`
}

// Message is a single prompt message. Messages are built per request and
// never shared.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer is the successful response body.
type Answer struct {
	Answer string `json:"answer"`
}
