package provider

import "encoding/json"

// Message is one entry of the Responses API "input" array.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the outbound Responses API body.
type Request struct {
	Model string    `json:"model"`
	Input []Message `json:"input"`
}

// Response is the upstream reply: its status and raw JSON body. The body is
// guaranteed to be valid JSON; its shape is not checked here.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
