// Package mocks provides test doubles for the upstream completion service
// and the configuration watcher.
package mocks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/ivfcopilot/copilot/server/provider"
)

// MockUpstream implements processing.Upstream without any network traffic.
//
// Example usage:
//
//	up := NewMockUpstream(func(ctx context.Context, in []provider.Message) (*provider.Response, error) {
//	    return mocks.JSONResponse(200, `{"output_text":"ok"}`), nil
//	})
type MockUpstream struct {
	CompleteFunc func(context.Context, []provider.Message) (*provider.Response, error)

	mu    sync.Mutex
	calls [][]provider.Message
}

// NewMockUpstream creates a MockUpstream. With a nil completeFunc every call
// returns 200 with an empty JSON object.
func NewMockUpstream(completeFunc func(context.Context, []provider.Message) (*provider.Response, error)) *MockUpstream {
	return &MockUpstream{CompleteFunc: completeFunc}
}

// Complete records the input and delegates to CompleteFunc.
func (m *MockUpstream) Complete(ctx context.Context, input []provider.Message) (*provider.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	m.mu.Unlock()

	if m.CompleteFunc == nil {
		return JSONResponse(http.StatusOK, `{}`), nil
	}
	return m.CompleteFunc(ctx, input)
}

// Calls returns the inputs of every Complete call so far.
func (m *MockUpstream) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]provider.Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// JSONResponse builds an upstream response with the given status and body.
func JSONResponse(status int, body string) *provider.Response {
	return &provider.Response{StatusCode: status, Body: json.RawMessage(body)}
}

// UpstreamServer is a fake Responses API endpoint.
type UpstreamServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	requests []provider.Request
	auth     []string
}

// NewUpstreamServer starts a fake endpoint that replies with status and body
// until SetResponse changes them. Close it when done.
func NewUpstreamServer(status int, body string) *UpstreamServer {
	s := &UpstreamServer{status: status, body: body}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *UpstreamServer) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var req provider.Request
	_ = json.Unmarshal(raw, &req)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// SetResponse changes the reply for subsequent requests.
func (s *UpstreamServer) SetResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.body = status, body
}

// Requests returns the decoded request bodies received so far.
func (s *UpstreamServer) Requests() []provider.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]provider.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// AuthHeaders returns the Authorization header of every request received.
func (s *UpstreamServer) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.auth))
	copy(out, s.auth)
	return out
}
