// Package llmtest provides an in-process OpenAI-compatible reasoning engine for tests.
package llmtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Reply is one scripted response of the mock server.
type Reply struct {
	// Status defaults to 200.
	Status int
	// Content is wrapped in a chat completion envelope when Status is 2xx.
	Content string
	// Raw, when set, is written verbatim instead of an envelope.
	Raw string
	// Delay postpones the response.
	Delay time.Duration
}

// MockServer simulates POST /chat/completions.
type MockServer struct {
	t      testing.TB
	server *httptest.Server

	mu       sync.Mutex
	replies  []Reply
	fallback Reply
	calls    int
	lastBody map[string]any
	lastAuth string
}

// NewMockServer starts a server answering every call with content until scripted otherwise.
func NewMockServer(t testing.TB, content string) *MockServer {
	t.Helper()

	m := &MockServer{t: t, fallback: Reply{Content: content}}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.server.Close)
	return m
}

// Script queues replies consumed in order before the default reply is used again.
func (m *MockServer) Script(replies ...Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

// URL returns the base URL to configure as the engine's base_url.
func (m *MockServer) URL() string {
	return m.server.URL
}

// Calls returns the number of completion requests received.
func (m *MockServer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastBody returns the decoded body of the last request.
func (m *MockServer) LastBody() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBody
}

// LastAuthorization returns the Authorization header of the last request.
func (m *MockServer) LastAuthorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}

	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	m.mu.Lock()
	m.calls++
	m.lastBody = body
	m.lastAuth = r.Header.Get("Authorization")
	reply := m.fallback
	if len(m.replies) > 0 {
		reply = m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if reply.Raw != "" {
		_, _ = io.WriteString(w, reply.Raw)
		return
	}
	if status < 200 || status >= 300 {
		_, _ = fmt.Fprintf(w, `{"error":{"message":"mock status %d"}}`, status)
		return
	}

	envelope := map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": reply.Content},
			"finish_reason": "stop",
		}},
	}
	_ = json.NewEncoder(w).Encode(envelope)
}
