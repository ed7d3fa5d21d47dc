package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// CompletionServer is an OpenAI-compatible chat completions endpoint for
// tests. It answers every POST /v1/chat/completions with Content and
// remembers the last request body.
type CompletionServer struct {
	*httptest.Server

	Content      string
	InputTokens  int
	OutputTokens int
	// Status, when non-zero, is returned instead of a completion.
	Status int

	mu   sync.Mutex
	last map[string]interface{}
}

// NewCompletionServer starts a server closed on test cleanup.
func NewCompletionServer(t *testing.T, content string, inputTokens, outputTokens int) *CompletionServer {
	t.Helper()
	s := &CompletionServer{Content: content, InputTokens: inputTokens, OutputTokens: outputTokens}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// LastRequest returns the decoded body of the last completion request.
func (s *CompletionServer) LastRequest() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *CompletionServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.last = body
	s.mu.Unlock()

	if s.Status != 0 {
		w.WriteHeader(s.Status)
		return
	}
	model, _ := body["model"].(string)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": s.Content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     s.InputTokens,
			"completion_tokens": s.OutputTokens,
			"total_tokens":      s.InputTokens + s.OutputTokens,
		},
	})
}
