// Package llm is the boundary to the external text-completion service.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall is the default deadline of one completion call.
const TimeoutLLMCall = 30 * time.Second

// Domain errors for the LLM package.
var (
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrEmptyResponse        = errors.New("completion returned no content")
)

// Roles of chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is implemented by every completion backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "simulated").
	Name() string
	// Generate sends a completion request and returns the reply.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// EstimateCost estimates the cost in USD for the given model and token counts.
	EstimateCost(model string, inputTokens, outputTokens int) float64
}

// Request is an ordered message list plus model and token ceiling.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message represents a chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response represents a completion reply.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}
