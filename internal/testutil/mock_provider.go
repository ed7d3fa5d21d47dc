package testutil

import (
	"context"
	"sync"

	"github.com/dativo-io/nexus/internal/llm"
)

// ScriptedProvider implements llm.Provider with a sequence of canned
// replies. Call N gets Replies[N], or the last reply once exhausted. Err,
// when set, is returned by every call.
type ScriptedProvider struct {
	Replies     []string
	Err         error
	CostPerCall float64

	mu       sync.Mutex
	requests []*llm.Request
}

// Name returns "scripted".
func (p *ScriptedProvider) Name() string { return "scripted" }

// Generate returns the next reply and records the request.
func (p *ScriptedProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, &cp)
	n := len(p.requests)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply := "mock response"
	if len(p.Replies) > 0 {
		reply = p.Replies[min(n, len(p.Replies))-1]
	}
	return &llm.Response{
		Content:      reply,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// EstimateCost returns CostPerCall.
func (p *ScriptedProvider) EstimateCost(string, int, int) float64 { return p.CostPerCall }

// Requests returns the recorded requests.
func (p *ScriptedProvider) Requests() []*llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.Request(nil), p.requests...)
}
