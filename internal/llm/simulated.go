package llm

import (
	"context"
	"regexp"
	"strings"
)

// SimulatedReply is answered when no knowledge snippet is in the prompt.
const SimulatedReply = "Alles klar, ich kümmere mich darum."

var snippetLine = regexp.MustCompile(`(?m)^- \[(KB-[A-Z0-9_]+-[A-Z0-9_-]+)\] (.+)$`)

// SimulatedProvider answers deterministically without network access. When
// the system prompt lists knowledge snippets as "- [ID] text" lines it
// answers with the first snippet and its citation; otherwise it answers
// SimulatedReply. Token counts are whitespace word counts.
type SimulatedProvider struct{}

// NewSimulatedProvider returns the offline provider.
func NewSimulatedProvider() *SimulatedProvider { return &SimulatedProvider{} }

// Name returns the provider identifier.
func (*SimulatedProvider) Name() string { return "simulated" }

// Generate builds the deterministic reply.
func (*SimulatedProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply := SimulatedReply
	in := 0
	for _, m := range req.Messages {
		in += len(strings.Fields(m.Content))
		if m.Role != RoleSystem || reply != SimulatedReply {
			continue
		}
		if sm := snippetLine.FindStringSubmatch(m.Content); sm != nil {
			reply = strings.TrimSpace(sm[2]) + " [" + sm[1] + "]"
		}
	}
	return &Response{
		Content:      reply,
		FinishReason: "stop",
		InputTokens:  in,
		OutputTokens: len(strings.Fields(reply)),
		Model:        req.Model,
	}, nil
}

// EstimateCost prices simulated traffic with the same table as OpenAI so
// budget tracking behaves identically offline.
func (*SimulatedProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	return estimateCost(model, inputTokens, outputTokens)
}
