package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	nexusotel "github.com/dativo-io/nexus/internal/otel"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/llm")

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint
// (OpenAI itself, a LiteLLM proxy, ...).
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a provider for api.openai.com.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// NormalizeOpenAIBaseURL appends "/v1" to baseURL unless it already ends
// with it. Trailing slashes are dropped.
func NormalizeOpenAIBaseURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(u, "/v1") {
		return u
	}
	return u + "/v1"
}

// NewOpenAIProviderWithBaseURL creates a provider for a compatible endpoint.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = NormalizeOpenAIBaseURL(baseURL)
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

func newOpenAIProviderWithClient(client *openai.Client) *OpenAIProvider {
	return &OpenAIProvider{client: client}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a chat completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(nexusotel.LLMRequestAttributes("openai", req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api call: %w", ErrEmptyResponse)
	}

	span.SetAttributes(nexusotel.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	span.SetAttributes(nexusotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)))

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}, nil
}

// EstimateCost estimates the cost in USD from a per-1K-token price table.
// Unknown models are priced as gpt-4o.
func (p *OpenAIProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	return estimateCost(model, inputTokens, outputTokens)
}

type pricing struct {
	input  float64
	output float64
}

var prices = map[string]pricing{
	"gpt-4o":        {input: 0.0025, output: 0.01},
	"gpt-4o-mini":   {input: 0.00015, output: 0.0006},
	"gpt-4.1":       {input: 0.002, output: 0.008},
	"gpt-4.1-mini":  {input: 0.0004, output: 0.0016},
	"gpt-3.5-turbo": {input: 0.0005, output: 0.0015},
}

func estimateCost(model string, inputTokens, outputTokens int) float64 {
	pr, ok := prices[model]
	if !ok {
		pr = prices["gpt-4o"]
	}
	return float64(inputTokens)/1000.0*pr.input + float64(outputTokens)/1000.0*pr.output
}
