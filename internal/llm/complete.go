package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	nexusotel "github.com/dativo-io/nexus/internal/otel"
)

// FallbackText is the canned reply substituted for a failed completion.
func FallbackText(intent, tier string) string {
	return fmt.Sprintf("[fallback intent=%s tier=%s] Ich kann gerade nicht antworten. Bitte versuche es gleich noch einmal.", intent, tier)
}

// Completion is the result of Complete.
type Completion struct {
	Response *Response
	CostUSD  float64
	Fallback bool
}

// Complete calls p under timeout (TimeoutLLMCall when zero). Any failure
// (timeout, transport, non-2xx, malformed or empty payload) is absorbed:
// the returned completion carries FallbackText and Fallback=true, with zero
// output tokens and zero cost.
func Complete(ctx context.Context, p Provider, req *Request, timeout time.Duration, intent, tier string) Completion {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()

	if timeout <= 0 {
		timeout = TimeoutLLMCall
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		resp *Response
		err  error
	)
	if p == nil {
		err = ErrProviderNotAvailable
	} else {
		resp, err = p.Generate(callCtx, req)
		if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
			err = ErrEmptyResponse
		}
	}

	if err != nil {
		reason := "transport"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("llm.fallback", true), attribute.String("llm.fallback_reason", reason))
		recordFallback(ctx, reason)
		log.Warn().Err(err).
			Func(nexusotel.LogTraceFields(ctx)).
			Str("intent", intent).
			Str("tier", tier).
			Str("reason", reason).
			Msg("completion_fallback")
		return Completion{
			Response: &Response{
				Content:      FallbackText(intent, tier),
				FinishReason: "fallback",
				InputTokens:  estimateTokens(req),
				Model:        req.Model,
			},
			Fallback: true,
		}
	}

	cost := p.EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens)
	RecordCostMetrics(ctx, cost, p.Name(), resp.Model)
	return Completion{Response: resp, CostUSD: cost}
}

func estimateTokens(req *Request) int {
	n := 0
	for _, m := range req.Messages {
		n += len(strings.Fields(m.Content))
	}
	return n
}
