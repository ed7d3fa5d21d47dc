package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// GenAI semantic conventions used on completion spans.
const (
	GenAISystem             = attribute.Key("gen_ai.system")
	GenAIRequestModel       = attribute.Key("gen_ai.request.model")
	GenAIRequestTemperature = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens   = attribute.Key("gen_ai.request.max_tokens")

	GenAIUsageInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens = attribute.Key("gen_ai.usage.output_tokens")

	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
)

// Decision attributes shared by the routing and pipeline spans.
const (
	TenantID        = attribute.Key("nexus.tenant_id")
	RequestID       = attribute.Key("nexus.request_id")
	DecisionIntent  = attribute.Key("nexus.decision.intent")
	DecisionTier    = attribute.Key("nexus.decision.tier")
	DecisionRisk    = attribute.Key("nexus.decision.risk_level")
	DecisionSource  = attribute.Key("nexus.decision.source")
	DecisionConf    = attribute.Key("nexus.decision.confidence")
	GroundingPassed = attribute.Key("nexus.grounding.passed")
)

// LLMRequestAttributes creates standard attributes for completion requests.
func LLMRequestAttributes(system, model string, temperature float64, maxTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIRequestModel.String(model),
		GenAIRequestTemperature.Float64(temperature),
		GenAIRequestMaxTokens.Int(maxTokens),
	}
}

// LLMUsageAttributes creates attributes for token usage.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAIUsageInputTokens.Int(inputTokens),
		GenAIUsageOutputTokens.Int(outputTokens),
	}
}

// DecisionAttributes describes a routing decision.
func DecisionAttributes(intent, tier, risk, source string, confidence float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		DecisionIntent.String(intent),
		DecisionTier.String(tier),
		DecisionRisk.String(risk),
		DecisionSource.String(source),
		DecisionConf.Float64(confidence),
	}
}
