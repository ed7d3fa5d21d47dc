package routing

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	nexusotel "github.com/dativo-io/nexus/internal/otel"
	"github.com/dativo-io/nexus/internal/tenant"
	"github.com/dativo-io/nexus/internal/tools"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/routing")

// Route runs the cascade over the tenant's intent catalog, then applies the
// tenant's risk override and attaches the eligible tools.
func Route(ctx context.Context, message string, cfg *tenant.Config) (*Decision, error) {
	return RouteWith(ctx, DefaultStages, message, cfg)
}

// RouteWith is Route with a custom stage list.
func RouteWith(ctx context.Context, stages []Stage, message string, cfg *tenant.Config) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "routing.route")
	defer span.End()

	if len(cfg.Intents) == 0 {
		span.RecordError(ErrEmptyCatalog)
		return nil, ErrEmptyCatalog
	}

	var d *Decision
	for _, stage := range stages {
		if d = stage(message, cfg.Intents); d != nil {
			break
		}
	}
	if d == nil {
		return nil, ErrEmptyCatalog
	}

	if override, ok := cfg.Tenant.RiskMapping[d.Intent]; ok && override != "" {
		if risk, err := ParseRiskLevel(override); err == nil {
			d.RiskLevel = risk
			d.RequiresConfirmation = risk.NeedsConfirmation()
		} else {
			log.Warn().
				Str("tenant_id", cfg.Tenant.ID).
				Str("intent", d.Intent).
				Str("risk_override", override).
				Msg("routing_risk_override_ignored")
		}
	}

	var declared []string
	if it, ok := cfg.Intent(d.Intent); ok {
		declared = it.Tools
	}
	d.ToolsToLoad = tools.NewRegistry(cfg.Tools).ForIntent(d.Intent, declared)

	span.SetAttributes(
		attribute.String("routing.intent", d.Intent),
		attribute.String("routing.source", string(d.Source)),
		attribute.String("routing.tier", string(d.Tier)),
		attribute.String("routing.risk_level", string(d.RiskLevel)),
		attribute.Float64("routing.confidence", d.Confidence),
	)
	log.Debug().
		Func(nexusotel.LogTraceFields(ctx)).
		Str("tenant_id", cfg.Tenant.ID).
		Str("intent", d.Intent).
		Str("source", string(d.Source)).
		Float64("confidence", d.Confidence).
		Msg("message_routed")
	return d, nil
}
