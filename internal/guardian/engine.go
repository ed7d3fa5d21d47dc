package guardian

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	nexusotel "github.com/dativo-io/nexus/internal/otel"
	"github.com/dativo-io/nexus/internal/tools"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/guardian")

//go:embed rego/*.rego
var embeddedRego embed.FS

const (
	riskActionsModule = "rego/risk_actions.rego"
	riskActionsQuery  = "data.nexus.guardian.action"
)

// Outcome is the guardian's verdict on one call.
type Outcome string

const (
	OutcomeApproved          Outcome = "approved"
	OutcomeNeedsConfirmation Outcome = "needs_confirmation"
	OutcomeBlocked           Outcome = "blocked"
)

// Verdict is the outcome plus a human-readable reason.
type Verdict struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`
}

// Engine evaluates tool calls against a policy. It is safe for concurrent
// use and immutable once built.
type Engine struct {
	policy   *Policy
	firewall *tools.Firewall
	prepared rego.PreparedEvalQuery
}

// NewEngine prepares the risk-action query for pol.
func NewEngine(ctx context.Context, pol *Policy) (*Engine, error) {
	ctx, span := tracer.Start(ctx, "guardian.engine.new")
	defer span.End()

	content, err := embeddedRego.ReadFile(riskActionsModule)
	if err != nil {
		return nil, fmt.Errorf("reading embedded policy %s: %w", riskActionsModule, err)
	}

	riskActions := make(map[string]interface{}, len(pol.RiskActions))
	for k, v := range pol.RiskActions {
		riskActions[k] = v
	}
	store := inmem.NewFromObject(map[string]interface{}{
		"policy": map[string]interface{}{"risk_actions": riskActions},
	})

	prepared, err := rego.New(
		rego.Query(riskActionsQuery),
		rego.Module(riskActionsModule, string(content)),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("preparing Rego policy %s: %w", riskActionsModule, err)
	}

	return &Engine{policy: pol, firewall: tools.DefaultFirewall, prepared: prepared}, nil
}

// Policy returns the policy the engine was built from.
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Review decides on a call of tool with args at riskLevel. The firewall runs
// first, then the blocked and confirmation command substrings, then the
// policy's risk-level mapping.
func (e *Engine) Review(ctx context.Context, tool string, args map[string]interface{}, riskLevel string, reg *tools.Registry) Verdict {
	ctx, span := tracer.Start(ctx, "guardian.review",
		trace.WithAttributes(
			attribute.String("tool.name", tool),
			attribute.String("risk_level", riskLevel),
		))
	defer span.End()

	v := e.review(ctx, tool, args, riskLevel, reg)
	span.SetAttributes(attribute.String("guardian.outcome", string(v.Outcome)))
	if v.Outcome != OutcomeApproved {
		log.Info().
			Func(nexusotel.LogTraceFields(ctx)).
			Str("tool", tool).
			Str("risk_level", riskLevel).
			Str("outcome", string(v.Outcome)).
			Str("reason", v.Reason).
			Msg("guardian_verdict")
	}
	return v
}

func (e *Engine) review(ctx context.Context, tool string, args map[string]interface{}, riskLevel string, reg *tools.Registry) Verdict {
	if err := e.firewall.ValidateCall(reg, tool, args); err != nil {
		return Verdict{Outcome: OutcomeBlocked, Reason: "firewall rejected tool call: " + err.Error()}
	}

	command := commandText(args)
	if command != "" {
		for _, s := range e.policy.Rules.ShellCommands.Blocked {
			if s != "" && strings.Contains(command, s) {
				return Verdict{Outcome: OutcomeBlocked, Reason: fmt.Sprintf("blocked command pattern %q", s)}
			}
		}
		for _, s := range e.policy.Rules.ShellCommands.RequireConfirmation {
			if s != "" && strings.Contains(command, s) {
				return Verdict{Outcome: OutcomeNeedsConfirmation, Reason: fmt.Sprintf("command pattern %q requires confirmation", s)}
			}
		}
	}

	action, err := e.riskAction(ctx, riskLevel)
	if err != nil {
		return Verdict{Outcome: OutcomeBlocked, Reason: "policy evaluation failed: " + err.Error()}
	}
	switch action {
	case ActionAutoApprove, ActionApprove:
		return Verdict{Outcome: OutcomeApproved, Reason: fmt.Sprintf("risk %s maps to %s", riskLevel, action)}
	case ActionConfirm:
		return Verdict{Outcome: OutcomeNeedsConfirmation, Reason: fmt.Sprintf("risk %s requires confirmation", riskLevel)}
	case ActionBlock:
		return Verdict{Outcome: OutcomeBlocked, Reason: fmt.Sprintf("risk %s is blocked by policy", riskLevel)}
	default:
		return Verdict{Outcome: OutcomeBlocked, Reason: fmt.Sprintf("unknown policy action %q for risk %s", action, riskLevel)}
	}
}

func (e *Engine) riskAction(ctx context.Context, riskLevel string) (string, error) {
	rs, err := e.prepared.Eval(ctx, rego.EvalInput(map[string]interface{}{"risk_level": riskLevel}))
	if err != nil {
		return "", fmt.Errorf("evaluating risk actions: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", fmt.Errorf("risk actions query returned no result")
	}
	action, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("risk action for %q is not a string", riskLevel)
	}
	return action, nil
}

// commandText returns the command argument, from "command" or else "cmd".
func commandText(args map[string]interface{}) string {
	for _, key := range []string{"command", "cmd"} {
		if v, ok := args[key]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return ""
}
