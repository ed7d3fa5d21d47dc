// Package pipeline turns one inbound message into a policy-checked, cited
// answer and one decision record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/nexus/internal/audit"
	"github.com/dativo-io/nexus/internal/budget"
	"github.com/dativo-io/nexus/internal/classifier"
	"github.com/dativo-io/nexus/internal/confidence"
	"github.com/dativo-io/nexus/internal/grounding"
	"github.com/dativo-io/nexus/internal/llm"
	"github.com/dativo-io/nexus/internal/memory"
	"github.com/dativo-io/nexus/internal/orchestration"
	nexusotel "github.com/dativo-io/nexus/internal/otel"
	"github.com/dativo-io/nexus/internal/routing"
	"github.com/dativo-io/nexus/internal/tenant"
	"github.com/dativo-io/nexus/internal/tools"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/pipeline")

// ErrMissingDependency is returned by New for an incomplete Deps.
var ErrMissingDependency = errors.New("pipeline dependency missing")

// Message is one inbound message from a channel adapter.
type Message struct {
	RequestID string            `json:"request_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	SenderID  string            `json:"sender_id"`
	Channel   string            `json:"channel"`
	Text      string            `json:"text"`
	SessionID string            `json:"session_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	// Action is an explicit tool call to run through the guardian.
	Action    *orchestration.Action `json:"action,omitempty"`
	Confirmed bool                  `json:"confirmed,omitempty"`

	Membership *tenant.Membership `json:"-"`
}

// Outcome is the pipeline's answer plus everything decided on the way.
type Outcome struct {
	RequestID         string            `json:"request_id"`
	TenantID          string            `json:"tenant_id"`
	Text              string            `json:"text"`
	Decision          *routing.Decision `json:"decision"`
	Grounding         grounding.Result  `json:"grounding"`
	Confidence        float64           `json:"confidence"`
	ConfidenceLabel   string            `json:"confidence_label"`
	Escalated         bool              `json:"escalated"`
	Alerts            []string          `json:"alerts,omitempty"`
	Model             string            `json:"model"`
	TokensIn          int               `json:"token_in"`
	TokensOut         int               `json:"token_out"`
	CostUSD           float64           `json:"cost_usd"`
	Budget            budget.Status     `json:"budget_status"`
	Fallback          bool              `json:"fallback"`
	Delegated         bool              `json:"delegated"`
	Blocked           bool              `json:"blocked"`
	NeedsConfirmation bool              `json:"needs_confirmation"`
	ToolsCalled       []string          `json:"tools_called"`
	LatencyMS         int64             `json:"latency_ms"`
}

// Deps are the collaborators of a Pipeline. Guardian may be nil when no
// message ever delegates; Clock defaults to time.Now.
type Deps struct {
	Resolver   *tenant.Resolver
	Limiter    *tenant.Limiter
	Turns      memory.TurnStore
	Snippets   memory.SnippetIndex
	Registries *grounding.Registries
	Guardian   orchestration.Reviewer
	Budget     *budget.Governor
	Provider   llm.Provider
	Decisions  audit.Sink
	Events     audit.EventLog
	Redactor   *classifier.Redactor
	Clock      func() time.Time
}

// Pipeline processes messages. It is safe for concurrent use.
type Pipeline struct {
	deps        Deps
	opts        Options
	coordinator *orchestration.Coordinator

	seedMu sync.Mutex
	seeded map[string]uint64
}

// New validates deps and fills option defaults.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Resolver == nil:
		return nil, fmt.Errorf("%w: resolver", ErrMissingDependency)
	case deps.Turns == nil:
		return nil, fmt.Errorf("%w: turn store", ErrMissingDependency)
	case deps.Snippets == nil:
		return nil, fmt.Errorf("%w: snippet index", ErrMissingDependency)
	case deps.Provider == nil:
		return nil, fmt.Errorf("%w: completion provider", ErrMissingDependency)
	case deps.Decisions == nil:
		return nil, fmt.Errorf("%w: decision sink", ErrMissingDependency)
	case deps.Events == nil:
		return nil, fmt.Errorf("%w: event log", ErrMissingDependency)
	}
	if deps.Limiter == nil {
		deps.Limiter = tenant.NewLimiter()
	}
	if deps.Registries == nil {
		deps.Registries = grounding.NewRegistries()
	}
	if deps.Budget == nil {
		deps.Budget = budget.NewGovernor(nil)
	}
	if deps.Redactor == nil {
		r, err := classifier.NewRedactor()
		if err != nil {
			return nil, err
		}
		deps.Redactor = r
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	p := &Pipeline{deps: deps, opts: opts.withDefaults(), seeded: make(map[string]uint64)}
	if deps.Guardian != nil {
		p.coordinator = orchestration.NewCoordinator(deps.Guardian, nil, p.runSpecialist)
	}
	return p, nil
}

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// Process runs msg through the whole pipeline. Tenant, identifier, rate
// limit and empty-catalog errors are returned; completion failures are
// absorbed into a fallback answer.
func (p *Pipeline) Process(ctx context.Context, msg Message) (*Outcome, error) {
	start := p.deps.Clock()
	if msg.RequestID == "" {
		msg.RequestID = uuid.New().String()
	}
	if msg.Channel == "" {
		msg.Channel = tenant.DefaultChannel
	}

	ctx, span := tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(nexusotel.RequestID.String(msg.RequestID)))
	defer span.End()

	out, err := p.process(ctx, msg, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).
			Func(nexusotel.LogTraceFields(ctx)).
			Str("request_id", msg.RequestID).
			Str("tenant_id", msg.TenantID).
			Msg("message_rejected")
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) process(ctx context.Context, msg Message, start time.Time) (*Outcome, error) {
	tctx, err := p.deps.Resolver.LoadContext(ctx, msg.Membership, msg.TenantID, msg.Metadata)
	if err != nil {
		return nil, err
	}
	cfg := tctx.Config
	tenantID := tctx.TenantID
	trace.SpanFromContext(ctx).SetAttributes(nexusotel.TenantID.String(tenantID))

	if err := p.deps.Limiter.Allow(cfg.Tenant); err != nil {
		return nil, err
	}

	reg := p.deps.Registries.Rebuild(tenantID, knowledgeIDs(cfg))
	if err := p.seedSnippets(ctx, tenantID, cfg.Knowledge); err != nil {
		return nil, err
	}

	if err := p.deps.Events.AppendEvent(ctx, audit.Event{
		EventID:   uuid.New().String(),
		TenantID:  tenantID,
		SenderID:  msg.SenderID,
		Channel:   msg.Channel,
		Text:      msg.Text,
		CreatedAt: start.UTC(),
	}); err != nil {
		return nil, fmt.Errorf("appending event: %w", err)
	}

	decision, err := routing.Route(ctx, msg.Text, cfg)
	if err != nil {
		return nil, err
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = tenantID + ":" + msg.Channel + ":" + msg.SenderID
	}
	history, err := p.deps.Turns.Turns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}
	// Everything that can fail runs before the user turn is appended; from
	// there on the request always ends with an assistant turn.
	snippets, err := p.deps.Snippets.Search(ctx, tenantID, msg.Text, p.opts.SnippetTopK)
	if err != nil {
		log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("request_id", msg.RequestID).
			Func(nexusotel.LogTraceFields(ctx)).
			Msg("snippet_search_failed")
		snippets = nil
	}
	pkg := memory.BuildContext(history, memory.Summarize(history, p.opts.SummaryChars), snippets, p.opts.ContextChars)

	if err := p.deps.Turns.Append(ctx, sessionID, memory.Turn{Role: memory.RoleUser, Content: msg.Text}); err != nil {
		return nil, fmt.Errorf("appending user turn: %w", err)
	}

	sel := p.deps.Budget.Select(string(decision.Tier))
	out := &Outcome{
		RequestID:   msg.RequestID,
		TenantID:    tenantID,
		Decision:    decision,
		Model:       sel.Model,
		ToolsCalled: []string{},
	}

	requireCitations := decision.GroundingMode == routing.GroundingStrict
	var answer string
	if p.coordinator != nil && (decision.ShouldDelegate || msg.Action != nil) {
		answer = p.delegate(ctx, msg, cfg, decision, sel, out)
	} else {
		answer = p.complete(ctx, msg, cfg, decision, pkg, sel, out)
	}

	// Refusals, confirmation prompts and completion fallbacks are canned
	// texts and are reported as-is.
	if out.Blocked || out.NeedsConfirmation || out.Fallback {
		out.Text = answer
		out.Grounding = grounding.Validate(answer, reg, false)
	} else {
		out.Text, out.Grounding = grounding.Repair(ctx, answer, reg, p.opts.GroundingRetries, requireCitations)
	}

	if err := p.deps.Turns.Append(context.WithoutCancel(ctx), sessionID,
		memory.Turn{Role: memory.RoleAssistant, Content: out.Text}); err != nil {
		log.Error().Err(err).
			Str("request_id", msg.RequestID).
			Str("session_id", sessionID).
			Msg("assistant_turn_append_failed")
	}

	out.Budget = p.deps.Budget.Track(ctx, tenantID, out.Model, out.TokensIn, out.TokensOut, out.CostUSD)

	groundingScore := 0.0
	if out.Grounding.Passed {
		groundingScore = 1.0
	}
	conf, err := confidence.Combine(
		[]float64{decision.Confidence, groundingScore},
		[]float64{p.opts.RoutingWeight, p.opts.GroundingWeight})
	if err != nil {
		return nil, err
	}
	out.Confidence = conf
	out.ConfidenceLabel = confidence.Label(conf)
	out.Escalated = conf < p.opts.LowConfidenceThreshold
	out.LatencyMS = p.deps.Clock().Sub(start).Milliseconds()
	out.Alerts = evaluateAlerts(out.LatencyMS, p.opts.AlertLatencyMS, conf, p.opts.LowConfidenceThreshold)

	p.record(ctx, msg, tenantID, out, start)

	attrs := metric.WithAttributes(attribute.String("source", string(decision.Source)))
	decisions.Add(ctx, 1, attrs)
	if out.Escalated {
		escalations.Add(ctx, 1, attrs)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		nexusotel.GroundingPassed.Bool(out.Grounding.Passed),
		attribute.Float64("nexus.confidence", conf),
	)
	return out, nil
}

// complete asks the provider for an answer.
func (p *Pipeline) complete(ctx context.Context, msg Message, cfg *tenant.Config, d *routing.Decision,
	pkg memory.Package, sel budget.Selection, out *Outcome) string {
	req := &llm.Request{Model: sel.Model, MaxTokens: sel.MaxTokens}
	req.Messages = append(req.Messages, llm.Message{Role: llm.RoleSystem, Content: BuildSystemPrompt(cfg, d, pkg)})
	for _, t := range pkg.Turns {
		req.Messages = append(req.Messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: msg.Text})

	c := llm.Complete(ctx, p.deps.Provider, req, p.opts.CompletionTimeout, d.Intent, string(d.Tier))
	out.TokensIn = c.Response.InputTokens
	out.TokensOut = c.Response.OutputTokens
	out.CostUSD = c.CostUSD
	out.Fallback = c.Fallback
	if c.Response.Model != "" {
		out.Model = c.Response.Model
	}
	return c.Response.Content
}

type usageKey struct{}

// usage accumulates completion usage of the specialist tasks of one request.
type usage struct {
	mu       sync.Mutex
	in, out  int
	cost     float64
	fallback bool
	model    string
	system   string
}

// delegate hands the message to the coordinator.
func (p *Pipeline) delegate(ctx context.Context, msg Message, cfg *tenant.Config, d *routing.Decision,
	sel budget.Selection, out *Outcome) string {
	u := &usage{model: sel.Model, system: Disclosure(cfg.Tenant.BusinessName)}
	res := p.coordinator.Run(context.WithValue(ctx, usageKey{}, u), orchestration.Request{
		RequestID: msg.RequestID,
		Message:   msg.Text,
		Decision:  d,
		Tools:     tools.NewRegistry(cfg.Tools),
		Action:    msg.Action,
		Confirmed: msg.Confirmed,
		Channel:   msg.Channel,
		Scopes:    cfg.Channels[msg.Channel].Scopes,
	})
	out.Delegated = true
	out.Blocked = res.Blocked
	out.NeedsConfirmation = res.NeedsConfirmation
	if res.ToolsCalled != nil {
		out.ToolsCalled = res.ToolsCalled
	}
	out.TokensIn, out.TokensOut, out.CostUSD = u.in, u.out, u.cost
	// A partial success still answers; only all-fallback output is flagged.
	out.Fallback = u.fallback && res.Text == orchestration.NoResultMessage
	return res.Text
}

// runSpecialist completes one delegated task under the specialist's role.
func (p *Pipeline) runSpecialist(ctx context.Context, s orchestration.Specialist, t orchestration.TaskRequest) (string, error) {
	u, _ := ctx.Value(usageKey{}).(*usage)
	if u == nil {
		u = &usage{model: budget.DefaultModel}
	}
	req := &llm.Request{
		Model: u.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Rolle: " + s.Name + " (" + s.Prompt + "). " + u.system},
			{Role: llm.RoleUser, Content: t.Payload.Text},
		},
		MaxTokens: p.deps.Budget.Select(t.Payload.Tier).MaxTokens,
	}
	c := llm.Complete(ctx, p.deps.Provider, req, p.opts.CompletionTimeout, t.Payload.Intent, t.Payload.Tier)

	u.mu.Lock()
	u.in += c.Response.InputTokens
	u.out += c.Response.OutputTokens
	u.cost += c.CostUSD
	u.fallback = u.fallback || c.Fallback
	u.mu.Unlock()

	if c.Fallback {
		return "", fmt.Errorf("specialist %s: completion unavailable", s.Name)
	}
	return c.Response.Content, nil
}

// record writes the redacted decision record. Sink failures are logged; the
// answer has already been produced.
func (p *Pipeline) record(ctx context.Context, msg Message, tenantID string, out *Outcome, start time.Time) {
	d := out.Decision
	rec := &audit.DecisionRecord{
		RequestID:         msg.RequestID,
		TenantID:          tenantID,
		Channel:           msg.Channel,
		SenderID:          msg.SenderID,
		InputText:         msg.Text,
		RedactedInputText: p.deps.Redactor.Redact(ctx, msg.Text).Text,
		PredictedIntent:   d.Intent,
		Tier:              string(d.Tier),
		RiskLevel:         string(d.RiskLevel),
		Confidence:        out.Confidence,
		Source:            string(d.Source),
		ToolsConsidered:   append([]string{}, d.ToolsToLoad...),
		ToolsCalled:       append([]string{}, out.ToolsCalled...),
		GroundingPassed:   out.Grounding.Passed,
		Citations:         append([]string{}, out.Grounding.Citations...),
		ResponseText:      out.Text,
		LatencyMS:         out.LatencyMS,
		TokenIn:           out.TokensIn,
		TokenOut:          out.TokensOut,
		CostUSD:           out.CostUSD,
		Escalated:         out.Escalated,
		Alerts:            out.Alerts,
		CreatedAt:         start.UTC(),
	}
	if err := p.deps.Decisions.RecordDecision(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).
			Func(nexusotel.LogTraceFields(ctx)).
			Str("request_id", msg.RequestID).
			Str("tenant_id", tenantID).
			Msg("decision_record_failed")
		return
	}
	log.Info().
		Func(nexusotel.LogTraceFields(ctx)).
		Str("request_id", msg.RequestID).
		Str("tenant_id", tenantID).
		Str("intent", d.Intent).
		Str("tier", string(d.Tier)).
		Str("risk_level", string(d.RiskLevel)).
		Str("source", string(d.Source)).
		Float64("confidence", out.Confidence).
		Bool("grounding_passed", out.Grounding.Passed).
		Bool("escalated", out.Escalated).
		Int64("latency_ms", out.LatencyMS).
		Msg("decision_recorded")
}

func knowledgeIDs(cfg *tenant.Config) []string {
	ids := make([]string, 0, len(cfg.Knowledge))
	for _, e := range cfg.Knowledge {
		ids = append(ids, e.ID)
	}
	return ids
}

// seedSnippets loads the tenant's knowledge entries into the snippet index
// whenever they differ from what was last seeded.
func (p *Pipeline) seedSnippets(ctx context.Context, tenantID string, entries []tenant.KBEntry) error {
	h := fnv.New64a()
	for _, e := range entries {
		h.Write([]byte(e.ID))
		h.Write([]byte{0})
		h.Write([]byte(e.Text))
		h.Write([]byte{0})
	}
	sum := h.Sum64()

	p.seedMu.Lock()
	defer p.seedMu.Unlock()
	if prev, ok := p.seeded[tenantID]; ok && prev == sum {
		return nil
	}
	if err := p.deps.Snippets.Reset(ctx, tenantID); err != nil {
		return fmt.Errorf("resetting snippets: %w", err)
	}
	for _, e := range entries {
		if err := p.deps.Snippets.Upsert(ctx, tenantID, e.ID, e.Text); err != nil {
			return fmt.Errorf("seeding snippet %s: %w", e.ID, err)
		}
	}
	p.seeded[tenantID] = sum
	log.Debug().Str("tenant_id", tenantID).Int("entries", len(entries)).Msg("snippets_seeded")
	return nil
}
