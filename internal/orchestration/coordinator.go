package orchestration

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/nexus/internal/guardian"
	nexusotel "github.com/dativo-io/nexus/internal/otel"
	"github.com/dativo-io/nexus/internal/routing"
	"github.com/dativo-io/nexus/internal/tools"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/orchestration")

// Reviewer is the guardian check applied before any tool runs.
type Reviewer interface {
	Review(ctx context.Context, tool string, args map[string]interface{}, riskLevel string, reg *tools.Registry) guardian.Verdict
}

// Handler produces a specialist's text for one task.
type Handler func(ctx context.Context, s Specialist, t TaskRequest) (string, error)

// Action is an explicit tool call requested alongside the message.
type Action struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// Request is one delegated message.
type Request struct {
	RequestID string
	Message   string
	Decision  *routing.Decision
	Tools     *tools.Registry
	Action    *Action
	Confirmed bool
	// Channel is where the message arrived; Scopes are what it grants.
	Channel string
	Scopes  []string
}

// Result is the coordinator's answer and what happened on the way.
type Result struct {
	Text              string             `json:"text"`
	Tasks             []Task             `json:"tasks"`
	Results           []TaskResult       `json:"results"`
	Verdicts          []guardian.Verdict `json:"verdicts,omitempty"`
	ToolsCalled       []string           `json:"tools_called,omitempty"`
	Blocked           bool               `json:"blocked"`
	NeedsConfirmation bool               `json:"needs_confirmation"`
}

// Coordinator runs delegated requests.
type Coordinator struct {
	guardian    Reviewer
	specialists []Specialist
	handler     Handler
	board       *Board
}

// NewCoordinator creates a coordinator. An empty specialist list selects
// DefaultSpecialists.
func NewCoordinator(g Reviewer, specialists []Specialist, h Handler) *Coordinator {
	if len(specialists) == 0 {
		specialists = DefaultSpecialists()
	}
	return &Coordinator{guardian: g, specialists: specialists, handler: h, board: NewBoard()}
}

// Board exposes the task board.
func (c *Coordinator) Board() *Board {
	return c.board
}

// Run reviews the explicit action, decomposes the message, and dispatches
// each task round-robin. A blocked action ends the request with
// RefusalMessage; an unconfirmed action needing confirmation ends it with
// ConfirmationMessage. Tasks whose eligible tool is refused are vetoed, and
// a task that used a tool has its output trimmed like a tool result.
func (c *Coordinator) Run(ctx context.Context, req Request) Result {
	ctx, span := tracer.Start(ctx, "orchestration.run",
		trace.WithAttributes(attribute.String("request_id", req.RequestID)))
	defer span.End()
	defer c.board.Forget(req.RequestID)

	risk := string(req.Decision.RiskLevel)
	var res Result

	if req.Action != nil {
		v := c.review(ctx, req, req.Action.Tool, req.Action.Args, risk)
		res.Verdicts = append(res.Verdicts, v)
		switch {
		case v.Outcome == guardian.OutcomeBlocked:
			res.Blocked = true
			res.Text = RefusalMessage
			return res
		case v.Outcome == guardian.OutcomeNeedsConfirmation && !req.Confirmed:
			res.NeedsConfirmation = true
			res.Text = ConfirmationMessage
			return res
		}
		res.ToolsCalled = append(res.ToolsCalled, req.Action.Tool)
	}

	for i, tr := range Decompose(req.Message, req.Decision, req.RequestID) {
		spec := c.specialists[i%len(c.specialists)]
		c.board.Create(tr.TaskID, req.RequestID, tr.Payload)

		tool, usesTool := spec.EligibleTool(req.Decision.ToolsToLoad)
		if usesTool {
			v := c.review(ctx, req, tool, map[string]interface{}{"text": tr.Payload.Text}, risk)
			res.Verdicts = append(res.Verdicts, v)
			vetoed := false
			switch {
			case v.Outcome == guardian.OutcomeBlocked:
				res.Blocked = true
				vetoed = true
			case v.Outcome == guardian.OutcomeNeedsConfirmation && !req.Confirmed:
				res.NeedsConfirmation = true
				vetoed = true
			}
			if vetoed {
				c.transition(tr.TaskID, StatusVetoed)
				res.Results = append(res.Results, TaskResult{TaskID: tr.TaskID, Specialist: spec.Name})
				continue
			}
			res.ToolsCalled = append(res.ToolsCalled, tool)
		}

		c.transition(tr.TaskID, StatusRunning)
		text, err := c.handler(ctx, spec, tr)
		if err != nil {
			log.Warn().Err(err).
				Str("request_id", req.RequestID).
				Str("task_id", tr.TaskID).
				Str("specialist", spec.Name).
				Msg("specialist_task_failed")
			c.transition(tr.TaskID, StatusFailed)
			res.Results = append(res.Results, TaskResult{TaskID: tr.TaskID, Specialist: spec.Name})
			continue
		}
		if usesTool && req.Tools != nil {
			text = req.Tools.TrimText(tool, text)
		}
		c.transition(tr.TaskID, StatusCompleted)
		res.Results = append(res.Results, TaskResult{TaskID: tr.TaskID, Specialist: spec.Name, Text: text, Success: true})
	}

	res.Tasks = c.board.ForRequest(req.RequestID)
	res.Text = Assemble(res.Results)
	if res.Text == NoResultMessage {
		switch {
		case res.NeedsConfirmation:
			res.Text = ConfirmationMessage
		case res.Blocked:
			res.Text = RefusalMessage
		}
	}
	span.SetAttributes(
		attribute.Int("orchestration.tasks", len(res.Tasks)),
		attribute.Bool("orchestration.blocked", res.Blocked),
	)
	return res
}

// review refuses tools the channel may not use or the caller lacks scopes
// for, then asks the guardian. An approved high-risk call still needs
// confirmation unless the tenant turned that off.
func (c *Coordinator) review(ctx context.Context, req Request, tool string, args map[string]interface{}, risk string) guardian.Verdict {
	if req.Tools == nil {
		return c.guardian.Review(ctx, tool, args, risk, nil)
	}
	if err := req.Tools.Permit(tool, req.Channel, req.Scopes); err != nil {
		log.Info().
			Str("request_id", req.RequestID).
			Str("tool", tool).
			Str("channel", req.Channel).
			Err(err).
			Msg("tool_not_permitted")
		return guardian.Verdict{Outcome: guardian.OutcomeBlocked, Reason: err.Error()}
	}
	v := c.guardian.Review(ctx, tool, args, risk, req.Tools)
	if v.Outcome == guardian.OutcomeApproved && !req.Tools.CheckConfirmation(req.Confirmed, risk) {
		return guardian.Verdict{Outcome: guardian.OutcomeNeedsConfirmation, Reason: "high risk tool call requires confirmation"}
	}
	return v
}

func (c *Coordinator) transition(taskID string, to Status) {
	if _, err := c.board.Transition(taskID, to); err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("task_transition_rejected")
	}
}
