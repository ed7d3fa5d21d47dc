package orchestration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/nexus/internal/guardian"
	"github.com/dativo-io/nexus/internal/routing"
	"github.com/dativo-io/nexus/internal/tenant"
	"github.com/dativo-io/nexus/internal/tools"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusRunning},
		{StatusPending, StatusVetoed},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusFailed},
		{StatusRunning, StatusVetoed},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]Status{
		{StatusRunning, StatusPending},
		{StatusCompleted, StatusRunning},
		{StatusFailed, StatusCompleted},
		{StatusVetoed, StatusPending},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusPending},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestBoard(t *testing.T) {
	b := NewBoard()
	b.Create("r1-t1", "r1", Payload{Text: "a"})
	b.Create("r1-t2", "r1", Payload{Text: "b"})

	_, err := b.Transition("r1-t1", StatusRunning)
	require.NoError(t, err)
	_, err = b.Transition("r1-t1", StatusCompleted)
	require.NoError(t, err)
	_, err = b.Transition("r1-t1", StatusRunning)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = b.Transition("nope", StatusRunning)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	tasks := b.ForRequest("r1")
	require.Len(t, tasks, 2)
	assert.Equal(t, StatusCompleted, tasks[0].Status)
	assert.Equal(t, StatusPending, tasks[1].Status)

	b.Forget("r1")
	assert.Empty(t, b.ForRequest("r1"))
}

func TestDecompose(t *testing.T) {
	d := &routing.Decision{Intent: "research", Tier: routing.Tier3, ShouldDelegate: true}

	tasks := Decompose("Find the prices AND write a summary and  ", d, "req")
	require.Len(t, tasks, 2)
	assert.Equal(t, "req-t1", tasks[0].TaskID)
	assert.Equal(t, "Find the prices", tasks[0].Payload.Text)
	assert.Equal(t, "req-t2", tasks[1].TaskID)
	assert.Equal(t, "write a summary", tasks[1].Payload.Text)
	assert.Equal(t, "tier_3", tasks[1].Payload.Tier)

	d.ShouldDelegate = false
	tasks = Decompose("Find the prices and write a summary", d, "req")
	require.Len(t, tasks, 1)
	assert.Equal(t, "Find the prices and write a summary", tasks[0].Payload.Text)

	d.ShouldDelegate = true
	tasks = Decompose("Android builds", d, "req")
	require.Len(t, tasks, 1, "connective must be a separate word")
}

func TestAssemble(t *testing.T) {
	assert.Equal(t, "a\nc", Assemble([]TaskResult{
		{Text: "a", Success: true},
		{Text: "b", Success: false},
		{Text: "", Success: true},
		{Text: "c", Success: true},
	}))
	assert.Equal(t, NoResultMessage, Assemble(nil))
	assert.Equal(t, NoResultMessage, Assemble([]TaskResult{{Text: "x"}}))
}

func TestEligibleTool(t *testing.T) {
	s := DefaultSpecialists()[1]
	tool, ok := s.EligibleTool([]string{"kb_search", "terminal", "github"})
	assert.True(t, ok)
	assert.Equal(t, "github", tool)
	_, ok = s.EligibleTool([]string{"kb_search"})
	assert.False(t, ok)
}

type stubReviewer struct {
	byTool map[string]guardian.Outcome
	calls  []string
}

func (s *stubReviewer) Review(_ context.Context, tool string, _ map[string]interface{}, _ string, _ *tools.Registry) guardian.Verdict {
	s.calls = append(s.calls, tool)
	out, ok := s.byTool[tool]
	if !ok {
		out = guardian.OutcomeApproved
	}
	return guardian.Verdict{Outcome: out, Reason: "stub"}
}

func echoHandler(_ context.Context, s Specialist, t TaskRequest) (string, error) {
	return s.Name + ": " + t.Payload.Text, nil
}

func delegated(tools ...string) *routing.Decision {
	return &routing.Decision{Intent: "project", Tier: routing.Tier3, RiskLevel: routing.RiskMedium, ShouldDelegate: true, ToolsToLoad: tools}
}

func TestCoordinator_RoundRobinDispatch(t *testing.T) {
	c := NewCoordinator(&stubReviewer{}, nil, echoHandler)
	res := c.Run(context.Background(), Request{
		RequestID: "r1",
		Message:   "one and two and three and four and five",
		Decision:  delegated(),
	})

	assert.Equal(t, "research: one\ncoder: two\nwriter: three\nops: four\nresearch: five", res.Text)
	require.Len(t, res.Tasks, 5)
	for _, task := range res.Tasks {
		assert.Equal(t, StatusCompleted, task.Status)
	}
	assert.False(t, res.Blocked)
}

func TestCoordinator_BlockedActionRefuses(t *testing.T) {
	rv := &stubReviewer{byTool: map[string]guardian.Outcome{"terminal": guardian.OutcomeBlocked}}
	c := NewCoordinator(rv, nil, echoHandler)
	res := c.Run(context.Background(), Request{
		RequestID: "r1",
		Message:   "clean up",
		Decision:  delegated(),
		Action:    &Action{Tool: "terminal", Args: map[string]interface{}{"command": "rm -rf /"}},
	})
	assert.True(t, res.Blocked)
	assert.Equal(t, RefusalMessage, res.Text)
	assert.Empty(t, res.Tasks)
}

func TestCoordinator_ActionNeedsConfirmation(t *testing.T) {
	rv := &stubReviewer{byTool: map[string]guardian.Outcome{"terminal": guardian.OutcomeNeedsConfirmation}}
	c := NewCoordinator(rv, nil, echoHandler)
	req := Request{
		RequestID: "r1",
		Message:   "deploy",
		Decision:  delegated(),
		Action:    &Action{Tool: "terminal", Args: map[string]interface{}{"command": "git push"}},
	}

	res := c.Run(context.Background(), req)
	assert.True(t, res.NeedsConfirmation)
	assert.Equal(t, ConfirmationMessage, res.Text)

	req.Confirmed = true
	res = c.Run(context.Background(), req)
	assert.False(t, res.NeedsConfirmation)
	assert.Equal(t, "research: deploy", res.Text)
	assert.Equal(t, []string{"terminal"}, res.ToolsCalled)
}

func TestCoordinator_VetoesTaskWithRefusedTool(t *testing.T) {
	rv := &stubReviewer{byTool: map[string]guardian.Outcome{"github": guardian.OutcomeBlocked}}
	c := NewCoordinator(rv, nil, echoHandler)
	res := c.Run(context.Background(), Request{
		RequestID: "r1",
		Message:   "research it and fix the bug",
		Decision:  delegated("github", "knowledge_base"),
	})

	assert.Equal(t, "research: research it", res.Text)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, StatusCompleted, res.Tasks[0].Status)
	assert.Equal(t, StatusVetoed, res.Tasks[1].Status)
	assert.True(t, res.Blocked)
	assert.Equal(t, []string{"knowledge_base", "github"}, rv.calls)
}

func TestCoordinator_AllVetoedOrFailed(t *testing.T) {
	rv := &stubReviewer{byTool: map[string]guardian.Outcome{"knowledge_base": guardian.OutcomeBlocked}}
	c := NewCoordinator(rv, nil, echoHandler)
	res := c.Run(context.Background(), Request{RequestID: "r1", Message: "look it up", Decision: delegated("knowledge_base")})
	assert.Equal(t, RefusalMessage, res.Text)

	failing := func(context.Context, Specialist, TaskRequest) (string, error) { return "", errors.New("boom") }
	c = NewCoordinator(&stubReviewer{}, nil, failing)
	res = c.Run(context.Background(), Request{RequestID: "r2", Message: "a and b", Decision: delegated()})
	assert.Equal(t, NoResultMessage, res.Text)
	for _, task := range res.Tasks {
		assert.Equal(t, StatusFailed, task.Status)
	}
}

func TestCoordinator_WithGuardianEngine(t *testing.T) {
	eng, err := guardian.NewEngine(context.Background(), guardian.DefaultPolicy())
	require.NoError(t, err)
	reg := tools.NewRegistry(tenant.ToolsConfig{Tools: tenant.Tools{{Name: "terminal"}}})

	c := NewCoordinator(eng, nil, echoHandler)
	res := c.Run(context.Background(), Request{
		RequestID: "r1",
		Message:   "wipe the disk",
		Decision:  delegated(),
		Tools:     reg,
		Action:    &Action{Tool: "terminal", Args: map[string]interface{}{"command": "sudo mkfs.ext4 /dev/sda1"}},
	})
	assert.Equal(t, RefusalMessage, res.Text)
	assert.True(t, strings.Contains(res.Verdicts[0].Reason, "mkfs"))
}

func TestCoordinator_RefusesToolOutsideChannelOrScope(t *testing.T) {
	reg := tools.NewRegistry(tenant.ToolsConfig{Tools: tenant.Tools{
		{Name: "terminal", Scopes: []string{"admin"}, AllowedChannels: []string{"web"}},
	}})
	action := &Action{Tool: "terminal", Args: map[string]interface{}{"command": "uptime"}}

	tests := []struct {
		name    string
		channel string
		scopes  []string
		blocked bool
		reason  string
	}{
		{name: "wrong channel", channel: "whatsapp", scopes: []string{"admin"}, blocked: true, reason: "not allowed on channel"},
		{name: "missing scope", channel: "web", scopes: []string{"read"}, blocked: true, reason: "missing tool scope"},
		{name: "permitted", channel: "web", scopes: []string{"read", "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv := &stubReviewer{}
			c := NewCoordinator(rv, nil, echoHandler)
			res := c.Run(context.Background(), Request{
				RequestID: "r1",
				Message:   "check it",
				Decision:  delegated(),
				Tools:     reg,
				Action:    action,
				Channel:   tt.channel,
				Scopes:    tt.scopes,
			})
			assert.Equal(t, tt.blocked, res.Blocked)
			if tt.blocked {
				assert.Equal(t, RefusalMessage, res.Text)
				assert.Contains(t, res.Verdicts[0].Reason, tt.reason)
				assert.Empty(t, rv.calls)
				return
			}
			assert.Equal(t, []string{"terminal"}, rv.calls)
			assert.Equal(t, "research: check it", res.Text)
		})
	}
}

func TestCoordinator_HighRiskNeedsConfirmationAfterApproval(t *testing.T) {
	reg := tools.NewRegistry(tenant.ToolsConfig{Tools: tenant.Tools{{Name: "terminal"}}})
	c := NewCoordinator(&stubReviewer{}, nil, echoHandler)
	req := Request{
		RequestID: "r1",
		Message:   "restart",
		Decision:  &routing.Decision{Intent: "ops", Tier: routing.Tier3, RiskLevel: routing.RiskHigh, ShouldDelegate: true},
		Tools:     reg,
		Action:    &Action{Tool: "terminal", Args: map[string]interface{}{"command": "systemctl restart app"}},
	}

	res := c.Run(context.Background(), req)
	assert.True(t, res.NeedsConfirmation)
	assert.Equal(t, ConfirmationMessage, res.Text)

	req.Confirmed = true
	res = c.Run(context.Background(), req)
	assert.False(t, res.NeedsConfirmation)
	assert.Equal(t, "research: restart", res.Text)
}

func TestCoordinator_TrimsToolTaskOutput(t *testing.T) {
	reg := tools.NewRegistry(tenant.ToolsConfig{
		Tools:  tenant.Tools{{Name: "knowledge_base", Trim: tenant.TrimRule{MaxBytes: 8}}},
		Global: tenant.ToolsGlobal{MaxResultBytes: 4096},
	})
	long := func(context.Context, Specialist, TaskRequest) (string, error) {
		return "abcdefghijklmnop", nil
	}
	c := NewCoordinator(&stubReviewer{}, nil, long)
	res := c.Run(context.Background(), Request{
		RequestID: "r1",
		Message:   "look it up and write it down",
		Decision:  delegated("knowledge_base"),
		Tools:     reg,
	})

	require.Len(t, res.Results, 2)
	// research uses knowledge_base; coder has no loaded tool.
	assert.Equal(t, "abcdefgh", res.Results[0].Text)
	assert.Equal(t, "abcdefghijklmnop", res.Results[1].Text)
}
