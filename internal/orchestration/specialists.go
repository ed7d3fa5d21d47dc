package orchestration

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dativo-io/nexus/internal/routing"
)

// Fixed user-facing texts.
const (
	NoResultMessage     = "Ich konnte keine Ergebnisse erzeugen."
	RefusalMessage      = "Diese Aktion ist aus Sicherheitsgründen nicht erlaubt."
	ConfirmationMessage = "Diese Aktion muss bestätigt werden. Bitte bestätige, bevor ich fortfahre."
)

// Specialist is a role-scoped handler for one kind of sub-task.
type Specialist struct {
	Name         string   `json:"name"`
	Prompt       string   `json:"prompt"`
	AllowedTools []string `json:"allowed_tools"`
}

// DefaultSpecialists is the dispatch rotation.
func DefaultSpecialists() []Specialist {
	return []Specialist{
		{Name: "research", Prompt: "Research and source synthesis", AllowedTools: []string{"web_search", "knowledge_base"}},
		{Name: "coder", Prompt: "Coding and debugging", AllowedTools: []string{"github", "terminal"}},
		{Name: "writer", Prompt: "Writing and communication", AllowedTools: []string{"knowledge_base"}},
		{Name: "ops", Prompt: "Infrastructure and automations", AllowedTools: []string{"n8n", "terminal"}},
	}
}

// EligibleTool returns the first of the specialist's tools that routing
// loaded for the request.
func (s Specialist) EligibleTool(loaded []string) (string, bool) {
	for _, want := range s.AllowedTools {
		for _, have := range loaded {
			if want == have {
				return want, true
			}
		}
	}
	return "", false
}

var connective = regexp.MustCompile(`(?i) and `)

// TaskRequest is a decomposed unit addressed to a specialist.
type TaskRequest struct {
	TaskID  string
	Payload Payload
}

// Decompose splits message on the connective " and " (any case) when d
// delegates; otherwise the whole message is one task. Task ids are
// "<requestID>-t<n>" counting from 1.
func Decompose(message string, d *routing.Decision, requestID string) []TaskRequest {
	parts := []string{message}
	if d.ShouldDelegate && connective.MatchString(message) {
		parts = parts[:0]
		for _, p := range connective.Split(message, -1) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			parts = []string{message}
		}
	}

	out := make([]TaskRequest, 0, len(parts))
	for i, p := range parts {
		out = append(out, TaskRequest{
			TaskID:  fmt.Sprintf("%s-t%d", requestID, i+1),
			Payload: Payload{Text: p, Intent: d.Intent, Tier: string(d.Tier)},
		})
	}
	return out
}

// TaskResult is a specialist's output for one task.
type TaskResult struct {
	TaskID     string `json:"task_id"`
	Specialist string `json:"specialist"`
	Text       string `json:"text"`
	Success    bool   `json:"success"`
}

// Assemble joins the non-empty texts of successful results with newlines in
// dispatch order, or returns NoResultMessage when there are none.
func Assemble(results []TaskResult) string {
	var lines []string
	for _, r := range results {
		if r.Success && r.Text != "" {
			lines = append(lines, r.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return NoResultMessage
	}
	return text
}
