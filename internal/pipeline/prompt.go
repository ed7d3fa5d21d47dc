package pipeline

import (
	"strings"

	"github.com/dativo-io/nexus/internal/memory"
	"github.com/dativo-io/nexus/internal/routing"
	"github.com/dativo-io/nexus/internal/tenant"
)

const defaultTone = "freundlich"

// Disclosure is the AI-assistant notice appended to every system prompt
// unless the tenant's prompt template overrides it.
func Disclosure(businessName string) string {
	return "Hinweis: Du schreibst mit dem KI-Assistenten von " + businessName + "."
}

// BuildSystemPrompt renders the tenant's prompt template with the routing
// decision and the trimmed context. Knowledge snippets are listed one per
// line as "- [ID] text".
func BuildSystemPrompt(cfg *tenant.Config, d *routing.Decision, pkg memory.Package) string {
	t := cfg.Tenant
	style := cfg.Prompt.Style
	tone := style.Tone
	if tone == "" {
		tone = defaultTone
	}
	language := style.Language
	if language == "" {
		language = t.Language
	}
	toolList := "none"
	if len(d.ToolsToLoad) > 0 {
		toolList = strings.Join(d.ToolsToLoad, ", ")
	}

	var b strings.Builder
	if cfg.Prompt.Preamble != "" {
		b.WriteString(strings.TrimSpace(cfg.Prompt.Preamble))
		b.WriteString("\n")
	} else {
		b.WriteString("Du bist der Assistent von " + t.BusinessName + ". Du handelst im Auftrag des Unternehmens.\n")
	}
	b.WriteString("Tenant: " + t.BusinessName + ". Language: " + language + ". Tone: " + tone + ".\n")
	b.WriteString("Intent: " + d.Intent + ". Grounding mode: " + d.GroundingMode + ". Available tools: " + toolList + ".\n")
	if d.GroundingMode == routing.GroundingStrict {
		b.WriteString("Every factual statement must cite a knowledge entry as [ID].\n")
	}
	if pkg.Summary != "" {
		b.WriteString("\nConversation summary: " + pkg.Summary + "\n")
	}
	if len(pkg.Snippets) > 0 {
		b.WriteString("\nWissen:\n")
		for _, s := range pkg.Snippets {
			b.WriteString("- [" + s.ID + "] " + s.Text + "\n")
		}
	}
	b.WriteString("\n")
	if cfg.Prompt.Disclosure != "" {
		b.WriteString(cfg.Prompt.Disclosure)
	} else {
		b.WriteString(Disclosure(t.BusinessName))
	}
	return b.String()
}
