// Package tools selects the tools a tenant may use, screens tool calls
// before they run, and trims tool results before they reach the model.
package tools

import (
	"github.com/dativo-io/nexus/internal/tenant"
)

// CoreTools are made available to every tenant unless the tenant's tools
// configuration mentions them explicitly (enabled or not).
var CoreTools = []string{"human_escalation", "kb_search"}

// Registry is a read-only view over a tenant's merged tools configuration.
type Registry struct {
	cfg   tenant.ToolsConfig
	index map[string]tenant.Tool
}

// NewRegistry builds a registry from a merged tools configuration.
func NewRegistry(cfg tenant.ToolsConfig) *Registry {
	idx := make(map[string]tenant.Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		idx[t.Name] = t
	}
	return &Registry{cfg: cfg, index: idx}
}

// Config returns the underlying configuration.
func (r *Registry) Config() tenant.ToolsConfig {
	return r.cfg
}

// Lookup returns the configured tool by name. Implicit core tools are not
// returned here.
func (r *Registry) Lookup(name string) (tenant.Tool, bool) {
	t, ok := r.index[name]
	return t, ok
}

// EnabledTools returns enabled tools in declaration order followed by any
// implicit core tools.
func (r *Registry) EnabledTools() []tenant.Tool {
	var out []tenant.Tool
	for _, t := range r.cfg.Tools {
		if t.IsEnabled() {
			out = append(out, t)
		}
	}
	for _, name := range CoreTools {
		if _, configured := r.index[name]; !configured {
			out = append(out, tenant.Tool{Name: name, Description: "Implicit core tool: " + name})
		}
	}
	return out
}

// IsEnabled reports whether name is an enabled tool, core tools included.
func (r *Registry) IsEnabled(name string) bool {
	for _, t := range r.EnabledTools() {
		if t.Name == name {
			return true
		}
	}
	return false
}

// ForIntent returns the names of the enabled tools for intent. An
// intent_tools entry restricts the selection (unknown or disabled names are
// dropped); otherwise declared, when non-empty, plays that role; otherwise
// every enabled tool is returned.
func (r *Registry) ForIntent(intent string, declared []string) []string {
	enabled := r.EnabledTools()
	wanted := r.cfg.IntentTools[intent]
	if len(wanted) == 0 {
		wanted = declared
	}

	var out []string
	if len(wanted) == 0 {
		for _, t := range enabled {
			out = append(out, t.Name)
		}
		return out
	}

	set := make(map[string]bool, len(enabled))
	for _, t := range enabled {
		set[t.Name] = true
	}
	for _, name := range wanted {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}
