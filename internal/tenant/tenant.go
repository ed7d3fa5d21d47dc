// Package tenant resolves per-tenant configuration by layering a tenant's
// overlay files onto the system defaults, and admits requests per tenant.
package tenant

import (
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidID   = errors.New("invalid tenant id")
	ErrNotFound    = errors.New("tenant not found")
	ErrConfig      = errors.New("tenant configuration error")
	ErrRateLimited = errors.New("tenant rate limit exceeded")
)

// Defaults applied to optional identity fields.
const (
	DefaultLanguage = "de"
	DefaultTimezone = "Europe/Berlin"
	DefaultChannel  = "web"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateID rejects identifiers that could escape the tenants directory or
// contain anything beyond letters, digits, '_' and '-'.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Membership ties a channel sender to the tenant that owns the conversation.
type Membership struct {
	SenderID string
	TenantID string
	Channel  string
}

// Tenant is the identity file (tenant.yaml).
type Tenant struct {
	ID             string            `yaml:"tenant_id" json:"tenant_id"`
	BusinessName   string            `yaml:"business_name" json:"business_name"`
	Language       string            `yaml:"language" json:"language"`
	Timezone       string            `yaml:"timezone" json:"timezone"`
	ActiveChannels []string          `yaml:"active_channels" json:"active_channels"`
	RiskMapping    map[string]string `yaml:"risk_mapping,omitempty" json:"risk_mapping,omitempty"` // intent -> risk level
	RateLimit      int               `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`     // requests per second; 0 means no limit
}

// Intent is one entry of the intent catalog, in declaration order.
type Intent struct {
	Name          string   `yaml:"-" json:"name"`
	Keywords      []string `yaml:"keywords" json:"keywords,omitempty"`
	Examples      []string `yaml:"examples" json:"examples,omitempty"`
	DefaultTier   string   `yaml:"default_tier" json:"default_tier,omitempty"`
	RiskLevel     string   `yaml:"risk_level" json:"risk_level,omitempty"`
	Tools         []string `yaml:"tools" json:"tools,omitempty"`
	GroundingMode string   `yaml:"grounding_mode" json:"grounding_mode,omitempty"` // "open" or "strict"
	Delegate      bool     `yaml:"delegate" json:"delegate,omitempty"`
}

// Intents decodes a YAML mapping into a slice that keeps declaration order.
type Intents []Intent

// UnmarshalYAML implements yaml.Unmarshaler.
func (in *Intents) UnmarshalYAML(node *yaml.Node) error {
	return decodeOrdered(node, func(name string, value *yaml.Node) error {
		var it Intent
		if err := value.Decode(&it); err != nil {
			return fmt.Errorf("intent %q: %w", name, err)
		}
		it.Name = name
		*in = append(*in, it)
		return nil
	})
}

// TrimRule bounds the size of a tool result before it reaches the model.
type TrimRule struct {
	TopN           int      `yaml:"top_n" json:"top_n,omitempty"`
	FieldWhitelist []string `yaml:"field_whitelist" json:"field_whitelist,omitempty"`
	MaxBytes       int      `yaml:"max_bytes" json:"max_bytes,omitempty"`
}

// Tool is one entry of the tool catalog, in declaration order.
type Tool struct {
	Name            string   `yaml:"-" json:"name"`
	Enabled         *bool    `yaml:"enabled" json:"enabled,omitempty"`
	Description     string   `yaml:"description" json:"description,omitempty"`
	Scopes          []string `yaml:"scopes" json:"scopes,omitempty"`
	AllowedChannels []string `yaml:"allowed_channels" json:"allowed_channels,omitempty"`
	Trim            TrimRule `yaml:"trim" json:"trim"`
}

// IsEnabled reports whether the tool is enabled; tools are enabled unless
// explicitly disabled.
func (t Tool) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Tools decodes a YAML mapping into a slice that keeps declaration order.
type Tools []Tool

// UnmarshalYAML implements yaml.Unmarshaler.
func (ts *Tools) UnmarshalYAML(node *yaml.Node) error {
	return decodeOrdered(node, func(name string, value *yaml.Node) error {
		var t Tool
		if err := value.Decode(&t); err != nil {
			return fmt.Errorf("tool %q: %w", name, err)
		}
		t.Name = name
		*ts = append(*ts, t)
		return nil
	})
}

// ToolsGlobal holds settings shared by every tool.
type ToolsGlobal struct {
	MaxResultBytes            int   `yaml:"max_result_bytes" json:"max_result_bytes,omitempty"`
	RequireConfirmForHighRisk *bool `yaml:"require_confirm_for_high_risk" json:"require_confirm_for_high_risk,omitempty"`
}

// ToolsConfig is the merged tools.yaml.
type ToolsConfig struct {
	Tools       Tools               `yaml:"tools" json:"tools"`
	IntentTools map[string][]string `yaml:"intent_tools" json:"intent_tools,omitempty"`
	Global      ToolsGlobal         `yaml:"global" json:"global"`
}

// Channel holds per-channel settings. Scopes are granted to every caller
// arriving on the channel; other keys are passed through to the channel
// adapter untouched.
type Channel struct {
	Enabled  bool                   `yaml:"enabled" json:"enabled"`
	Scopes   []string               `yaml:"scopes" json:"scopes,omitempty"`
	Settings map[string]interface{} `yaml:",inline" json:"settings,omitempty"`
}

// PromptStyle controls the language and tone of generated answers.
type PromptStyle struct {
	Language string `yaml:"language" json:"language,omitempty"`
	Tone     string `yaml:"tone" json:"tone,omitempty"`
}

// PromptTemplate is the merged prompt_template.yaml.
type PromptTemplate struct {
	Style      PromptStyle `yaml:"style" json:"style"`
	Preamble   string      `yaml:"preamble" json:"preamble,omitempty"`
	Disclosure string      `yaml:"disclosure" json:"disclosure,omitempty"`
}

// KBEntry is a verified knowledge-base fact; its ID is a valid citation.
type KBEntry struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// Config is the fully merged configuration of one tenant. It is rebuilt on
// every load and never mutated afterwards.
type Config struct {
	Tenant    Tenant             `json:"tenant"`
	Intents   []Intent           `json:"intents"`
	Tools     ToolsConfig        `json:"tools"`
	Channels  map[string]Channel `json:"channels"`
	Prompt    PromptTemplate     `json:"prompt_template"`
	Knowledge []KBEntry          `json:"knowledge,omitempty"`
}

// Intent returns the named intent.
func (c *Config) Intent(name string) (Intent, bool) {
	for _, it := range c.Intents {
		if it.Name == name {
			return it, true
		}
	}
	return Intent{}, false
}

// Context is a resolved tenant plus caller metadata for one request.
type Context struct {
	TenantID string
	Config   *Config
	Metadata map[string]string
}

func decodeOrdered(node *yaml.Node, fn func(name string, value *yaml.Node) error) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
