// Package guardian decides whether a requested tool call may run, needs
// the user's confirmation, or is blocked.
package guardian

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/dativo-io/nexus/patterns"
)

// Risk actions a policy may map a risk level to.
const (
	ActionAutoApprove = "auto_approve"
	ActionApprove     = "approve"
	ActionConfirm     = "confirm"
	ActionBlock       = "block"
)

// ShellRules are substring lists checked against a call's command text.
type ShellRules struct {
	Blocked             []string `yaml:"blocked" json:"blocked"`
	RequireConfirmation []string `yaml:"require_confirmation" json:"require_confirmation"`
}

// Rules groups the command rules of a policy.
type Rules struct {
	ShellCommands ShellRules `yaml:"shell_commands" json:"shell_commands"`
}

// Policy is the guardian policy file.
type Policy struct {
	Rules       Rules             `yaml:"rules" json:"rules"`
	RiskActions map[string]string `yaml:"risk_actions" json:"risk_actions"`
}

// ParsePolicy decodes a policy document. Risk levels the document does not
// map inherit the built-in action.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing guardian policy: %w", err)
	}
	if p.RiskActions == nil {
		p.RiskActions = map[string]string{}
	}
	if def, err := builtinPolicy(); err == nil {
		for level, action := range def.RiskActions {
			if _, ok := p.RiskActions[level]; !ok {
				p.RiskActions[level] = action
			}
		}
	}
	return &p, nil
}

func builtinPolicy() (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(patterns.GuardianYAML(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultPolicy returns the built-in conservative policy.
func DefaultPolicy() *Policy {
	p, err := builtinPolicy()
	if err != nil {
		panic(fmt.Sprintf("parsing embedded guardian policy: %v", err))
	}
	return p
}

// LoadPolicy reads the policy at path. A missing path, unreadable file or
// malformed document yields DefaultPolicy; loading never fails.
func LoadPolicy(path string) *Policy {
	if path == "" {
		return DefaultPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("guardian_policy_fallback")
		return DefaultPolicy()
	}
	p, err := ParsePolicy(data)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("guardian_policy_fallback")
		return DefaultPolicy()
	}
	return p
}
