package tools

import (
	"errors"
	"fmt"
	"strings"
)

// Permission errors returned by Permit.
var (
	ErrChannelNotAllowed = errors.New("tool not allowed on channel")
	ErrScopeMissing      = errors.New("missing tool scope")
)

// Permit checks that tool may run on channel for a caller holding scopes.
func (r *Registry) Permit(tool, channel string, scopes []string) error {
	if !r.CheckChannel(tool, channel) {
		return fmt.Errorf("%w: %s on %q", ErrChannelNotAllowed, tool, channel)
	}
	if !r.CheckScope(tool, scopes) {
		return fmt.Errorf("%w: %s needs [%s]", ErrScopeMissing, tool, strings.Join(r.index[tool].Scopes, ", "))
	}
	return nil
}

// CheckScope reports whether userScopes cover every scope the tool requires.
// Unknown tools require nothing.
func (r *Registry) CheckScope(tool string, userScopes []string) bool {
	t, ok := r.index[tool]
	if !ok {
		return true
	}
	have := make(map[string]bool, len(userScopes))
	for _, s := range userScopes {
		have[s] = true
	}
	for _, s := range t.Scopes {
		if !have[s] {
			return false
		}
	}
	return true
}

// CheckChannel reports whether the tool may be used on channel. Tools
// without allowed_channels, and unknown tools, are not restricted.
func (r *Registry) CheckChannel(tool, channel string) bool {
	t, ok := r.index[tool]
	if !ok || len(t.AllowedChannels) == 0 {
		return true
	}
	for _, c := range t.AllowedChannels {
		if c == channel {
			return true
		}
	}
	return false
}

// CheckConfirmation reports whether a call at riskLevel may proceed. High-risk
// calls need confirmed unless require_confirm_for_high_risk is set to false.
func (r *Registry) CheckConfirmation(confirmed bool, riskLevel string) bool {
	require := r.cfg.Global.RequireConfirmForHighRisk == nil || *r.cfg.Global.RequireConfirmForHighRisk
	if require && riskLevel == "high" {
		return confirmed
	}
	return true
}
