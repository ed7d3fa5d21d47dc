// Package routing classifies an inbound message into an intent with a cost
// tier, risk level and confidence by running an ordered cascade of stages.
package routing

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTier  = errors.New("invalid tier")
	ErrInvalidRisk  = errors.New("invalid risk level")
	ErrEmptyCatalog = errors.New("intent catalog is empty")
)

// Tier is a cost/capability band selecting model and token ceiling.
type Tier string

const (
	Tier1 Tier = "tier_1"
	Tier2 Tier = "tier_2"
	Tier3 Tier = "tier_3"
)

// ParseTier validates s as a tier.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case Tier1, Tier2, Tier3:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// RiskLevel drives confirmation and blocking policy.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel validates s as a risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch r := RiskLevel(s); r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRisk, s)
}

// NeedsConfirmation reports whether actions at this level require an
// explicit user confirmation.
func (r RiskLevel) NeedsConfirmation() bool {
	return r == RiskHigh || r == RiskCritical
}

// Source names the cascade stage that produced a decision.
type Source string

const (
	SourceKeyword  Source = "keyword"
	SourceLexical  Source = "lexical"
	SourceFallback Source = "fallback"
)

// Grounding modes. Strict answers must carry citations.
const (
	GroundingOpen   = "open"
	GroundingStrict = "strict"
)

// Decision is the outcome of routing one message.
type Decision struct {
	Intent               string    `json:"intent"`
	Tier                 Tier      `json:"tier"`
	RiskLevel            RiskLevel `json:"risk_level"`
	Confidence           float64   `json:"confidence"`
	Source               Source    `json:"source"`
	Rationale            string    `json:"rationale"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	ToolsToLoad          []string  `json:"tools_to_load"`
	GroundingMode        string    `json:"grounding_mode"`
	ShouldDelegate       bool      `json:"should_delegate"`
}
