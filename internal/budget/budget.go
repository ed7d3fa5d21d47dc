// Package budget selects the model and token ceiling for a cost tier and
// tracks each tenant's spend against a daily cap.
package budget

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"

	"github.com/dativo-io/nexus/patterns"
)

// Built-in values used when the policy leaves them out.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 800
	DefaultDailyCapUSD = 2.0
	DefaultTier        = "tier_2"

	warningRatio = 0.8
)

// Status is derived from spend and cap.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusExceeded Status = "exceeded"
)

// TierPolicy lists the models of a tier, preferred first.
type TierPolicy struct {
	Models    []string `yaml:"models" json:"models"`
	MaxTokens int      `yaml:"max_tokens" json:"max_tokens"`
}

// Policy is the budget policy file.
type Policy struct {
	Tiers       map[string]TierPolicy `yaml:"tiers" json:"tiers"`
	DailyCapUSD float64               `yaml:"daily_cap_usd" json:"daily_cap_usd"`
}

// DefaultPolicy returns the built-in tier table.
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(patterns.BudgetYAML())
	if err != nil {
		panic(fmt.Sprintf("parsing embedded budget policy: %v", err))
	}
	return p
}

// ParsePolicy decodes a budget policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing budget policy: %w", err)
	}
	if p.DailyCapUSD <= 0 {
		p.DailyCapUSD = DefaultDailyCapUSD
	}
	if p.Tiers == nil {
		p.Tiers = map[string]TierPolicy{}
	}
	return &p, nil
}

// LoadPolicy reads the policy at path. An empty path or a missing file
// yields DefaultPolicy; a malformed file is an error.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", path).Msg("budget_policy_default")
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("reading budget policy: %w", err)
	}
	return ParsePolicy(data)
}

// Selection is the model and token ceiling chosen for a tier.
type Selection struct {
	Tier      string `json:"tier"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

var meter = otel.Meter("github.com/dativo-io/nexus/internal/budget")

var costHistogram metric.Float64Histogram

func init() {
	var err error
	costHistogram, err = meter.Float64Histogram("nexus.cost.request",
		metric.WithDescription("Cost in USD per completion"),
		metric.WithUnit("usd"))
	if err != nil {
		costHistogram, _ = meter.Float64Histogram("nexus.cost.request.fallback")
	}
}

// Governor applies a policy and keeps one spend accumulator per tenant.
type Governor struct {
	policy *Policy

	mu    sync.Mutex
	spend map[string]float64
}

// NewGovernor creates a governor; a nil policy selects DefaultPolicy.
func NewGovernor(p *Policy) *Governor {
	if p == nil {
		p = DefaultPolicy()
	}
	return &Governor{policy: p, spend: make(map[string]float64)}
}

// DailyCap returns the cap applied to every tenant.
func (g *Governor) DailyCap() float64 {
	return g.policy.DailyCapUSD
}

// Select looks tier up in the policy, falling back to tier_2 and then to the
// built-in model and token ceiling.
func (g *Governor) Select(tier string) Selection {
	tp, ok := g.policy.Tiers[tier]
	if !ok {
		tp = g.policy.Tiers[DefaultTier]
	}
	sel := Selection{Tier: tier, Model: DefaultModel, MaxTokens: DefaultMaxTokens}
	if len(tp.Models) > 0 && tp.Models[0] != "" {
		sel.Model = tp.Models[0]
	}
	if tp.MaxTokens > 0 {
		sel.MaxTokens = tp.MaxTokens
	}
	return sel
}

// Track adds cost to the tenant's spend. Negative costs count as zero.
func (g *Governor) Track(ctx context.Context, tenantID, model string, tokensIn, tokensOut int, cost float64) Status {
	if cost < 0 || math.IsNaN(cost) {
		cost = 0
	}
	g.mu.Lock()
	g.spend[tenantID] += cost
	spend := g.spend[tenantID]
	g.mu.Unlock()

	costHistogram.Record(ctx, cost, metric.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("model", model),
	))

	status := StatusFor(spend, g.policy.DailyCapUSD)
	if status != StatusOK {
		log.Warn().
			Str("tenant_id", tenantID).
			Float64("daily_spend", spend).
			Float64("daily_cap", g.policy.DailyCapUSD).
			Int("tokens_in", tokensIn).
			Int("tokens_out", tokensOut).
			Str("status", string(status)).
			Msg("budget_threshold_reached")
	}
	return status
}

// DailySpend returns the tenant's accumulated spend rounded to 6 decimals.
func (g *Governor) DailySpend(tenantID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return math.Round(g.spend[tenantID]*1e6) / 1e6
}

// Status returns the tenant's current budget status.
func (g *Governor) Status(tenantID string) Status {
	g.mu.Lock()
	spend := g.spend[tenantID]
	g.mu.Unlock()
	return StatusFor(spend, g.policy.DailyCapUSD)
}

// Reset zeroes the tenant's spend; day rollover is the caller's concern.
func (g *Governor) Reset(tenantID string) {
	g.mu.Lock()
	delete(g.spend, tenantID)
	g.mu.Unlock()
}

// StatusFor is exceeded when spend is above cap, warning at or above 80% of
// cap, else ok.
func StatusFor(spend, dailyCap float64) Status {
	switch {
	case spend > dailyCap:
		return StatusExceeded
	case spend >= warningRatio*dailyCap:
		return StatusWarning
	default:
		return StatusOK
	}
}
