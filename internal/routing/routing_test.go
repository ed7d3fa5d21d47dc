package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/nexus/internal/tenant"
)

func acmeConfig() *tenant.Config {
	return &tenant.Config{
		Tenant: tenant.Tenant{ID: "acme", BusinessName: "ACME GmbH"},
		Intents: []tenant.Intent{
			{Name: "faq", Keywords: []string{"öffnungszeiten", "preise"}, DefaultTier: "tier_1", RiskLevel: "low", GroundingMode: "strict"},
			{Name: "booking", Keywords: []string{"termin"}, Examples: []string{"Ich möchte einen Termin vereinbaren"}, DefaultTier: "tier_2", RiskLevel: "medium", Tools: []string{"calendar"}},
			{Name: "research", Examples: []string{"recherchiere den markt und schreibe einen bericht"}, DefaultTier: "tier_3", RiskLevel: "low"},
			{Name: "fallback", DefaultTier: "tier_2", RiskLevel: "low"},
		},
		Tools: tenant.ToolsConfig{
			Tools: tenant.Tools{{Name: "calendar"}, {Name: "crm"}},
		},
	}
}

func TestRoute_AcmeBookingScenario(t *testing.T) {
	d, err := Route(context.Background(), "Ich möchte einen Termin buchen", acmeConfig())
	require.NoError(t, err)

	assert.Equal(t, "booking", d.Intent)
	assert.Equal(t, SourceKeyword, d.Source)
	assert.Equal(t, Tier2, d.Tier)
	assert.Equal(t, RiskMedium, d.RiskLevel)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
	assert.Equal(t, []string{"calendar"}, d.ToolsToLoad)
	assert.False(t, d.RequiresConfirmation)
}

func TestKeywordStage(t *testing.T) {
	intents := []tenant.Intent{
		{Name: "a", Keywords: []string{"preis", "kosten", "tarif", "angebot"}},
		{Name: "b", Keywords: []string{"preis", "kosten"}},
		{Name: "c", Keywords: []string{"preis", "kosten"}},
	}

	d := KeywordStage("Was sind die Kosten und der Preis?", intents)
	require.NotNil(t, d)
	assert.Equal(t, "b", d.Intent, "higher score wins, ties go to the first declared")
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)

	d = KeywordStage("Nur der PREIS bitte", intents[:1])
	require.NotNil(t, d)
	assert.InDelta(t, 0.65, d.Confidence, 1e-9)

	assert.Nil(t, KeywordStage("Preisliste", intents), "keywords match whole words only")
	assert.Nil(t, KeywordStage("", intents))
}

func TestKeywordStage_Deterministic(t *testing.T) {
	intents := acmeConfig().Intents
	first := KeywordStage("Preise und Öffnungszeiten?", intents)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, KeywordStage("Preise und Öffnungszeiten?", intents))
	}
}

func TestKeywordStage_RoundsConfidence(t *testing.T) {
	intents := []tenant.Intent{{Name: "x", Keywords: []string{"a", "b", "c"}}}
	d := KeywordStage("a", intents)
	require.NotNil(t, d)
	assert.Equal(t, 0.733, d.Confidence)
}

func TestLexicalStage(t *testing.T) {
	intents := acmeConfig().Intents

	d := LexicalStage("bitte recherchiere den markt", intents)
	require.NotNil(t, d)
	assert.Equal(t, "research", d.Intent)
	assert.Equal(t, SourceLexical, d.Source)
	assert.Equal(t, Tier3, d.Tier)
	assert.True(t, d.ShouldDelegate)
	// 3 of 7 candidate tokens.
	assert.InDelta(t, 0.35+3.0/7.0, d.Confidence, 1e-9)

	assert.Nil(t, LexicalStage("xyz", intents))
	assert.Nil(t, LexicalStage("!!!", intents))
}

func TestFallbackStage(t *testing.T) {
	d := FallbackStage("anything", acmeConfig().Intents)
	require.NotNil(t, d)
	assert.Equal(t, "fallback", d.Intent)
	assert.Equal(t, 0.45, d.Confidence)

	d = FallbackStage("anything", []tenant.Intent{{Name: "first"}, {Name: "second"}})
	require.NotNil(t, d)
	assert.Equal(t, "first", d.Intent)
	assert.Equal(t, Tier2, d.Tier, "unset tier defaults to tier_2")
	assert.Equal(t, RiskMedium, d.RiskLevel, "unset risk defaults to medium")

	assert.Nil(t, FallbackStage("anything", nil))
}

func TestRoute_EmptyCatalog(t *testing.T) {
	_, err := Route(context.Background(), "hallo", &tenant.Config{})
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestRoute_RiskOverride(t *testing.T) {
	cfg := acmeConfig()
	cfg.Tenant.RiskMapping = map[string]string{"booking": "high", "faq": "extreme"}

	d, err := Route(context.Background(), "Termin bitte", cfg)
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, d.RiskLevel)
	assert.True(t, d.RequiresConfirmation)

	d, err = Route(context.Background(), "Preise?", cfg)
	require.NoError(t, err)
	assert.Equal(t, "faq", d.Intent)
	assert.Equal(t, RiskLow, d.RiskLevel, "invalid override is ignored")
	assert.Equal(t, GroundingStrict, d.GroundingMode)
}

func TestRoute_OverrideMayLowerRisk(t *testing.T) {
	cfg := acmeConfig()
	cfg.Intents[1].RiskLevel = "critical"
	cfg.Tenant.RiskMapping = map[string]string{"booking": "low"}

	d, err := Route(context.Background(), "Termin", cfg)
	require.NoError(t, err)
	assert.Equal(t, RiskLow, d.RiskLevel)
	assert.False(t, d.RequiresConfirmation)
}

func TestRoute_FallbackGetsAllEnabledTools(t *testing.T) {
	d, err := Route(context.Background(), "qwertz", acmeConfig())
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, d.Source)
	assert.Equal(t, []string{"calendar", "crm", "human_escalation", "kb_search"}, d.ToolsToLoad)
}

func TestParse(t *testing.T) {
	_, err := ParseTier("tier_9")
	assert.ErrorIs(t, err, ErrInvalidTier)
	_, err = ParseRiskLevel("extreme")
	assert.ErrorIs(t, err, ErrInvalidRisk)

	tier, err := ParseTier("tier_3")
	require.NoError(t, err)
	assert.Equal(t, Tier3, tier)
	assert.True(t, RiskCritical.NeedsConfirmation())
	assert.False(t, RiskMedium.NeedsConfirmation())
}
