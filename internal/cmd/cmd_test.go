package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/nexus/internal/audit"
	"github.com/dativo-io/nexus/internal/calibration"
	"github.com/dativo-io/nexus/internal/config"
	"github.com/dativo-io/nexus/internal/pipeline"
	"github.com/dativo-io/nexus/internal/testutil"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	expected := []string{"version", "serve", "route", "calibrate", "tenant", "audit", "costs", "config"}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "subcommand %q should be registered", name)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "log-level", "log-format", "otel"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "flag %q should be registered", name)
	}
}

func TestVersionVars_HaveDefaults(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "none", Commit)
	assert.Equal(t, "unknown", BuildDate)
}

func TestPackageLevelTracer_IsNotNil(t *testing.T) {
	assert.NotNil(t, tracer)
}

// execute runs the root command against an isolated config root and data
// directory and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	root := testutil.WriteConfigTree(t)
	t.Setenv("NEXUS_CONFIG_ROOT", root)
	t.Setenv("NEXUS_DATA_DIR", t.TempDir())
	t.Setenv("NEXUS_SIGNING_KEY", testutil.TestSigningKey)
	t.Setenv("NEXUS_COMPLETION_MODE", "simulated")
	return root
}

func TestHelpOutput(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Multi-tenant decision pipeline")
	assert.Contains(t, out, "route")
	assert.Contains(t, out, "calibrate")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Nexus dev")
}

func TestRouteCommand(t *testing.T) {
	isolate(t)
	out, err := execute(t, "route", "--tenant", "acme", "--sender", "cli-user", "Wann", "habt", "ihr", "geöffnet?")
	require.NoError(t, err)

	var outcome struct {
		TenantID string `json:"tenant_id"`
		Text     string `json:"text"`
		Decision struct {
			Intent string `json:"intent"`
		} `json:"decision"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &outcome), out)
	assert.Equal(t, "acme", outcome.TenantID)
	assert.Equal(t, "faq", outcome.Decision.Intent)
	assert.Contains(t, outcome.Text, "[KB-ACME-HOURS]")

	out, err = execute(t, "audit", "list", "--tenant", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "Decision Records (showing 1)")
	assert.Contains(t, out, "faq/tier_1/low")
}

func TestRouteCommand_UnknownTenant(t *testing.T) {
	isolate(t)
	_, err := execute(t, "route", "--tenant", "ghost", "hallo")
	assert.Error(t, err)
}

func TestTenantInitAndShow(t *testing.T) {
	isolate(t)
	out, err := execute(t, "tenant", "init", "newco", "--name", "NewCo AG")
	require.NoError(t, err)
	assert.Contains(t, out, "Created tenant newco")

	out, err = execute(t, "tenant", "show", "newco")
	require.NoError(t, err)
	assert.Contains(t, out, "NewCo AG")
	// defaults are merged in
	assert.Contains(t, out, "faq")

	_, err = execute(t, "tenant", "show", "../etc")
	assert.Error(t, err)
}

func TestCalibrateCommand_FromFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "decisions.json")
	output := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(input, []byte(`[
  {"predicted_intent": "faq", "expected_intent": "booking", "confidence": 0.2, "escalated": false},
  {"predicted_intent": "faq", "expected_intent": "booking", "confidence": 0.3, "escalated": "0"},
  {"predicted_intent": "faq", "expected_intent": "faq", "confidence": 0.9, "escalated": true}
]`), 0o644))

	out, err := execute(t, "calibrate", "--input", input, "--output", output, "--current-threshold", "0.35")
	require.NoError(t, err)
	assert.Contains(t, out, "False escalations: 1, false passes: 2, recommended threshold: 0.36")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var report calibration.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 3, report.Total)
	assert.InDelta(t, 0.36, report.RecommendedLowConfThreshold, 1e-9)
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("NEXUS_COMPLETION_API_KEY", "sk-very-secret")
	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-very-secret")
	assert.NotContains(t, out, testutil.TestSigningKey)
	assert.Contains(t, out, "completion_mode")
}

func TestBuildRuntime_PIIPatterns(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "pii.yaml")
	testutil.WriteFile(t, path, `recognizers:
  - name: customer_no
    placeholder: CUSTOMER
    regex: 'K-\d{6}'
`)
	t.Setenv("NEXUS_PII_PATTERNS", path)
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, path, cfg.PIIPatterns)

	ctx := context.Background()
	rt, err := buildRuntime(ctx, cfg)
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.pipeline.Process(ctx, pipeline.Message{
		TenantID: "acme", SenderID: "u1", Text: "Kunde K-123456: wann habt ihr geöffnet?",
	})
	require.NoError(t, err)
	recs, err := rt.audit.ListDecisions(ctx, audit.Filter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Kunde [CUSTOMER_1]: wann habt ihr geöffnet?", recs[0].RedactedInputText)

	testutil.WriteFile(t, path, "recognizers: [oops")
	_, err = buildRuntime(ctx, cfg)
	assert.ErrorContains(t, err, "loading pii patterns")
}
