package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// WriteConfigTree lays out a config root with system defaults and the
// "acme" tenant and returns the root. acme declares:
//
//   - faq: strict grounding, tier_1, low risk
//   - booking: tier_2, medium risk, calendar tool
//   - ops: delegated, tier_3, high risk, terminal tool
//   - fallback (from defaults)
//
// Web grants read, write and admin; whatsapp grants nothing.
// and one knowledge entry, KB-ACME-HOURS.
func WriteConfigTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	WriteFile(t, filepath.Join(root, "defaults", "intents.yaml"), `
intents:
  faq:
    keywords: [öffnungszeiten, geöffnet]
    default_tier: tier_1
    risk_level: low
    grounding_mode: strict
  fallback:
    default_tier: tier_2
    risk_level: low
`)
	WriteFile(t, filepath.Join(root, "defaults", "tools.yaml"), `
tools:
  kb_search:
    scopes: [read]
global:
  max_result_bytes: 4096
`)
	WriteFile(t, filepath.Join(root, "defaults", "channels.yaml"), `
channels:
  web:
    enabled: true
    scopes: [read]
  whatsapp:
    enabled: true
`)
	WriteFile(t, filepath.Join(root, "defaults", "prompt_template.yaml"), `
style:
  language: de
  tone: sachlich
`)

	WriteFile(t, filepath.Join(root, "tenants", "acme", "tenant.yaml"), `
tenant_id: acme
business_name: ACME GmbH
`)
	WriteFile(t, filepath.Join(root, "tenants", "acme", "intents.yaml"), `
intents:
  booking:
    keywords: [termin, buchen]
    examples: ["Ich möchte einen Termin buchen"]
    default_tier: tier_2
    risk_level: medium
    tools: [calendar]
  ops:
    keywords: [server, deploy]
    default_tier: tier_3
    risk_level: high
    delegate: true
    tools: [terminal]
`)
	WriteFile(t, filepath.Join(root, "tenants", "acme", "tools.yaml"), `
tools:
  calendar:
    scopes: [write]
  terminal:
    scopes: [admin]
`)
	WriteFile(t, filepath.Join(root, "tenants", "acme", "channels.yaml"), `
channels:
  web:
    scopes: [write, admin]
`)
	WriteFile(t, filepath.Join(root, "tenants", "acme", "prompt_template.yaml"), `
style:
  tone: freundlich
`)
	WriteFile(t, filepath.Join(root, "tenants", "acme", "kb_seed.yaml"), `
entries:
  - id: KB-ACME-HOURS
    text: Wir haben Montag bis Freitag von 9 bis 18 Uhr geöffnet.
`)
	return root
}
