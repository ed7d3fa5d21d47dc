package tenant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeAcme lays out a config root with system defaults and the acme tenant.
func writeAcme(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "defaults", IntentsFile), `
intents:
  faq:
    keywords: [frage, info]
    default_tier: tier_1
    risk_level: low
  fallback:
    default_tier: tier_2
    risk_level: low
`)
	writeFile(t, filepath.Join(root, "defaults", ToolsFile), `
tools:
  kb_search:
    scopes: [read]
    allowed_channels: [web]
global:
  max_result_bytes: 4096
`)
	writeFile(t, filepath.Join(root, "defaults", ChannelsFile), `
channels:
  web:
    enabled: true
`)
	writeFile(t, filepath.Join(root, "defaults", PromptTemplateFile), `
style:
  language: de
  tone: sachlich
`)

	writeFile(t, filepath.Join(root, "tenants", "acme", IdentityFile), `
tenant_id: acme
business_name: ACME GmbH
`)
	writeFile(t, filepath.Join(root, "tenants", "acme", IntentsFile), `
intents:
  faq:
    keywords: [info, preise]
  booking:
    keywords: [termin, buchen]
    examples: ["Ich möchte einen Termin buchen"]
    default_tier: tier_2
    risk_level: medium
    tools: [calendar]
`)
	writeFile(t, filepath.Join(root, "tenants", "acme", ToolsFile), `
tools:
  kb_search:
    allowed_channels: [whatsapp]
  calendar:
    scopes: [write]
`)
	writeFile(t, filepath.Join(root, "tenants", "acme", PromptTemplateFile), `
style:
  tone: freundlich
`)
	writeFile(t, filepath.Join(root, "tenants", "acme", KnowledgeFile), `
entries:
  - id: KB-ACME-HOURS
    text: Wir haben Montag bis Freitag von 9 bis 18 Uhr geöffnet.
`)
	return root
}
