// Package patterns provides embedded default definitions: PII recognizers
// used for decision-log redaction, prompt-injection patterns used by the tool
// firewall, and the built-in guardian and budget policies that apply when no
// operator policy file is configured.
package patterns

import _ "embed"

//go:embed pii.yaml
var piiYAML []byte

//go:embed injection.yaml
var injectionYAML []byte

//go:embed guardian.yaml
var guardianYAML []byte

//go:embed budget.yaml
var budgetYAML []byte

// PIIYAML returns the embedded PII recognizer definitions.
func PIIYAML() []byte { return piiYAML }

// InjectionYAML returns the embedded prompt-injection pattern definitions.
func InjectionYAML() []byte { return injectionYAML }

// GuardianYAML returns the built-in conservative guardian policy.
func GuardianYAML() []byte { return guardianYAML }

// BudgetYAML returns the built-in budget tier table.
func BudgetYAML() []byte { return budgetYAML }
