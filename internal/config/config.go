// Package config holds OPERATOR-LEVEL configuration for a nexus
// installation: where tenant configuration lives, where state is stored,
// which completion backend answers, and the pipeline's tuning knobs.
//
// Tenant configuration (intents, tools, channels, prompts, knowledge) is
// not here; it is YAML under ConfigRoot and is resolved per request by
// internal/tenant.
//
// Every key maps to an env var with the NEXUS_ prefix (e.g. "signing_key"
// → NEXUS_SIGNING_KEY) and to a field in nexus.config.yaml.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dativo-io/nexus/internal/cryptoutil"
)

// Viper keys.
const (
	KeyConfigRoot             = "config_root"
	KeyDataDir                = "data_dir"
	KeyDefaultTenant          = "default_tenant"
	KeySigningKey             = "signing_key"
	KeyCompletionMode         = "completion_mode"
	KeyCompletionBaseURL      = "completion_base_url"
	KeyCompletionAPIKey       = "completion_api_key"
	KeyCompletionTimeout      = "completion_timeout"
	KeyGuardianPolicy         = "guardian_policy"
	KeyBudgetPolicy           = "budget_policy"
	KeyPIIPatterns            = "pii_patterns"
	KeyRedisAddr              = "redis_addr"
	KeyMaxTurns               = "max_turns"
	KeySummaryChars           = "summary_chars"
	KeyContextChars           = "context_chars"
	KeySnippetTopK            = "snippet_top_k"
	KeyGroundingRetries       = "grounding_retries"
	KeyLowConfidenceThreshold = "low_confidence_threshold"
	KeyProactiveCron          = "proactive_cron"
)

// Completion modes.
const (
	ModeSimulated = "simulated"
	ModeOpenAI    = "openai"
)

const (
	DefaultConfigRoot             = "configs"
	DefaultTenantID               = "example_tenant"
	DefaultCompletionTimeout      = 30 * time.Second
	DefaultMaxTurns               = 12
	DefaultSummaryChars           = 400
	DefaultContextChars           = 2500
	DefaultSnippetTopK            = 3
	DefaultGroundingRetries       = 1
	DefaultLowConfidenceThreshold = 0.35
	DefaultProactiveCron          = "@every 1m"
)

// Config is the resolved operator configuration of one nexus process.
type Config struct {
	ConfigRoot     string
	DataDir        string
	DefaultTenant  string
	SigningKey     string // HMAC-SHA256 key for decision records (≥32 bytes)
	GuardianPolicy string // empty: built-in policy
	BudgetPolicy   string // empty: built-in tier table
	PIIPatterns    string // empty: built-in email/phone recognizers
	RedisAddr      string // empty: in-process turn buffer

	CompletionMode    string
	CompletionBaseURL string
	CompletionAPIKey  string
	CompletionTimeout time.Duration

	MaxTurns               int
	SummaryChars           int
	ContextChars           int
	SnippetTopK            int
	GroundingRetries       int
	LowConfidenceThreshold float64
	ProactiveCron          string

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey reports whether the signing key was derived rather
// than set.
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// AuditDBPath returns the path of the decision/event SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// SnippetDBPath returns the path of the persistent snippet index.
func (c *Config) SnippetDBPath() string {
	return filepath.Join(c.DataDir, "snippets.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the signing key is derived.
func (c *Config) WarnIfDefaultKeys() {
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default NEXUS_SIGNING_KEY; set via env var or config file for production")
	}
}

func init() {
	SetDefaults(viper.GetViper())
}

// SetDefaults binds the NEXUS_ env prefix and registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix("NEXUS")
	v.AutomaticEnv()
	v.SetDefault(KeyConfigRoot, DefaultConfigRoot)
	v.SetDefault(KeyDefaultTenant, DefaultTenantID)
	v.SetDefault(KeyCompletionMode, ModeSimulated)
	v.SetDefault(KeyCompletionTimeout, DefaultCompletionTimeout)
	v.SetDefault(KeyMaxTurns, DefaultMaxTurns)
	v.SetDefault(KeySummaryChars, DefaultSummaryChars)
	v.SetDefault(KeyContextChars, DefaultContextChars)
	v.SetDefault(KeySnippetTopK, DefaultSnippetTopK)
	v.SetDefault(KeyGroundingRetries, DefaultGroundingRetries)
	v.SetDefault(KeyLowConfidenceThreshold, DefaultLowConfidenceThreshold)
	v.SetDefault(KeyProactiveCron, DefaultProactiveCron)
}

// Load reads the global viper instance (env vars, config file, defaults).
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves and validates a Config from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ConfigRoot:             v.GetString(KeyConfigRoot),
		DataDir:                resolveDataDir(v),
		DefaultTenant:          v.GetString(KeyDefaultTenant),
		SigningKey:             v.GetString(KeySigningKey),
		GuardianPolicy:         v.GetString(KeyGuardianPolicy),
		BudgetPolicy:           v.GetString(KeyBudgetPolicy),
		PIIPatterns:            v.GetString(KeyPIIPatterns),
		RedisAddr:              v.GetString(KeyRedisAddr),
		CompletionMode:         v.GetString(KeyCompletionMode),
		CompletionBaseURL:      v.GetString(KeyCompletionBaseURL),
		CompletionAPIKey:       v.GetString(KeyCompletionAPIKey),
		CompletionTimeout:      v.GetDuration(KeyCompletionTimeout),
		MaxTurns:               v.GetInt(KeyMaxTurns),
		SummaryChars:           v.GetInt(KeySummaryChars),
		ContextChars:           v.GetInt(KeyContextChars),
		SnippetTopK:            v.GetInt(KeySnippetTopK),
		GroundingRetries:       v.GetInt(KeyGroundingRetries),
		LowConfidenceThreshold: v.GetFloat64(KeyLowConfidenceThreshold),
		ProactiveCron:          v.GetString(KeyProactiveCron),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "decision-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir(v *viper.Viper) string {
	if dir := v.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nexus"
	}
	return filepath.Join(home, ".nexus")
}

// deriveDefaultKey produces a deterministic 32-byte hex key from the data
// directory and a salt. It is per-machine, not secret.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("nexus:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	switch c.CompletionMode {
	case ModeSimulated:
	case ModeOpenAI:
		if c.CompletionAPIKey == "" {
			return fmt.Errorf("completion_api_key is required for completion_mode %q; set NEXUS_COMPLETION_API_KEY", ModeOpenAI)
		}
	default:
		return fmt.Errorf("completion_mode must be %q or %q (got %q)", ModeSimulated, ModeOpenAI, c.CompletionMode)
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("completion_timeout must be positive")
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("max_turns must be positive")
	}
	if c.GroundingRetries < 0 {
		return fmt.Errorf("grounding_retries must not be negative")
	}
	if c.LowConfidenceThreshold < 0 || c.LowConfidenceThreshold > 1 {
		return fmt.Errorf("low_confidence_threshold must be within [0,1] (got %v)", c.LowConfidenceThreshold)
	}
	return nil
}

// validateSigningKey accepts 64+ hex characters or at least 32 raw bytes.
func validateSigningKey(key string) error {
	if _, err := cryptoutil.DecodeKey(key); err != nil {
		return fmt.Errorf("signing_key must be at least 32 bytes or 64+ hex characters; set NEXUS_SIGNING_KEY: %w", err)
	}
	return nil
}
