package tenant

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	nexusotel "github.com/dativo-io/nexus/internal/otel"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/tenant")

// File names inside defaults/ and tenants/<id>/.
const (
	IdentityFile       = "tenant.yaml"
	IntentsFile        = "intents.yaml"
	ToolsFile          = "tools.yaml"
	ChannelsFile       = "channels.yaml"
	PromptTemplateFile = "prompt_template.yaml"
	KnowledgeFile      = "kb_seed.yaml"
)

// Resolver loads tenant configuration from a config root laid out as
// <root>/defaults/*.yaml and <root>/tenants/<id>/*.yaml.
type Resolver struct {
	defaultsRoot    string
	tenantsRoot     string
	defaultTenantID string
}

// NewResolver creates a resolver rooted at configRoot. defaultTenantID is
// used when neither an explicit id nor a membership names a tenant.
func NewResolver(configRoot, defaultTenantID string) *Resolver {
	return &Resolver{
		defaultsRoot:    filepath.Join(configRoot, "defaults"),
		tenantsRoot:     filepath.Join(configRoot, "tenants"),
		defaultTenantID: defaultTenantID,
	}
}

// TenantsRoot returns the directory holding one subdirectory per tenant.
func (r *Resolver) TenantsRoot() string {
	return r.tenantsRoot
}

// ResolveID picks the tenant for a request: an explicit id wins, then the
// sender's membership, then the configured default.
func (r *Resolver) ResolveID(m *Membership, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if m != nil && m.TenantID != "" {
		return m.TenantID
	}
	return r.defaultTenantID
}

// LoadContext resolves the tenant id and loads its configuration.
func (r *Resolver) LoadContext(ctx context.Context, m *Membership, tenantID string, metadata map[string]string) (*Context, error) {
	id := r.ResolveID(m, tenantID)
	cfg, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Context{TenantID: id, Config: cfg, Metadata: metadata}, nil
}

// Load reads and merges the configuration of tenantID. The identifier is
// validated before the filesystem is touched.
func (r *Resolver) Load(ctx context.Context, tenantID string) (*Config, error) {
	_, span := tracer.Start(ctx, "tenant.load",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	cfg, err := r.load(tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("tenant.intents", len(cfg.Intents)),
		attribute.Int("tenant.tools", len(cfg.Tools.Tools)),
	)
	return cfg, nil
}

func (r *Resolver) load(tenantID string) (*Config, error) {
	if err := ValidateID(tenantID); err != nil {
		return nil, err
	}

	tenantRoot := filepath.Join(r.tenantsRoot, tenantID)
	if info, err := os.Stat(tenantRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, tenantID, r.tenantsRoot)
	}

	identity, err := r.loadIdentity(tenantID, tenantRoot)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Tenant: *identity}

	var intents struct {
		Intents Intents `yaml:"intents"`
	}
	if err := r.mergeInto(tenantID, tenantRoot, IntentsFile, &intents); err != nil {
		return nil, err
	}
	cfg.Intents = intents.Intents

	if err := r.mergeInto(tenantID, tenantRoot, ToolsFile, &cfg.Tools); err != nil {
		return nil, err
	}

	var channels struct {
		Channels map[string]Channel `yaml:"channels"`
	}
	if err := r.mergeInto(tenantID, tenantRoot, ChannelsFile, &channels); err != nil {
		return nil, err
	}
	cfg.Channels = channels.Channels
	if cfg.Channels == nil {
		cfg.Channels = map[string]Channel{}
	}

	if err := r.mergeInto(tenantID, tenantRoot, PromptTemplateFile, &cfg.Prompt); err != nil {
		return nil, err
	}

	knowledge, err := loadKnowledge(tenantID, filepath.Join(tenantRoot, KnowledgeFile))
	if err != nil {
		return nil, err
	}
	cfg.Knowledge = knowledge

	log.Debug().
		Str("tenant_id", tenantID).
		Int("intents", len(cfg.Intents)).
		Int("tools", len(cfg.Tools.Tools)).
		Int("kb_entries", len(cfg.Knowledge)).
		Msg("tenant_config_resolved")

	return cfg, nil
}

func (r *Resolver) loadIdentity(tenantID, tenantRoot string) (*Tenant, error) {
	data, err := os.ReadFile(filepath.Join(tenantRoot, IdentityFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q has no %s", ErrNotFound, tenantID, IdentityFile)
		}
		return nil, fmt.Errorf("reading %s for %q: %w", IdentityFile, tenantID, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: tenant %q: parsing %s: %v", ErrConfig, tenantID, IdentityFile, err)
	}
	if err := validateIdentity(tenantID, raw); err != nil {
		return nil, err
	}

	var t Tenant
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: tenant %q: decoding %s: %v", ErrConfig, tenantID, IdentityFile, err)
	}
	if t.ID != tenantID {
		return nil, fmt.Errorf("%w: tenant %q: %s declares tenant_id %q", ErrConfig, tenantID, IdentityFile, t.ID)
	}
	if t.Language == "" {
		t.Language = DefaultLanguage
	}
	if t.Timezone == "" {
		t.Timezone = DefaultTimezone
	}
	if len(t.ActiveChannels) == 0 {
		t.ActiveChannels = []string{DefaultChannel}
	}
	return &t, nil
}

// mergeInto merges defaults/<name> with tenants/<id>/<name> and decodes the
// result into out. Either file may be absent.
func (r *Resolver) mergeInto(tenantID, tenantRoot, name string, out interface{}) error {
	base, err := readMapping(filepath.Join(r.defaultsRoot, name))
	if err != nil {
		return fmt.Errorf("%w: defaults/%s: %v", ErrConfig, name, err)
	}
	override, err := readMapping(filepath.Join(tenantRoot, name))
	if err != nil {
		return fmt.Errorf("%w: tenant %q: %s: %v", ErrConfig, tenantID, name, err)
	}
	merged := MergeNodes(base, override)
	if merged == nil {
		return nil
	}
	if err := merged.Decode(out); err != nil {
		return fmt.Errorf("%w: tenant %q: %s: %v", ErrConfig, tenantID, name, err)
	}
	return nil
}

// readMapping returns the root mapping node of a YAML file, nil when the
// file is absent or empty.
func readMapping(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping at the document root (line %d)", root.Line)
	}
	return root, nil
}

func loadKnowledge(tenantID, path string) ([]KBEntry, error) {
	root, err := readMapping(path)
	if err != nil {
		return nil, fmt.Errorf("%w: tenant %q: %s: %v", ErrConfig, tenantID, KnowledgeFile, err)
	}
	if root == nil {
		return nil, nil
	}
	var seed struct {
		Entries []KBEntry `yaml:"entries"`
	}
	if err := root.Decode(&seed); err != nil {
		return nil, fmt.Errorf("%w: tenant %q: %s: %v", ErrConfig, tenantID, KnowledgeFile, err)
	}
	return seed.Entries, nil
}
