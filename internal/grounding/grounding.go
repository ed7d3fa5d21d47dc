// Package grounding checks that generated answers cite only known
// knowledge-base entries, and repairs or suppresses answers that do not.
package grounding

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FailSafeMessage replaces answers that could not be grounded.
const FailSafeMessage = "Kann ich nicht zuverlässig beantworten."

// Violation codes.
const (
	ViolationMissingCitation = "missing_citation"
	violationInvalidPrefix   = "invalid_citation:"
)

var citationPattern = regexp.MustCompile(`\[(KB-[A-Z0-9_]+-[A-Z0-9_-]+)\]`)

var meter = otel.Meter("github.com/dativo-io/nexus/internal/grounding")

var fallbacks metric.Int64Counter

func init() {
	var err error
	fallbacks, err = meter.Int64Counter("grounding.fallbacks",
		metric.WithDescription("Answers replaced by the fail-safe message"))
	if err != nil {
		fallbacks, _ = meter.Int64Counter("grounding.fallbacks.fallback")
	}
}

// Extract returns the citation ids in text in order of appearance.
func Extract(text string) []string {
	var ids []string
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

// InvalidCitation returns the violation code for an unknown id.
func InvalidCitation(id string) string {
	return violationInvalidPrefix + id
}

// Result is the outcome of validating one answer.
type Result struct {
	Passed     bool     `json:"passed"`
	Violations []string `json:"violations"`
	Citations  []string `json:"citations"`
}

// Validate checks answer against reg. Every unknown citation is reported
// individually; a missing citation is a violation only when required.
func Validate(answer string, reg *Registry, requireCitations bool) Result {
	citations := Extract(answer)
	violations := []string{}
	if requireCitations && len(citations) == 0 {
		violations = append(violations, ViolationMissingCitation)
	}
	for _, id := range citations {
		if !reg.Contains(id) {
			violations = append(violations, InvalidCitation(id))
		}
	}
	return Result{Passed: len(violations) == 0, Violations: violations, Citations: citations}
}

// Repair validates answer and, if it fails, appends up to maxRetries
// registered ids one at a time, returning the first passing variant. When
// nothing passes the FailSafeMessage is returned with the last failing
// result.
func Repair(ctx context.Context, answer string, reg *Registry, maxRetries int, requireCitations bool) (string, Result) {
	result := Validate(answer, reg, requireCitations)
	if result.Passed {
		return answer, result
	}

	candidates := reg.IDs()
	if maxRetries < len(candidates) {
		candidates = candidates[:max(maxRetries, 0)]
	}
	base := strings.TrimRight(answer, " \t\r\n")
	for _, id := range candidates {
		repaired := base + " [" + id + "]"
		r := Validate(repaired, reg, requireCitations)
		if r.Passed {
			return repaired, r
		}
		result = r
	}

	fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", reg.TenantID())))
	return FailSafeMessage, result
}

// RepairOrFallback is Repair with citations required.
func RepairOrFallback(ctx context.Context, answer string, reg *Registry, maxRetries int) (string, Result) {
	return Repair(ctx, answer, reg, maxRetries, true)
}

// Registry is the set of valid citation ids of one tenant. Ids keep their
// registration order, which is the order repair tries them in.
type Registry struct {
	tenantID string

	mu  sync.RWMutex
	ids []string
	set map[string]struct{}
}

// NewRegistry creates an empty registry for tenantID.
func NewRegistry(tenantID string) *Registry {
	return &Registry{tenantID: tenantID, set: make(map[string]struct{})}
}

// TenantID returns the owning tenant.
func (r *Registry) TenantID() string {
	return r.tenantID
}

// Register adds ids; already known ids are ignored.
func (r *Registry) Register(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if _, ok := r.set[id]; ok {
			continue
		}
		r.set[id] = struct{}{}
		r.ids = append(r.ids, id)
	}
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.set[id]
	return ok
}

// IDs returns a copy of the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.ids...)
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Registries owns one Registry per tenant.
type Registries struct {
	mu      sync.Mutex
	tenants map[string]*Registry
}

// NewRegistries creates an empty set of registries.
func NewRegistries() *Registries {
	return &Registries{tenants: make(map[string]*Registry)}
}

// Get returns the tenant's registry, creating an empty one if needed.
func (rs *Registries) Get(tenantID string) *Registry {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.tenants[tenantID]
	if !ok {
		r = NewRegistry(tenantID)
		rs.tenants[tenantID] = r
	}
	return r
}

// Rebuild replaces the tenant's registry with one holding ids. Readers that
// already hold the previous registry keep a consistent view.
func (rs *Registries) Rebuild(tenantID string, ids []string) *Registry {
	r := NewRegistry(tenantID)
	r.Register(ids...)
	rs.mu.Lock()
	rs.tenants[tenantID] = r
	rs.mu.Unlock()
	return r
}
