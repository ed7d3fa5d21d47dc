package memory

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/nexus/internal/lexical"
)

// DefaultTopK is the number of snippets retrieved per message.
const DefaultTopK = 3

// Snippet is a retrieved knowledge fragment with its relevance score.
type Snippet struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// SnippetIndex stores retrievable snippets per tenant.
type SnippetIndex interface {
	Upsert(ctx context.Context, tenantID, id, text string) error
	Search(ctx context.Context, tenantID, query string, topK int) ([]Snippet, error)
	Reset(ctx context.Context, tenantID string) error
}

type indexed struct {
	id     string
	text   string
	tokens lexical.Set
}

// rank scores docs against query by lexical overlap and returns the topK
// positive matches, ties in insertion order.
func rank(query string, docs []indexed, topK int) []Snippet {
	q := lexical.Tokenize(query)
	if len(q) == 0 {
		return nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	var out []Snippet
	for _, d := range docs {
		if len(d.tokens) == 0 {
			continue
		}
		if score := lexical.Overlap(q, d.tokens); score > 0 {
			out = append(out, Snippet{ID: d.id, Text: d.text, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Index is an in-memory SnippetIndex.
type Index struct {
	mu      sync.RWMutex
	tenants map[string][]indexed
}

// NewIndex creates an empty in-memory index.
func NewIndex() *Index {
	return &Index{tenants: make(map[string][]indexed)}
}

// Upsert adds or replaces a snippet. A replaced snippet keeps its position.
// Slices handed to readers are never written in place: a replacement swaps
// in a copy, and appends only touch elements past a reader's length.
func (x *Index) Upsert(_ context.Context, tenantID, id, text string) error {
	doc := indexed{id: id, text: text, tokens: lexical.Tokenize(text)}
	x.mu.Lock()
	defer x.mu.Unlock()
	docs := x.tenants[tenantID]
	for i := range docs {
		if docs[i].id == id {
			next := append([]indexed(nil), docs...)
			next[i] = doc
			x.tenants[tenantID] = next
			return nil
		}
	}
	x.tenants[tenantID] = append(docs, doc)
	return nil
}

// Search implements SnippetIndex.
func (x *Index) Search(ctx context.Context, tenantID, query string, topK int) ([]Snippet, error) {
	_, span := tracer.Start(ctx, "memory.index.search",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	x.mu.RLock()
	docs := x.tenants[tenantID]
	x.mu.RUnlock()

	out := rank(query, docs, topK)
	span.SetAttributes(attribute.Int("memory.snippets", len(out)))
	snippetSearches.Add(ctx, 1)
	return out, nil
}

// Reset drops every snippet of the tenant.
func (x *Index) Reset(_ context.Context, tenantID string) error {
	x.mu.Lock()
	delete(x.tenants, tenantID)
	x.mu.Unlock()
	return nil
}
