package memory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/nexus/internal/lexical"
)

const snippetSchema = `
CREATE TABLE IF NOT EXISTS memory_snippets (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    snippet_id TEXT NOT NULL,
    text TEXT NOT NULL,
    UNIQUE(tenant_id, snippet_id)
);

CREATE INDEX IF NOT EXISTS idx_snippets_tenant ON memory_snippets(tenant_id, seq);
`

// SQLiteIndex is a SnippetIndex persisted in SQLite. Scoring happens in
// process with the same lexical overlap as Index.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (or creates) the snippet database at dbPath.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening snippet database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), snippetSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snippet schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Close releases the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Upsert implements SnippetIndex. A replaced snippet keeps its position.
func (s *SQLiteIndex) Upsert(ctx context.Context, tenantID, id, text string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memory_snippets (tenant_id, snippet_id, text) VALUES (?, ?, ?)
ON CONFLICT(tenant_id, snippet_id) DO UPDATE SET text = excluded.text`,
		tenantID, id, text)
	if err != nil {
		return fmt.Errorf("upserting snippet %s: %w", id, err)
	}
	return nil
}

// Search implements SnippetIndex.
func (s *SQLiteIndex) Search(ctx context.Context, tenantID, query string, topK int) ([]Snippet, error) {
	ctx, span := tracer.Start(ctx, "memory.sqlite.search",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT snippet_id, text FROM memory_snippets WHERE tenant_id = ? ORDER BY seq`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying snippets: %w", err)
	}
	defer rows.Close()

	var docs []indexed
	for rows.Next() {
		var d indexed
		if err := rows.Scan(&d.id, &d.text); err != nil {
			return nil, fmt.Errorf("scanning snippet: %w", err)
		}
		d.tokens = lexical.Tokenize(d.text)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snippets: %w", err)
	}

	out := rank(query, docs, topK)
	span.SetAttributes(attribute.Int("memory.snippets", len(out)))
	snippetSearches.Add(ctx, 1)
	return out, nil
}

// Reset implements SnippetIndex.
func (s *SQLiteIndex) Reset(ctx context.Context, tenantID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_snippets WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("resetting snippets for %s: %w", tenantID, err)
	}
	return nil
}
