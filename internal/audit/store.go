package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	nexusotel "github.com/dativo-io/nexus/internal/otel"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/audit")

// Store persists signed decision records and conversation events in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL UNIQUE,
	tenant_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	record_json TEXT NOT NULL,
	signature TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_tenant ON decisions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);

CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL UNIQUE,
	tenant_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_tenant ON events(tenant_id);
`

// NewStore opens (or creates) the audit database at dbPath.
func NewStore(dbPath, signingKey string) (*Store, error) {
	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}
	return &Store{db: db, signer: signer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordDecision signs rec (setting rec.Signature) and appends it.
func (s *Store) RecordDecision(ctx context.Context, rec *DecisionRecord) error {
	ctx, span := tracer.Start(ctx, "audit.record_decision",
		trace.WithAttributes(
			nexusotel.RequestID.String(rec.RequestID),
			nexusotel.TenantID.String(rec.TenantID),
		))
	defer span.End()

	sig, err := s.signer.Sign(*rec)
	if err != nil {
		return err
	}
	rec.Signature = sig
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (request_id, tenant_id, created_at, record_json, signature) VALUES (?, ?, ?, ?, ?)`,
		rec.RequestID, rec.TenantID, rec.CreatedAt.UTC(), string(data), sig)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing decision %s: %w", rec.RequestID, err)
	}
	return nil
}

// GetDecision returns the record for requestID.
func (s *Store) GetDecision(ctx context.Context, requestID string) (*DecisionRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record_json FROM decisions WHERE request_id = ?`, requestID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying decision: %w", err)
	}
	var rec DecisionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling decision: %w", err)
	}
	return &rec, nil
}

// Verify checks the signature of a stored decision.
func (s *Store) Verify(ctx context.Context, requestID string) (bool, error) {
	rec, err := s.GetDecision(ctx, requestID)
	if err != nil {
		return false, err
	}
	return s.signer.Verify(*rec), nil
}

// ListDecisions returns matching records, oldest first.
func (s *Store) ListDecisions(ctx context.Context, f Filter) ([]DecisionRecord, error) {
	ctx, span := tracer.Start(ctx, "audit.list_decisions",
		trace.WithAttributes(nexusotel.TenantID.String(f.TenantID)))
	defer span.End()

	query := `SELECT record_json FROM decisions WHERE 1=1`
	args := []interface{}{}
	if f.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, f.TenantID)
	}
	if !f.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, f.To.UTC())
	}
	query += ` ORDER BY seq ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		var rec DecisionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	span.SetAttributes(attribute.Int("audit.decision_count", len(out)))
	return out, rows.Err()
}

// AppendEvent stores ev.
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, tenant_id, sender_id, channel, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.TenantID, ev.SenderID, ev.Channel, ev.Text, ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("storing event %s: %w", ev.EventID, err)
	}
	return nil
}

// ListEvents returns events oldest first; empty tenantID lists all tenants.
func (s *Store) ListEvents(ctx context.Context, tenantID string) ([]Event, error) {
	query := `SELECT event_id, tenant_id, sender_id, channel, text, created_at FROM events`
	args := []interface{}{}
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var ev Event
		var created time.Time
		if err := rows.Scan(&ev.EventID, &ev.TenantID, &ev.SenderID, &ev.Channel, &ev.Text, &created); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.CreatedAt = created
		out = append(out, ev)
	}
	return out, rows.Err()
}
