package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-signing-key-1234567890123456"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"), testKey)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, tenant string, at time.Time) *DecisionRecord {
	return &DecisionRecord{
		RequestID:         id,
		TenantID:          tenant,
		Channel:           "web",
		SenderID:          "u1",
		InputText:         "mail max@example.com",
		RedactedInputText: "mail [EMAIL_1]",
		PredictedIntent:   "faq",
		Tier:              "tier_1",
		RiskLevel:         "low",
		Confidence:        0.9,
		Source:            "keyword",
		ToolsConsidered:   []string{"kb_search"},
		GroundingPassed:   true,
		Citations:         []string{"KB-ACME-HOURS"},
		ResponseText:      "Mo-Fr [KB-ACME-HOURS]",
		LatencyMS:         12,
		TokenIn:           10,
		TokenOut:          4,
		CreatedAt:         at,
	}
}

func TestNewSigner(t *testing.T) {
	_, err := NewSigner("short")
	assert.Error(t, err)

	s, err := NewSigner("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	assert.Len(t, s.key, 32, "hex keys are decoded")
}

func TestSigner_DetectsTampering(t *testing.T) {
	s, err := NewSigner(testKey)
	require.NoError(t, err)
	rec := *record("r1", "acme", time.Unix(1700000000, 0).UTC())
	rec.Signature, err = s.Sign(rec)
	require.NoError(t, err)
	assert.True(t, s.Verify(rec))

	rec.ResponseText = "changed"
	assert.False(t, s.Verify(rec))
	assert.False(t, s.Verify(DecisionRecord{}))
}

func TestStore_RecordAndVerify(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := record("r1", "acme", time.Now().UTC())
	require.NoError(t, s.RecordDecision(ctx, rec))
	assert.NotEmpty(t, rec.Signature)

	got, err := s.GetDecision(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "mail [EMAIL_1]", got.RedactedInputText)
	assert.Equal(t, []string{"KB-ACME-HOURS"}, got.Citations)

	ok, err := s.Verify(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.GetDecision(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_IsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordDecision(ctx, record("r1", "acme", time.Now())))
	assert.Error(t, s.RecordDecision(ctx, record("r1", "acme", time.Now())), "request ids are unique")
}

func TestStore_ListDecisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordDecision(ctx, record("r1", "acme", base)))
	require.NoError(t, s.RecordDecision(ctx, record("r2", "beta", base.Add(time.Minute))))
	require.NoError(t, s.RecordDecision(ctx, record("r3", "acme", base.Add(2*time.Minute))))

	all, err := s.ListDecisions(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].RequestID)

	acme, err := s.ListDecisions(ctx, Filter{TenantID: "acme"})
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	limited, err := s.ListDecisions(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Events(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.AppendEvent(ctx, Event{EventID: "e1", TenantID: "acme", SenderID: "u", Channel: "web", Text: "hallo", CreatedAt: now}))
	require.NoError(t, s.AppendEvent(ctx, Event{EventID: "e2", TenantID: "beta", SenderID: "u", Channel: "web", Text: "hi", CreatedAt: now}))

	evs, err := s.ListEvents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "hallo", evs[0].Text)
	assert.True(t, now.Equal(evs[0].CreatedAt))

	evs, err = s.ListEvents(ctx, "")
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	evs, err = s.ListEvents(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	rec := record("r1", "acme", time.Now())
	require.NoError(t, m.RecordDecision(ctx, rec))
	rec.Citations[0] = "mutated"

	got, err := m.ListDecisions(ctx, Filter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "KB-ACME-HOURS", got[0].Citations[0], "stored records are copies")

	none, err := m.ListDecisions(ctx, Filter{TenantID: "beta"})
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, m.AppendEvent(ctx, Event{EventID: "e1", TenantID: "acme"}))
	evs, err := m.ListEvents(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, []DecisionRecord{*record("r1", "acme", time.Unix(0, 0).UTC())}))
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	assert.Equal(t, "faq", rows[0]["predicted_intent"])
	assert.Equal(t, false, rows[0]["escalated"])
}
