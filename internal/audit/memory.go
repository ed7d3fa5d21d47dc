package audit

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Sink and EventLog.
type MemoryStore struct {
	mu        sync.RWMutex
	decisions []DecisionRecord
	events    []Event
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// RecordDecision appends a copy of rec.
func (m *MemoryStore) RecordDecision(_ context.Context, rec *DecisionRecord) error {
	m.mu.Lock()
	m.decisions = append(m.decisions, cloneRecord(rec))
	m.mu.Unlock()
	return nil
}

// ListDecisions returns matching records, oldest first.
func (m *MemoryStore) ListDecisions(_ context.Context, f Filter) ([]DecisionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DecisionRecord
	for i := range m.decisions {
		if !f.match(&m.decisions[i]) {
			continue
		}
		out = append(out, cloneRecord(&m.decisions[i]))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// AppendEvent appends ev.
func (m *MemoryStore) AppendEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

// ListEvents returns a tenant's events, oldest first.
func (m *MemoryStore) ListEvents(_ context.Context, tenantID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Event{}
	for _, ev := range m.events {
		if tenantID == "" || ev.TenantID == tenantID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func cloneRecord(rec *DecisionRecord) DecisionRecord {
	c := *rec
	c.ToolsConsidered = append([]string(nil), rec.ToolsConsidered...)
	c.ToolsCalled = append([]string(nil), rec.ToolsCalled...)
	c.Citations = append([]string(nil), rec.Citations...)
	c.Alerts = append([]string(nil), rec.Alerts...)
	return c
}
