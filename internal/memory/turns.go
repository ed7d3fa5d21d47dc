// Package memory keeps per-session conversation turns, a per-tenant snippet
// index, and assembles both into a size-bounded context package.
package memory

import (
	"context"
	"sync"

	nexusotel "github.com/dativo-io/nexus/internal/otel"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/memory")

// DefaultMaxTurns is the number of turns retained per session.
const DefaultMaxTurns = 12

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnStore holds the most recent turns of each session. Appends to one
// session are serialized; different sessions proceed independently.
type TurnStore interface {
	Append(ctx context.Context, sessionID string, t Turn) error
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	Clear(ctx context.Context, sessionID string) error
}

// WorkingMemory is an in-process TurnStore that keeps at most maxTurns turns
// per session, evicting the oldest first.
type WorkingMemory struct {
	maxTurns int

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu    sync.Mutex
	turns []Turn
}

// NewWorkingMemory creates an in-process turn store. maxTurns <= 0 selects
// DefaultMaxTurns.
func NewWorkingMemory(maxTurns int) *WorkingMemory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &WorkingMemory{maxTurns: maxTurns, sessions: make(map[string]*session)}
}

func (w *WorkingMemory) session(id string) *session {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[id]
	if !ok {
		s = &session{}
		w.sessions[id] = s
	}
	return s
}

// Append adds t to the session, evicting the oldest turn when full.
func (w *WorkingMemory) Append(ctx context.Context, sessionID string, t Turn) error {
	s := w.session(sessionID)
	s.mu.Lock()
	s.turns = append(s.turns, t)
	if over := len(s.turns) - w.maxTurns; over > 0 {
		s.turns = append([]Turn(nil), s.turns[over:]...)
	}
	s.mu.Unlock()
	turnWrites.Add(ctx, 1)
	return nil
}

// Turns returns a copy of the session's retained turns, oldest first.
func (w *WorkingMemory) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s := w.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...), nil
}

// Clear forgets the session.
func (w *WorkingMemory) Clear(_ context.Context, sessionID string) error {
	w.mu.Lock()
	delete(w.sessions, sessionID)
	w.mu.Unlock()
	return nil
}
