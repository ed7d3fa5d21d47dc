// Package orchestration splits delegated requests into tasks, hands them to
// specialists under guardian review, and assembles their outputs.
package orchestration

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrTaskNotFound      = errors.New("task not found")
)

// Status is a task's position in its one-way lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusVetoed    Status = "vetoed"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusVetoed},
	StatusRunning: {StatusCompleted, StatusFailed, StatusVetoed},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Payload is what a specialist is asked to do.
type Payload struct {
	Text   string `json:"text"`
	Intent string `json:"intent"`
	Tier   string `json:"tier"`
}

// Task is one unit of delegated work.
type Task struct {
	ID        string    `json:"task_id"`
	RequestID string    `json:"request_id"`
	Status    Status    `json:"status"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Board tracks the tasks of in-flight requests.
type Board struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	byRequest map[string][]string
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{tasks: make(map[string]*Task), byRequest: make(map[string][]string)}
}

// Create adds a pending task.
func (b *Board) Create(taskID, requestID string, p Payload) Task {
	t := &Task{ID: taskID, RequestID: requestID, Status: StatusPending, Payload: p, CreatedAt: time.Now().UTC()}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tasks[taskID]; !exists {
		b.byRequest[requestID] = append(b.byRequest[requestID], taskID)
	}
	b.tasks[taskID] = t
	return *t
}

// Transition moves a task to status to.
func (b *Board) Transition(taskID string, to Status) (Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if !CanTransition(t.Status, to) {
		return *t, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, taskID, t.Status, to)
	}
	t.Status = to
	return *t, nil
}

// Get returns a task by id.
func (b *Board) Get(taskID string) (Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// ForRequest returns a request's tasks in creation order.
func (b *Board) ForRequest(requestID string) []Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.byRequest[requestID]
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, *b.tasks[id])
	}
	return out
}

// Forget drops a finished request's tasks.
func (b *Board) Forget(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.byRequest[requestID] {
		delete(b.tasks, id)
	}
	delete(b.byRequest, requestID)
}
