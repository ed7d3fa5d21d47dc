// Package audit keeps the append-only decision log and the conversation
// event history. Decision records are HMAC-signed when persisted to SQLite.
package audit

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown record ids.
var ErrNotFound = errors.New("audit record not found")

// DecisionRecord is the flat log entry written once per processed message.
type DecisionRecord struct {
	RequestID         string    `json:"request_id"`
	TenantID          string    `json:"tenant_id"`
	Channel           string    `json:"channel"`
	SenderID          string    `json:"sender_id"`
	InputText         string    `json:"input_text"`
	RedactedInputText string    `json:"redacted_input_text"`
	PredictedIntent   string    `json:"predicted_intent"`
	Tier              string    `json:"tier"`
	RiskLevel         string    `json:"risk_level"`
	Confidence        float64   `json:"confidence"`
	Source            string    `json:"source"`
	ToolsConsidered   []string  `json:"tools_considered"`
	ToolsCalled       []string  `json:"tools_called"`
	GroundingPassed   bool      `json:"grounding_passed"`
	Citations         []string  `json:"citations"`
	ResponseText      string    `json:"response_text"`
	LatencyMS         int64     `json:"latency_ms"`
	TokenIn           int       `json:"token_in"`
	TokenOut          int       `json:"token_out"`
	CostUSD           float64   `json:"cost_usd"`
	Escalated         bool      `json:"escalated"`
	Alerts            []string  `json:"alerts,omitempty"`
	// ExpectedIntent is filled in by reviewers for calibration.
	ExpectedIntent string    `json:"expected_intent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Signature      string    `json:"signature,omitempty"`
}

// Event is one inbound message as received, before any processing.
type Event struct {
	EventID   string    `json:"event_id"`
	TenantID  string    `json:"tenant_id"`
	SenderID  string    `json:"sender_id"`
	Channel   string    `json:"channel"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows ListDecisions. Zero values mean "any".
type Filter struct {
	TenantID string
	From     time.Time
	To       time.Time
	Limit    int
}

// Sink receives decision records. Implementations are append-only.
type Sink interface {
	RecordDecision(ctx context.Context, rec *DecisionRecord) error
	ListDecisions(ctx context.Context, f Filter) ([]DecisionRecord, error)
}

// EventLog stores conversation events.
type EventLog interface {
	AppendEvent(ctx context.Context, ev Event) error
	// ListEvents returns events oldest first; empty tenantID lists all.
	ListEvents(ctx context.Context, tenantID string) ([]Event, error)
}

func (f Filter) match(rec *DecisionRecord) bool {
	if f.TenantID != "" && rec.TenantID != f.TenantID {
		return false
	}
	if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.CreatedAt.After(f.To) {
		return false
	}
	return true
}
