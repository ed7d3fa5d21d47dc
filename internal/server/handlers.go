package server

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/nexus/internal/audit"
	"github.com/dativo-io/nexus/internal/pipeline"
	"github.com/dativo-io/nexus/internal/proactive"
	"github.com/dativo-io/nexus/internal/requestctx"
	"github.com/dativo-io/nexus/internal/routing"
	"github.com/dativo-io/nexus/internal/tenant"
)

const maxDecisionLimit = 1000

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{"pipeline": "ok", "audit": "ok"}
		if s.jobs == nil {
			components["proactive"] = "disabled"
		} else {
			components["proactive"] = "ok"
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg pipeline.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	tenantID, ok := s.tenantFor(w, r, msg.TenantID)
	if !ok {
		return
	}
	msg.TenantID = tenantID
	msg.Text = s.sanitize(msg.Text)
	if msg.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if msg.SenderID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sender_id is required")
		return
	}
	if msg.RequestID == "" {
		msg.RequestID = middleware.GetReqID(r.Context())
	}
	msg.Membership = nil

	out, err := s.processor.Process(r.Context(), msg)
	if err != nil {
		status, code := statusFor(err)
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("tenant_id", tenantID).Msg("message_processing_error")
		}
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// sanitize strips markup from channel text. bluemonday escapes entities,
// which are turned back into plain characters.
func (s *Server) sanitize(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
}

// statusFor maps pipeline errors to HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, tenant.ErrInvalidID):
		return http.StatusBadRequest, "invalid_tenant_id"
	case errors.Is(err, tenant.ErrNotFound):
		return http.StatusNotFound, "tenant_not_found"
	case errors.Is(err, tenant.ErrConfig), errors.Is(err, routing.ErrEmptyCatalog):
		return http.StatusUnprocessableEntity, "tenant_config_error"
	case errors.Is(err, tenant.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limit_exceeded"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// tenantFor resolves the effective tenant: the authenticated tenant when
// present (a conflicting requested tenant is forbidden), else requested.
func (s *Server) tenantFor(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	bound := requestctx.TenantID(r.Context())
	switch {
	case bound != "" && requested != "" && requested != bound:
		writeError(w, http.StatusForbidden, "forbidden", "API key is not valid for tenant "+requested)
		return "", false
	case bound != "":
		return bound, true
	default:
		return requested, true
	}
}

// requireTenant is tenantFor for endpoints that always act on one tenant:
// the id must be present and well formed.
func (s *Server) requireTenant(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	tenantID, ok := s.tenantFor(w, r, requested)
	if !ok {
		return "", false
	}
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return "", false
	}
	if err := tenant.ValidateID(tenantID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_tenant_id", err.Error())
		return "", false
	}
	return tenantID, true
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.requireTenant(w, r, r.URL.Query().Get("tenant_id"))
	if !ok {
		return
	}
	events, err := s.events.ListEvents(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events, "count": len(events)})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, ok := s.tenantFor(w, r, q.Get("tenant_id"))
	if !ok {
		return
	}
	f := audit.Filter{TenantID: tenantID, Limit: 100}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		f.Limit = min(n, maxDecisionLimit)
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", key+" must be RFC3339")
			return
		}
		*dst = t
	}
	recs, err := s.decisions.ListDecisions(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if recs == nil {
		recs = []audit.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decisions": recs, "count": len(recs)})
}

type consentRequest struct {
	TenantID           string `json:"tenant_id"`
	Name               string `json:"name"`
	OptedIn            bool   `json:"opted_in"`
	FrequencyCapPerDay *int   `json:"frequency_cap_per_day"`
}

func (s *Server) handleConsentSet(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	tenantID, ok := s.requireTenant(w, r, req.TenantID)
	if !ok {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	capPerDay := proactive.DefaultFrequencyCap
	if req.FrequencyCapPerDay != nil {
		if *req.FrequencyCapPerDay < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "frequency_cap_per_day must not be negative")
			return
		}
		capPerDay = *req.FrequencyCapPerDay
	}
	c := s.consent.Set(tenantID, req.Name, req.OptedIn, capPerDay)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleConsentGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, ok := s.requireTenant(w, r, q.Get("tenant_id"))
	if !ok {
		return
	}
	if q.Get("name") == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	writeJSON(w, http.StatusOK, s.consent.Get(tenantID, q.Get("name")))
}

type jobRequest struct {
	TenantID string    `json:"tenant_id"`
	Name     string    `json:"name"`
	Channel  string    `json:"channel"`
	Text     string    `json:"text"`
	RunAt    time.Time `json:"run_at"`
}

// handleJobCreate schedules an outreach message. Delivery to the channel
// adapter is outside nexus; executing the job appends the outbound message
// to the tenant's event log, where adapters pick it up.
func (s *Server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	tenantID, ok := s.requireTenant(w, r, req.TenantID)
	if !ok {
		return
	}
	req.Text = s.sanitize(req.Text)
	if req.Name == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name and text are required")
		return
	}
	if req.Channel == "" {
		req.Channel = tenant.DefaultChannel
	}
	if req.RunAt.IsZero() {
		req.RunAt = s.now()
	}

	job := proactive.Job{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Name:     req.Name,
		RunAt:    req.RunAt.UTC(),
	}
	events, now := s.events, s.now
	job.Callback = func(ctx context.Context) error {
		return events.AppendEvent(ctx, audit.Event{
			EventID:   uuid.New().String(),
			TenantID:  tenantID,
			SenderID:  "proactive:" + req.Name,
			Channel:   req.Channel,
			Text:      req.Text,
			CreatedAt: now().UTC(),
		})
	}
	s.jobs.Register(job)
	log.Info().
		Str("tenant_id", tenantID).
		Str("job_id", job.ID).
		Str("name", job.Name).
		Time("run_at", job.RunAt).
		Msg("proactive_job_registered")
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.requireTenant(w, r, r.URL.Query().Get("tenant_id"))
	if !ok {
		return
	}
	jobs := s.jobs.List(tenantID)
	if jobs == nil {
		jobs = []proactive.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}
