package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/dativo-io/nexus/internal/audit"
	"github.com/dativo-io/nexus/internal/otel"
	"github.com/dativo-io/nexus/internal/pipeline"
	"github.com/dativo-io/nexus/internal/proactive"
)

const defaultTimeout = 60 * time.Second

// Processor handles one inbound message. *pipeline.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, msg pipeline.Message) (*pipeline.Outcome, error)
}

// Server holds the dependencies of the HTTP API.
type Server struct {
	router      *chi.Mux
	processor   Processor
	events      audit.EventLog
	decisions   audit.Sink
	jobs        *proactive.Registry
	consent     *proactive.ConsentStore
	apiKeys     map[string]string
	corsOrigins []string
	sanitizer   *bluemonday.Policy
	startTime   time.Time
	now         func() time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAPIKeys requires an API key on the /v1 routes. apiKeys maps key to
// tenant id; the key's tenant wins over any tenant_id in the request.
func WithAPIKeys(apiKeys map[string]string) Option {
	return func(s *Server) { s.apiKeys = apiKeys }
}

// WithProactive exposes the outreach job registry and consent store.
func WithProactive(jobs *proactive.Registry, consent *proactive.ConsentStore) Option {
	return func(s *Server) { s.jobs, s.consent = jobs, consent }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithClock overrides time.Now for job scheduling.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer builds a Server around the message processor and the audit
// stores it writes to.
func NewServer(processor Processor, events audit.EventLog, decisions audit.Sink, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		processor:   processor,
		events:      events,
		decisions:   decisions,
		corsOrigins: []string{"*"},
		sanitizer:   bluemonday.StrictPolicy(),
		startTime:   time.Now(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the chi router with all middleware and routes.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/messages", s.handleMessage)
		r.Get("/v1/events", s.handleEvents)
		r.Get("/v1/decisions", s.handleDecisions)

		if s.jobs != nil && s.consent != nil {
			r.Put("/v1/proactive/consent", s.handleConsentSet)
			r.Get("/v1/proactive/consent", s.handleConsentGet)
			r.Post("/v1/proactive/jobs", s.handleJobCreate)
			r.Get("/v1/proactive/jobs", s.handleJobList)
		}
	})
	return r
}
