package proactive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	nexusotel "github.com/dativo-io/nexus/internal/otel"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/proactive")

// Result lists the job ids handled by one tick.
type Result struct {
	Executed []string `json:"executed"`
	Skipped  []string `json:"skipped"`
	Failed   []string `json:"failed"`
}

// counterRetentionDays is how many days behind the newest tick a day's
// send counters are kept. Ticks for days inside the window keep their count.
const counterRetentionDays = 7

type sentKey struct {
	tenantID string
	name     string
	day      string
}

// Scheduler evaluates due jobs against consent and frequency caps.
type Scheduler struct {
	registry *Registry
	consent  *ConsentStore

	mu        sync.Mutex
	sent      map[sentKey]int
	inFlight  map[string]bool
	newestDay string

	cron *cron.Cron
}

// NewScheduler creates a scheduler over registry and consent.
func NewScheduler(registry *Registry, consent *ConsentStore) *Scheduler {
	return &Scheduler{
		registry: registry,
		consent:  consent,
		sent:     make(map[sentKey]int),
		inFlight: make(map[string]bool),
	}
}

// RunOnce handles every job due at now. Jobs without consent or over the
// day's cap are skipped and stay registered. Executed jobs are removed; a
// job whose callback fails stays registered and does not count against the
// cap. The day is now's calendar date in now's location.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) Result {
	ctx, span := tracer.Start(ctx, "proactive.run_once")
	defer span.End()

	day := now.Format(time.DateOnly)
	s.prune(now)

	res := Result{Executed: []string{}, Skipped: []string{}, Failed: []string{}}
	for _, job := range s.registry.Due(now) {
		consent := s.consent.Get(job.TenantID, job.Name)
		if !consent.OptedIn {
			s.skip(&res, job, "not_opted_in")
			continue
		}

		key := sentKey{tenantID: job.TenantID, name: job.Name, day: day}
		ok, gone := s.reserve(job.ID, key, consent.FrequencyCapPerDay)
		if gone {
			continue
		}
		if !ok {
			s.skip(&res, job, "frequency_cap")
			continue
		}

		err := s.execute(ctx, job)
		s.release(job.ID, key, err == nil)
		if err != nil {
			log.Error().Err(err).
				Str("tenant_id", job.TenantID).
				Str("job_id", job.ID).
				Msg("proactive_job_failed")
			res.Failed = append(res.Failed, job.ID)
			continue
		}
		res.Executed = append(res.Executed, job.ID)
		log.Info().
			Str("tenant_id", job.TenantID).
			Str("job_id", job.ID).
			Str("name", job.Name).
			Msg("proactive_job_executed")
	}

	span.SetAttributes(
		attribute.Int("proactive.executed", len(res.Executed)),
		attribute.Int("proactive.skipped", len(res.Skipped)),
		attribute.Int("proactive.failed", len(res.Failed)),
	)
	return res
}

func (s *Scheduler) skip(res *Result, job Job, reason string) {
	res.Skipped = append(res.Skipped, job.ID)
	log.Debug().
		Str("tenant_id", job.TenantID).
		Str("job_id", job.ID).
		Str("reason", reason).
		Msg("proactive_job_skipped")
}

// reserve claims one send of key's daily allowance for job. gone reports a
// job that is running in another tick or was already executed.
func (s *Scheduler) reserve(jobID string, key sentKey, capPerDay int) (ok, gone bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[jobID] {
		return false, true
	}
	if _, registered := s.registry.Get(jobID); !registered {
		return false, true
	}
	if s.sent[key] >= capPerDay {
		return false, false
	}
	s.inFlight[jobID] = true
	s.sent[key]++
	return true, false
}

// release ends a run. Executed jobs leave the registry before the in-flight
// mark is cleared so a concurrent tick cannot pick them up again.
func (s *Scheduler) release(jobID string, key sentKey, sent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sent {
		s.registry.Remove(jobID)
	}
	delete(s.inFlight, jobID)
	if !sent {
		s.sent[key]--
		if s.sent[key] <= 0 {
			delete(s.sent, key)
		}
	}
}

// prune drops counters more than counterRetentionDays behind the newest
// day seen. A tick for an earlier day never prunes.
func (s *Scheduler) prune(now time.Time) {
	day := now.Format(time.DateOnly)
	s.mu.Lock()
	defer s.mu.Unlock()
	if day <= s.newestDay {
		return
	}
	s.newestDay = day
	cutoff := now.AddDate(0, 0, -counterRetentionDays).Format(time.DateOnly)
	for k := range s.sent {
		if k.day < cutoff {
			delete(s.sent, k)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	if job.Callback == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return job.Callback(ctx)
}

// SentToday returns how often (tenantID, name) was contacted on now's day.
func (s *Scheduler) SentToday(tenantID, name string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[sentKey{tenantID: tenantID, name: name, day: now.Format(time.DateOnly)}]
}

// Start runs RunOnce on the standard 5-field cron spec (e.g. "* * * * *").
// A tick still running when the next one fires is skipped.
func (s *Scheduler) Start(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		res := s.RunOnce(ctx, time.Now())
		if len(res.Executed)+len(res.Failed) > 0 {
			log.Info().
				Int("executed", len(res.Executed)).
				Int("skipped", len(res.Skipped)).
				Int("failed", len(res.Failed)).
				Msg("proactive_tick")
		}
	})
	if err != nil {
		return fmt.Errorf("registering proactive cron %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the cron trigger and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}
