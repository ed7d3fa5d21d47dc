// Package proactive runs scheduled outreach jobs subject to per-recipient
// consent and a per-day frequency cap.
package proactive

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Callback performs the outreach of a job.
type Callback func(ctx context.Context) error

// Job is a single-shot outreach scheduled for RunAt. Name identifies the
// campaign or user the consent applies to.
type Job struct {
	ID       string    `json:"job_id"`
	TenantID string    `json:"tenant_id"`
	Name     string    `json:"name"`
	RunAt    time.Time `json:"run_at"`
	Callback Callback  `json:"-"`
}

// Registry holds pending jobs.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Job)}
}

// Register adds or replaces a job.
func (r *Registry) Register(j Job) {
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
}

// Remove drops a job; unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Get returns a pending job.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Len returns the number of pending jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Due returns the jobs with RunAt at or before now, earliest first (ties by
// id).
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	var due []Job
	for _, j := range r.jobs {
		if !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	r.mu.Unlock()
	sortJobs(due)
	return due
}

// List returns a tenant's pending jobs, earliest first. An empty tenant id
// lists every job.
func (r *Registry) List(tenantID string) []Job {
	r.mu.Lock()
	var out []Job
	for _, j := range r.jobs {
		if tenantID == "" || j.TenantID == tenantID {
			out = append(out, j)
		}
	}
	r.mu.Unlock()
	sortJobs(out)
	return out
}

func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].RunAt.Equal(jobs[b].RunAt) {
			return jobs[a].ID < jobs[b].ID
		}
		return jobs[a].RunAt.Before(jobs[b].RunAt)
	})
}
