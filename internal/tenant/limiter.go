package tenant

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter admits requests per tenant according to the tenant's rate_limit.
// Limiters are created lazily and replaced when the configured rate changes.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*tenantLimiter
}

type tenantLimiter struct {
	perSecond int
	lim       *rate.Limiter
}

// NewLimiter creates an empty per-tenant limiter set.
func NewLimiter() *Limiter {
	return &Limiter{limiters: make(map[string]*tenantLimiter)}
}

// Allow returns ErrRateLimited when t has exhausted its rate. Tenants with a
// zero rate_limit are never limited.
func (l *Limiter) Allow(t Tenant) error {
	if t.RateLimit <= 0 {
		return nil
	}
	l.mu.Lock()
	tl, ok := l.limiters[t.ID]
	if !ok || tl.perSecond != t.RateLimit {
		tl = &tenantLimiter{
			perSecond: t.RateLimit,
			lim:       rate.NewLimiter(rate.Limit(t.RateLimit), t.RateLimit*2), // burst = 2s worth
		}
		l.limiters[t.ID] = tl
	}
	l.mu.Unlock()

	if !tl.lim.Allow() {
		return fmt.Errorf("%w: %s", ErrRateLimited, t.ID)
	}
	return nil
}
