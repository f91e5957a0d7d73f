package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RateLimiter spaces requests per domain and adapts the spacing to how the
// domain responds. Successes decay the delay back toward the base, failures
// grow it, rate-limit responses grow it aggressively.
type RateLimiter struct {
	baseDelay time.Duration
	maxDelay  time.Duration

	mu       sync.Mutex
	delays   map[string]time.Duration
	lastSeen map[string]time.Time
	failures map[string]int
}

// NewRateLimiter creates a limiter with the given base and ceiling delays.
// Zero values fall back to 2s base and 30s ceiling.
func NewRateLimiter(base, maxDelay time.Duration) *RateLimiter {
	if base <= 0 {
		base = 2 * time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &RateLimiter{
		baseDelay: base,
		maxDelay:  maxDelay,
		delays:    make(map[string]time.Duration),
		lastSeen:  make(map[string]time.Time),
		failures:  make(map[string]int),
	}
}

// Wait blocks until the domain's delay since its previous request has
// elapsed, or the context is canceled. The first request to a domain does
// not wait.
func (r *RateLimiter) Wait(ctx context.Context, domain string) error {
	r.mu.Lock()
	delay := r.delays[domain]
	if delay == 0 {
		delay = r.baseDelay
		r.delays[domain] = delay
	}
	last, seen := r.lastSeen[domain]
	r.lastSeen[domain] = time.Now()
	r.mu.Unlock()

	if !seen {
		return nil
	}

	// jitter the delay so request spacing is not perfectly regular
	jittered := time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4)) //nolint:gosec // non-cryptographic randomness is fine
	wait := jittered - time.Since(last)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RecordSuccess decays the domain's delay toward the base and resets its
// failure count
func (r *RateLimiter) RecordSuccess(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay := r.delays[domain]
	if delay == 0 {
		delay = r.baseDelay
	}
	delay = time.Duration(float64(delay) * 0.8)
	if delay < r.baseDelay {
		delay = r.baseDelay
	}
	r.delays[domain] = delay
	r.failures[domain] = 0
}

// RecordFailure grows the domain's delay. Rate-limited responses grow it
// much faster than ordinary failures, and consecutive failures compound.
func (r *RateLimiter) RecordFailure(domain string, rateLimited bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures[domain]++
	fails := float64(r.failures[domain])

	delay := r.delays[domain]
	if delay == 0 {
		delay = r.baseDelay
	}

	var factor float64
	if rateLimited {
		factor = 2.0 + 0.5*fails
	} else {
		factor = 1.2 + 0.1*fails
	}

	delay = time.Duration(float64(delay) * factor)
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	r.delays[domain] = delay
}

// Delay returns the current un-jittered delay for a domain, for reporting
func (r *RateLimiter) Delay(domain string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.delays[domain]; d > 0 {
		return d
	}
	return r.baseDelay
}

// Failures returns the consecutive failure count for a domain
func (r *RateLimiter) Failures(domain string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[domain]
}

// DomainDelay is the reported limiter state for one domain
type DomainDelay struct {
	DelayMs  int64 `json:"delay_ms"`
	Failures int   `json:"failures"`
}

// Stats returns current delays and failure counts for every tracked domain
func (r *RateLimiter) Stats() map[string]DomainDelay {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]DomainDelay, len(r.delays))
	for domain, d := range r.delays {
		out[domain] = DomainDelay{DelayMs: d.Milliseconds(), Failures: r.failures[domain]}
	}
	return out
}
