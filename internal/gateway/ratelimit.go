package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/time/rate"
)

const (
	// authenticatedQuota is the hourly quota GitHub grants an
	// authenticated token; assumed until the first response reports the
	// real numbers.
	authenticatedQuota = 5000

	// proactiveRate throttles our own request rate to ~1.2 req/sec
	// (4320/hr), staying under the quota even for very long sessions.
	proactiveRate = 1.2

	// minRemaining is the safety buffer: once the reported remaining
	// quota drops to this or below, we sleep until the reset time rather
	// than burn the last requests.
	minRemaining = 50
)

// RateLimiter tracks the shared primary quota for the single authenticated
// credential. It is process-scoped: initialized optimistically at session
// start, updated from every API response's headers, never persisted. All
// workers funnel through Wait so the check-then-request sequence is a single
// serialization point and concurrent workers cannot overshoot the quota.
type RateLimiter struct {
	mu        sync.Mutex
	remaining int
	limit     int
	resetAt   time.Time
	bucket    *rate.Limiter
}

// NewRateLimiter returns a limiter that assumes a full quota until the first
// response reports otherwise.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		remaining: authenticatedQuota,
		limit:     authenticatedQuota,
		bucket:    rate.NewLimiter(rate.Limit(proactiveRate), 1),
	}
}

// Wait blocks until it is safe to issue a request: first the proactive token
// bucket, then the reactive quota check. When the remaining quota is at or
// below the safety buffer and the reset time has not passed, it sleeps until
// the reset. Cancellation of ctx aborts the wait.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	remaining := r.remaining
	resetAt := r.resetAt
	r.mu.Unlock()

	if remaining <= minRemaining && time.Now().Before(resetAt) {
		timer := time.NewTimer(time.Until(resetAt))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Update refreshes the quota state from a go-github response.
func (r *RateLimiter) Update(resp *github.Response) {
	if resp == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = resp.Rate.Remaining
	if resp.Rate.Limit > 0 {
		r.limit = resp.Rate.Limit
	}
	if !resp.Rate.Reset.IsZero() {
		r.resetAt = resp.Rate.Reset.Time
	}
}

// Snapshot returns the current remaining/limit/reset values.
func (r *RateLimiter) Snapshot() (remaining, limit int, resetAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.limit, r.resetAt
}
