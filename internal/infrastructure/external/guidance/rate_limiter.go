package guidance

import (
	"context"
	"sync"
	"time"

	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter spaces out completion requests so a burst of side-effect
// reports cannot exhaust the API quota.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64 // tokens per second
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration

	// blockedUntil is set after the API answered 429.
	blockedUntil time.Time

	now func() time.Time
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained request rate. Zero disables limiting.
	RequestsPerMinute float64

	// Burst is how many requests may go out back to back.
	Burst int

	// WaitTimeout is the longest a caller waits for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns defaults for a single patient.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 20,
		Burst:             3,
		WaitTimeout:       30 * time.Second,
	}
}

// NewRateLimiter creates a limiter with a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	now := time.Now()
	return &RateLimiter{
		maxTokens:   float64(cfg.Burst),
		refillRate:  cfg.RequestsPerMinute / 60,
		tokens:      float64(cfg.Burst),
		lastRefill:  now,
		waitTimeout: cfg.WaitTimeout,
		now:         time.Now,
	}
}

// Wait blocks until a request may be sent. It fails with
// ErrGuidanceRateLimited when the wait would exceed the configured timeout.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.refillRate <= 0 {
		return nil
	}

	deadline := rl.now().Add(rl.waitTimeout)
	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if rl.waitTimeout > 0 && rl.now().Add(wait).After(deadline) {
			return shared.ErrGuidanceRateLimited
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RecordRateLimitHit empties the bucket and pauses requests for retryAfter.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	rl.lastRefill = rl.now()
	if retryAfter > 0 {
		rl.blockedUntil = rl.now().Add(retryAfter)
	}
}

// Available returns the current token count.
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Before(rl.blockedUntil) {
		return rl.blockedUntil.Sub(now), false
	}

	rl.refill()
	if rl.tokens < 1 {
		needed := 1 - rl.tokens
		return time.Duration(needed / rl.refillRate * float64(time.Second)), false
	}

	rl.tokens--
	return 0, true
}

// refill must be called with the lock held.
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens = min(rl.maxTokens, rl.tokens+elapsed*rl.refillRate)
	rl.lastRefill = now
}
