// Package retry re-runs operations that fail transiently, sleeping with
// capped exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKING
// ══════════════════════════════════════════════════════════════════════════════

// markedError carries a caller's verdict on whether err may be retried.
type markedError struct {
	err   error
	retry bool
}

func (e *markedError) Error() string { return e.err.Error() }
func (e *markedError) Unwrap() error { return e.err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, retry: true}
}

// Permanent marks err as final. Do returns it unwrapped without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, retry: false}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var m *markedError
	return errors.As(err, &m) && m.retry
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var m *markedError
	return errors.As(err, &m) && !m.retry
}

// strip removes the outermost mark so callers see the underlying error.
func strip(err error) error {
	var m *markedError
	if errors.As(err, &m) {
		return m.err
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Config describes how often and how patiently an operation is re-run.
type Config struct {
	MaxAttempts  int           // total tries including the first
	InitialDelay time.Duration // wait before the second try
	MaxDelay     time.Duration // upper bound for any single wait
	Multiplier   float64       // growth factor per attempt
	JitterFactor float64       // +/- fraction applied to every wait

	// RetryIf decides which errors are transient. Nil trusts Retryable marks.
	RetryIf func(error) bool

	// OnRetry runs before every sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig is three quick tries.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

// Option adjusts a Config. Out-of-range values are ignored.
type Option func(*Config)

func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1 {
			c.Multiplier = m
		}
	}
}

func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.JitterFactor = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier applies one Config. Safe for concurrent use.
type Retrier struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Retrier from DefaultConfig and opts.
func New(opts ...Option) *Retrier {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retrier{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// MaxAttempts returns the attempt budget.
func (r *Retrier) MaxAttempts() int {
	return r.cfg.MaxAttempts
}

// Do runs op until it succeeds, fails permanently, the budget is spent or
// ctx ends. When ctx ends after a failure, the last failure is returned.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			if last != nil {
				return last
			}
			return ctx.Err()
		}

		err := op(ctx)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return strip(err)
		case !r.transient(err):
			return err
		case attempt >= r.cfg.MaxAttempts:
			return strip(err)
		}
		last = strip(err)

		wait := r.backoff(attempt)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return last
		case <-t.C:
		}
	}
}

func (r *Retrier) transient(err error) bool {
	if r.cfg.RetryIf != nil {
		return r.cfg.RetryIf(err)
	}
	return IsRetryable(err)
}

// backoff is InitialDelay * Multiplier^(attempt-1), capped and jittered.
func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.cfg.MaxDelay))

	if j := r.cfg.JitterFactor; j > 0 {
		r.mu.Lock()
		d += d * j * (2*r.rng.Float64() - 1)
		r.mu.Unlock()
	}
	return time.Duration(math.Max(d, 0))
}

// DoWith runs a value-returning op on r.
func DoWith[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// GuidanceRetrier paces repeated LLM requests for one side-effect report.
func GuidanceRetrier(maxAttempts int, initial, max time.Duration, opts ...Option) *Retrier {
	base := []Option{
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(initial),
		WithMaxDelay(max),
		WithMultiplier(2),
		WithJitter(0.2),
	}
	return New(append(base, opts...)...)
}

// StorageRetrier waits for a storage server that is still starting up.
// Every unmarked error counts as transient.
func StorageRetrier() *Retrier {
	return New(
		WithMaxAttempts(4),
		WithInitialDelay(250*time.Millisecond),
		WithMaxDelay(2*time.Second),
		WithJitter(0.05),
		WithRetryIf(func(err error) bool { return !IsPermanent(err) }),
	)
}
