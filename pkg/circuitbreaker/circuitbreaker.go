// Package circuitbreaker stops calls to a failing remote service for a cool-down
// period, then lets a few trial calls through before resuming normal traffic.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

type settings struct {
	failures    int // consecutive failures that open the circuit
	successes   int // half-open successes that close it
	coolDown    time.Duration
	trials      int // concurrent half-open calls
	onChange    func(name string, from, to State)
	countsAsErr func(error) bool
	now         func() time.Time
}

// Option tunes a breaker. Non-positive numbers keep the default.
type Option func(*settings)

func WithFailureThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.failures = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.successes = n
		}
	}
}

// WithTimeout sets how long the circuit stays open before a trial call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.coolDown = d
		}
	}
}

func WithMaxHalfOpenRequests(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.trials = n
		}
	}
}

func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(s *settings) { s.onChange = fn }
}

// WithIsFailure decides which errors count against the service.
func WithIsFailure(fn func(error) bool) Option {
	return func(s *settings) { s.countsAsErr = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	name string
	set  settings

	mu       sync.Mutex
	state    State
	streak   int // consecutive failures when closed, successes when half-open
	openedAt time.Time
	inFlight int // half-open trial calls admitted
}

// New creates a closed breaker: 5 failures open it for 30s, and two trial
// successes close it again.
func New(name string, opts ...Option) *CircuitBreaker {
	set := settings{failures: 5, successes: 2, coolDown: 30 * time.Second, trials: 1, now: time.Now}
	for _, opt := range opts {
		opt(&set)
	}
	return &CircuitBreaker{name: name, set: set}
}

// GuidanceBreaker guards the guidance LLM. One trial success closes it and a
// cancelled request is not the service's fault.
func GuidanceBreaker(threshold int, coolDown time.Duration, trials int, onChange func(name string, from, to State)) *CircuitBreaker {
	return New("guidance-llm",
		WithFailureThreshold(threshold),
		WithSuccessThreshold(1),
		WithTimeout(coolDown),
		WithMaxHalfOpenRequests(trials),
		WithOnStateChange(onChange),
		WithIsFailure(func(err error) bool { return !errors.Is(err, context.Canceled) }),
	)
}

// Execute runs fn unless the circuit rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.set.now().Sub(cb.openedAt) < cb.set.coolDown {
			return ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
		cb.inFlight = 1
	case StateHalfOpen:
		if cb.inFlight >= cb.set.trials {
			return ErrTooManyRequests
		}
		cb.inFlight++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil
	if failed && cb.set.countsAsErr != nil {
		failed = cb.set.countsAsErr(err)
	}

	switch {
	case failed && cb.state == StateHalfOpen:
		cb.open()
	case failed:
		cb.streak++
		if cb.streak >= cb.set.failures {
			cb.open()
		}
	case cb.state == StateHalfOpen:
		cb.streak++
		if cb.streak >= cb.set.successes {
			cb.moveTo(StateClosed)
		}
	default:
		cb.streak = 0
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.set.now()
	cb.moveTo(StateOpen)
}

func (cb *CircuitBreaker) moveTo(to State) {
	from := cb.state
	cb.state, cb.streak, cb.inFlight = to, 0, 0
	if from != to && cb.set.onChange != nil {
		cb.set.onChange(cb.name, from, to)
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Err returns ErrCircuitOpen while the circuit rejects calls, else nil.
// It fits a health check signature once wrapped.
func (cb *CircuitBreaker) Err() error {
	if cb.State() == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

func (cb *CircuitBreaker) Name() string { return cb.name }
