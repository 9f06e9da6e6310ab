// Package messaging implements the in-process event bus that carries patient
// domain events from the store to notification handlers.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrEventBusClosed = errors.New("event bus is closed")
	ErrHandlerPanic   = errors.New("handler panicked")
	errNilHandler     = errors.New("handler cannot be nil")
	errNilEvent       = errors.New("event cannot be nil")
)

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	Logger *slog.Logger
}

// DefaultInMemoryEventBusConfig returns the default configuration.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{}
}

// InMemoryEventBus delivers every event synchronously on the publisher's
// goroutine, typed subscribers first. A failing or panicking handler is
// logged and counted; it never stops delivery to the rest.
type InMemoryEventBus struct {
	logger *slog.Logger

	mu          sync.RWMutex
	typed       map[shared.EventType][]shared.EventHandler
	global      []shared.EventHandler
	middlewares []Middleware
	closed      bool

	stats busCounters
}

// NewInMemoryEventBus creates a bus with panic recovery installed.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b := &InMemoryEventBus{
		logger: cfg.Logger.With("component", "event_bus"),
		typed:  make(map[shared.EventType][]shared.EventHandler),
		stats:  busCounters{published: make(map[shared.EventType]int64)},
	}
	b.middlewares = []Middleware{RecoveryMiddleware(b.logger)}
	return b
}

// Use appends a middleware. Middlewares wrap handlers in registration order.
func (b *InMemoryEventBus) Use(m Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, m)
}

// Subscribe implements shared.EventSubscriber.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, h shared.EventHandler) error {
	return b.subscribe(func() { b.typed[eventType] = append(b.typed[eventType], h) }, h)
}

// SubscribeAll implements shared.EventSubscriber.
func (b *InMemoryEventBus) SubscribeAll(h shared.EventHandler) error {
	return b.subscribe(func() { b.global = append(b.global, h) }, h)
}

func (b *InMemoryEventBus) subscribe(add func(), h shared.EventHandler) error {
	if h == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish implements shared.EventPublisher. Handler errors are not returned.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	targets := append(append([]shared.EventHandler(nil), b.typed[event.EventType()]...), b.global...)
	mws := append([]Middleware(nil), b.middlewares...)
	b.mu.RUnlock()

	b.stats.publish(event.EventType())

	for _, h := range targets {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		start := time.Now()
		err := h(event)
		b.stats.handled(time.Since(start), err)
		if err != nil {
			b.logger.Error("event handler failed", "event_type", event.EventType(), "error", err)
		}
	}
	return nil
}

// Close rejects further publishing and subscribing.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Stats returns the delivery counters.
func (b *InMemoryEventBus) Stats() BusStats {
	return b.stats.snapshot()
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps an event handler.
type Middleware func(shared.EventHandler) shared.EventHandler

// RecoveryMiddleware turns a handler panic into ErrHandlerPanic.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event handler panicked",
						"event_type", event.EventType(),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs each delivery at debug level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			logger.Debug("event delivered",
				"event_type", event.EventType(),
				"occurred_at", event.OccurredAt(),
				"duration", time.Since(start),
				"error", err,
			)
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// BusStats is a point-in-time view of the bus counters.
type BusStats struct {
	Published       map[shared.EventType]int64 `json:"published"`
	Deliveries      int64                      `json:"deliveries"`
	Failures        int64                      `json:"failures"`
	AverageDelivery string                     `json:"average_delivery"`
}

type busCounters struct {
	mu         sync.Mutex
	published  map[shared.EventType]int64
	deliveries int64
	failures   int64
	busy       time.Duration
}

func (c *busCounters) publish(t shared.EventType) {
	c.mu.Lock()
	c.published[t]++
	c.mu.Unlock()
}

func (c *busCounters) handled(d time.Duration, err error) {
	c.mu.Lock()
	c.deliveries++
	c.busy += d
	if err != nil {
		c.failures++
	}
	c.mu.Unlock()
}

func (c *busCounters) snapshot() BusStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := BusStats{
		Published:  make(map[shared.EventType]int64, len(c.published)),
		Deliveries: c.deliveries,
		Failures:   c.failures,
	}
	for k, v := range c.published {
		out.Published[k] = v
	}
	var avg time.Duration
	if c.deliveries > 0 {
		avg = c.busy / time.Duration(c.deliveries)
	}
	out.AverageDelivery = avg.String()
	return out
}
