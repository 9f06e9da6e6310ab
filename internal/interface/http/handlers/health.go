package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// Overall status values reported by /health.
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

// HealthChecker produces the /health report.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc checks one dependency. A nil error means it is usable.
type HealthCheckFunc func(ctx context.Context) error

// StatsFunc returns a JSON-encodable snapshot, such as job or event counters.
type StatsFunc func() any

// HealthStatus is the /health payload. Healthy is false only when a critical
// check fails; degraded checks lower Status without failing the report.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Healthy   bool                   `json:"healthy"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Stats     map[string]any         `json:"stats,omitempty"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Message  string `json:"message"`
	Duration string `json:"duration"`
}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// CompositeHealthChecker runs every registered check in parallel, each under
// its own timeout, and attaches the registered stats.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]registeredCheck
	stats   map[string]StatsFunc
	started time.Time
	version string
	timeout time.Duration
}

// NewCompositeHealthChecker creates a checker with a 5s per-check timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:  make(map[string]registeredCheck),
		stats:   make(map[string]StatsFunc),
		started: time.Now(),
		version: version,
		timeout: 5 * time.Second,
	}
}

// SetTimeout bounds each check.
func (c *CompositeHealthChecker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// AddCheck registers a check whose failure makes the service unavailable.
func (c *CompositeHealthChecker) AddCheck(name string, fn HealthCheckFunc) {
	c.add(name, registeredCheck{fn: fn, critical: true})
}

// AddDegradedCheck registers a check whose failure only degrades the service.
func (c *CompositeHealthChecker) AddDegradedCheck(name string, fn HealthCheckFunc) {
	c.add(name, registeredCheck{fn: fn})
}

// AddStats attaches a snapshot under name.
func (c *CompositeHealthChecker) AddStats(name string, fn StatsFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[name] = fn
}

func (c *CompositeHealthChecker) add(name string, p registeredCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = p
}

// Check runs all checks and collects stats.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]registeredCheck, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	stats := make(map[string]StatsFunc, len(c.stats))
	for k, v := range c.stats {
		stats[k] = v
	}
	timeout := c.timeout
	c.mu.RUnlock()

	out := HealthStatus{
		Status:    StatusOK,
		Healthy:   true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Version:   c.version,
		Timestamp: time.Now().UTC(),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, p := range checks {
		wg.Add(1)
		go func(name string, p registeredCheck) {
			defer wg.Done()
			res := runCheck(ctx, p, timeout)
			mu.Lock()
			out.Checks[name] = res
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	var failed, degraded []string
	for name, res := range out.Checks {
		switch {
		case res.Healthy:
		case res.Critical:
			failed = append(failed, name)
		default:
			degraded = append(degraded, name)
		}
	}
	sort.Strings(failed)
	sort.Strings(degraded)

	switch {
	case len(failed) > 0:
		out.Status, out.Healthy = StatusUnavailable, false
		out.Message = "failing: " + strings.Join(failed, ", ")
	case len(degraded) > 0:
		out.Status = StatusDegraded
		out.Message = "degraded: " + strings.Join(degraded, ", ")
	}

	if len(stats) > 0 {
		out.Stats = make(map[string]any, len(stats))
		for name, fn := range stats {
			out.Stats[name] = fn()
		}
	}
	return out
}

func runCheck(ctx context.Context, p registeredCheck, timeout time.Duration) CheckResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.fn(ctx)
	res := CheckResult{
		Healthy:  err == nil,
		Critical: p.critical,
		Message:  "ok",
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// Pinger is implemented by storage backends that talk to a server or file.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck adapts a Pinger.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}
