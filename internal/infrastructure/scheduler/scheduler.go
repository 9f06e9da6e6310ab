// Package scheduler runs the companion's background jobs: the day-boundary
// watcher and the refill reminder.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// Job is one unit of background work. Run receives a context that ends when
// the scheduler stops or the job timeout elapses.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule yields the next run strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// JobResult describes one finished run.
type JobResult struct {
	JobName   string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Success reports whether the run returned no error.
func (r JobResult) Success() bool { return r.Err == nil }

// JobOption adjusts a registration.
type JobOption func(*entry)

// RunAtStart makes the job run on the first tick after Start instead of
// waiting for its schedule.
func RunAtStart() JobOption {
	return func(e *entry) { e.atStart = true }
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger       *slog.Logger
	Timezone     *time.Location // schedule evaluation zone, default Local
	TickInterval time.Duration  // how often due jobs are looked up, default 1s
	JobTimeout   time.Duration  // per-run bound, zero means none
	Now          func() time.Time
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Timezone:     time.Local,
		TickInterval: time.Second,
		JobTimeout:   time.Minute,
	}
}

// Scheduler fires registered jobs when their schedule comes due. A job never
// overlaps with itself; a tick that finds it still running skips it.
type Scheduler struct {
	cfg    SchedulerConfig
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time
	onDone  func(JobResult)
}

type entry struct {
	job      Job
	schedule Schedule
	atStart  bool

	busy     bool
	next     time.Time
	last     *JobResult
	runs     int64
	failures int64
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "scheduler"),
		entries: make(map[string]*entry),
	}
}

func (s *Scheduler) now() time.Time {
	return s.cfg.Now().In(s.cfg.Timezone)
}

// Register adds a job. Names must be unique.
func (s *Scheduler) Register(job Job, schedule Schedule, opts ...JobOption) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{job: job, schedule: schedule}
	for _, opt := range opts {
		opt(e)
	}
	e.next = schedule.Next(s.now())
	s.entries[name] = e

	s.logger.Info("job registered", "job", name, "schedule", schedule.String(), "next_run", e.next.Format(time.RFC3339))
	return nil
}

// OnJobComplete sets a callback invoked after every run.
func (s *Scheduler) OnJobComplete(fn func(JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDone = fn
}

// Start launches the tick loop. Jobs registered with RunAtStart become due
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = s.now()
	for _, e := range s.entries {
		if e.atStart {
			e.next = s.started
		}
	}
	count := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs", count, "timezone", s.cfg.Timezone.String())

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped", "uptime", s.now().Sub(s.started).Round(time.Second).String())
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()

	s.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.dispatch(ctx)
		}
	}
}

// dispatch starts every idle job whose next run has passed. A zero next run
// means the schedule never fires again.
func (s *Scheduler) dispatch(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.busy || e.next.IsZero() || now.Before(e.next) {
			continue
		}
		e.busy = true
		e.next = e.schedule.Next(now)

		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			s.run(ctx, e)
		}(e)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	start := s.cfg.Now()
	err := e.job.Run(ctx)
	res := JobResult{JobName: e.job.Name(), StartedAt: start, Duration: s.cfg.Now().Sub(start), Err: err}

	s.mu.Lock()
	e.busy = false
	e.runs++
	if err != nil {
		e.failures++
	}
	e.last = &res
	hook := s.onDone
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", res.JobName, "duration", res.Duration.String(), "error", err)
	} else {
		s.logger.Debug("job completed", "job", res.JobName, "duration", res.Duration.String())
	}
	if hook != nil {
		hook(res)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// JobStatus is the reportable state of one job.
type JobStatus struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Schedule    string    `json:"schedule"`
	Running     bool      `json:"running"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
}

// Status lists every job, soonest first.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.entries))
	for name, e := range s.entries {
		st := JobStatus{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			Running:     e.busy,
			NextRun:     e.next,
			Runs:        e.runs,
			Failures:    e.failures,
		}
		if e.last != nil {
			st.LastRun = e.last.StartedAt
			if e.last.Err != nil {
				st.LastError = e.last.Err.Error()
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out
}

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)
