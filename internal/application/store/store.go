// Package store owns the single in-memory patient state and serialises every
// mutation through one update queue: derive from the latest state, persist,
// then commit and publish what changed.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
	"github.com/healthloop/companion/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is the patient state container. A nil state means no patient has
// been onboarded yet.
type Store struct {
	repo      patient.Repository
	publisher shared.EventPublisher
	clock     timeutil.Clock
	logger    *slog.Logger

	// rolloverWatch reports whether a day change is applied before each
	// mutation. Nil means always.
	rolloverWatch func() bool

	// updateMu serialises mutations; mu guards the committed pointer.
	updateMu sync.Mutex
	mu       sync.RWMutex
	state    *patient.State

	// opened is set once Open has read the slot. Guarded by updateMu.
	opened bool
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher publishes domain events after every commit.
func WithPublisher(p shared.EventPublisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRolloverWatch makes the pre-mutation day check conditional, typically
// on a feature flag.
func WithRolloverWatch(enabled func() bool) Option {
	return func(s *Store) {
		s.rolloverWatch = enabled
	}
}

// New creates a Store. Call Open before use.
func New(repo patient.Repository, clock timeutil.Clock, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		clock:  clock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "patient_store")
	return s
}

// Today returns the current calendar day in the store's timezone.
func (s *Store) Today() shared.Day {
	return shared.DayOf(s.clock.Now(), s.clock.Location())
}

// Clock returns the time source of the store.
func (s *Store) Clock() timeutil.Clock {
	return s.clock
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Open rehydrates the state from the repository and runs the session-start
// day check. Absent or malformed records leave the store without a patient.
// Any other repository failure is returned and the store stays closed, so a
// saved patient is never shadowed by a fresh onboarding.
func (s *Store) Open(ctx context.Context) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	loaded, err := s.repo.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrMalformedState):
		s.logger.Warn("persisted patient record is malformed, starting fresh", "error", err)
		s.commit(nil)
		s.opened = true
		return nil
	case errors.Is(err, shared.ErrNoPatient):
		s.logger.Debug("no persisted patient record")
		s.commit(nil)
		s.opened = true
		return nil
	default:
		return fmt.Errorf("open: load: %w", err)
	}

	today := s.Today()
	next := patient.RolloverIfNewDay(loaded, today)
	if len(next.CompletedTasksToday) != len(loaded.CompletedTasksToday) {
		if err := s.repo.Save(ctx, next); err != nil {
			s.logger.Warn("failed to persist session-start rollover", "error", err)
			next = loaded
		}
	}

	s.commit(&next)
	s.opened = true
	s.publishAll(diffEvents(loaded, next, "session_start", today))

	s.logger.Info("patient state loaded",
		"points", next.Points.Int(),
		"level", next.Level.Int(),
		"streak", next.DailyStreak,
	)
	return nil
}

// Current returns a deep copy of the current state.
func (s *Store) Current() (patient.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return patient.State{}, shared.ErrNoPatient
	}
	return s.state.Clone(), nil
}

// HasPatient reports whether a patient is onboarded.
func (s *Store) HasPatient() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state != nil
}

// Onboard creates the patient. Fails with ErrAlreadyOnboarded when one exists.
func (s *Store) Onboard(ctx context.Context, p patient.Profile) (patient.State, error) {
	if err := p.Validate(); err != nil {
		return patient.State{}, err
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	if !s.opened {
		return patient.State{}, shared.ErrStoreNotOpen
	}
	if s.HasPatient() {
		return patient.State{}, shared.ErrAlreadyOnboarded
	}

	next := patient.NewState(p, s.Today())
	if err := s.repo.Save(ctx, next); err != nil {
		return patient.State{}, fmt.Errorf("onboard: save: %w", err)
	}
	s.commit(&next)

	s.publish(shared.NewPatientOnboardedEvent(next.Name, next.Medication, int(next.InjectionDay), next.RefillDueDate))
	s.logger.Info("patient onboarded", "medication", next.Medication, "injection_day", next.InjectionDay.String())

	return next.Clone(), nil
}

// Reset deletes the persisted record and clears memory.
func (s *Store) Reset(ctx context.Context) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	if err := s.repo.Delete(ctx); err != nil {
		return fmt.Errorf("reset: delete: %w", err)
	}
	s.commit(nil)

	s.publish(shared.NewPatientResetEvent())
	s.logger.Info("patient state reset")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATIONS
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTask completes one of today's tasks. The id must belong to today's
// derived task set; its point value comes from the task catalog.
func (s *Store) CompleteTask(ctx context.Context, taskID shared.TaskID) (patient.State, error) {
	def, ok := patient.GetTaskDefinition(taskID)
	if !ok {
		return patient.State{}, shared.ErrUnknownTask
	}

	return s.mutate(ctx, "task:"+taskID.String(), func(cur patient.State, _ time.Time, today shared.Day) (patient.State, error) {
		if !cur.IsDue(taskID, today) {
			return cur, shared.ErrTaskNotDueToday
		}
		return patient.CompleteTask(cur, taskID, def.Points, today), nil
	})
}

// LogWeight records a weigh-in. Weight must be positive.
func (s *Store) LogWeight(ctx context.Context, weight float64) (patient.State, error) {
	if weight <= 0 {
		return patient.State{}, shared.ErrInvalidWeight
	}

	return s.mutate(ctx, "weight_log", func(cur patient.State, now time.Time, today shared.Day) (patient.State, error) {
		return patient.LogWeight(cur, weight, now, today), nil
	})
}

// LogSideEffect records a side effect waiting for guidance and returns the
// new log id.
func (s *Store) LogSideEffect(ctx context.Context, effect string, severity int) (patient.State, string, error) {
	effect = strings.TrimSpace(effect)
	if effect == "" {
		return patient.State{}, "", shared.ErrEmptyEffect
	}
	sev, err := shared.NewSeverity(severity)
	if err != nil {
		return patient.State{}, "", err
	}

	var logID string
	next, err := s.mutate(ctx, "side_effect_log", func(cur patient.State, now time.Time, today shared.Day) (patient.State, error) {
		var st patient.State
		st, logID = patient.LogSideEffect(cur, effect, sev, now, today)
		return st, nil
	})
	if err != nil {
		return patient.State{}, "", err
	}
	return next, logID, nil
}

// AttachGuidance resolves a pending side-effect log. Unknown ids and resolved
// logs are left untouched.
func (s *Store) AttachGuidance(ctx context.Context, logID, text string) (patient.State, error) {
	return s.mutate(ctx, "guidance", func(cur patient.State, _ time.Time, _ shared.Day) (patient.State, error) {
		return patient.AttachGuidance(cur, logID, text), nil
	})
}

// CheckRollover clears yesterday's completed tasks when the calendar day has
// changed. It reports whether anything was cleared.
func (s *Store) CheckRollover(ctx context.Context) (bool, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	cur, err := s.Current()
	if err != nil {
		return false, nil
	}

	today := s.Today()
	next := patient.RolloverIfNewDay(cur, today)
	if len(next.CompletedTasksToday) == len(cur.CompletedTasksToday) {
		return false, nil
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return false, fmt.Errorf("rollover: save: %w", err)
	}
	s.commit(&next)
	s.publishAll(diffEvents(cur, next, "rollover", today))
	return true, nil
}

type mutation func(cur patient.State, now time.Time, today shared.Day) (patient.State, error)

// mutate runs fn against the latest state under the update lock. The result
// is persisted before it is committed; a failed save leaves memory as it was.
func (s *Store) mutate(ctx context.Context, source string, fn mutation) (patient.State, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	prev, err := s.Current()
	if err != nil {
		return patient.State{}, err
	}

	now := s.clock.Now()
	today := shared.DayOf(now, s.clock.Location())

	cur := prev
	if s.rolloverWatch == nil || s.rolloverWatch() {
		cur = patient.RolloverIfNewDay(prev, today)
	}

	next, err := fn(cur, now, today)
	if err != nil {
		return patient.State{}, err
	}

	if reflect.DeepEqual(prev, next) {
		return next.Clone(), nil
	}

	if err := s.repo.Save(ctx, next); err != nil {
		s.logger.Error("failed to persist patient state", "source", source, "error", err)
		return patient.State{}, fmt.Errorf("%s: save: %w", source, err)
	}
	s.commit(&next)
	s.publishAll(diffEvents(prev, next, source, today))

	return next.Clone(), nil
}

func (s *Store) commit(next *patient.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next == nil {
		s.state = nil
		return
	}
	c := next.Clone()
	s.state = &c
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) publish(event shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func (s *Store) publishAll(events []shared.Event) {
	for _, e := range events {
		s.publish(e)
	}
}
