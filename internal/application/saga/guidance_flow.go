// Package saga contains multi-step processes that span the patient store
// and external services.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/healthloop/companion/internal/domain/patient"
)

// ══════════════════════════════════════════════════════════════════════════════
// GUIDANCE FLOW SAGA
// Flow: Log Side Effect (pending) → Fetch Guidance → Attach Guidance or Fallback
//
// The log is visible immediately with its pending flag. Guidance arrives
// later through a separate store mutation. If the session ends first, the
// log stays pending.
// ══════════════════════════════════════════════════════════════════════════════

// FallbackGuidance is attached whenever guidance cannot be produced.
const FallbackGuidance = "I'm sorry, I'm having trouble providing guidance right now. " +
	"Please consult your healthcare provider for advice. " +
	"If this issue persists, please contact support."

// GuidanceProvider produces Markdown guidance for a side effect.
type GuidanceProvider interface {
	GetGuidance(ctx context.Context, effect string, severity int) (string, error)
}

// SideEffectStore is the part of the patient store the flow needs.
type SideEffectStore interface {
	LogSideEffect(ctx context.Context, effect string, severity int) (patient.State, string, error)
	AttachGuidance(ctx context.Context, logID, text string) (patient.State, error)
}

// GuidanceFlowStep represents a step in the guidance flow.
type GuidanceFlowStep string

const (
	StepLogSideEffect  GuidanceFlowStep = "log_side_effect"
	StepFetchGuidance  GuidanceFlowStep = "fetch_guidance"
	StepAttachGuidance GuidanceFlowStep = "attach_guidance"
	StepGuidanceDone   GuidanceFlowStep = "complete"
	StepGuidanceDrop   GuidanceFlowStep = "dropped"
)

// GuidanceReport is what the patient submits.
type GuidanceReport struct {
	Effect   string
	Severity int
}

// GuidanceFlowResult is returned as soon as the log is recorded.
type GuidanceFlowResult struct {
	LogID string
	State patient.State
}

// GuidanceOutcome describes how a background fetch ended.
type GuidanceOutcome struct {
	LogID     string
	Step      GuidanceFlowStep
	Fallback  bool
	Err       error
	Duration  time.Duration
	Completed time.Time
}

// GuidanceFlowSaga records side effects and resolves their guidance in the
// background.
type GuidanceFlowSaga struct {
	store    SideEffectStore
	provider GuidanceProvider
	logger   *slog.Logger

	// session is cancelled when the process shuts down.
	session context.Context

	wg sync.WaitGroup

	// onOutcome is called after every background fetch. Tests only.
	onOutcome func(GuidanceOutcome)
}

// GuidanceFlowOption configures the saga.
type GuidanceFlowOption func(*GuidanceFlowSaga)

// WithOutcomeHook registers a callback invoked when a fetch finishes.
func WithOutcomeHook(fn func(GuidanceOutcome)) GuidanceFlowOption {
	return func(s *GuidanceFlowSaga) {
		s.onOutcome = fn
	}
}

// NewGuidanceFlowSaga creates the saga. session bounds every background
// fetch; once it is cancelled pending logs are left as they are.
func NewGuidanceFlowSaga(session context.Context, store SideEffectStore, provider GuidanceProvider, logger *slog.Logger, opts ...GuidanceFlowOption) *GuidanceFlowSaga {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GuidanceFlowSaga{
		store:    store,
		provider: provider,
		logger:   logger.With("component", "guidance_flow"),
		session:  session,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute records the side effect and starts the guidance fetch. It returns
// once the pending log is persisted.
func (s *GuidanceFlowSaga) Execute(ctx context.Context, report GuidanceReport) (*GuidanceFlowResult, error) {
	state, logID, err := s.store.LogSideEffect(ctx, report.Effect, report.Severity)
	if err != nil {
		return nil, fmt.Errorf("guidance_flow: %s: %w", StepLogSideEffect, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.resolve(logID, report)
	}()

	return &GuidanceFlowResult{LogID: logID, State: state}, nil
}

// Wait blocks until every started fetch has finished.
func (s *GuidanceFlowSaga) Wait() {
	s.wg.Wait()
}

// resolve runs the fetch and attach steps.
func (s *GuidanceFlowSaga) resolve(logID string, report GuidanceReport) {
	start := time.Now()
	outcome := GuidanceOutcome{LogID: logID, Step: StepFetchGuidance}
	defer func() {
		outcome.Duration = time.Since(start)
		outcome.Completed = time.Now()
		if s.onOutcome != nil {
			s.onOutcome(outcome)
		}
	}()

	text, err := s.provider.GetGuidance(s.session, report.Effect, report.Severity)
	if s.session.Err() != nil {
		outcome.Step = StepGuidanceDrop
		outcome.Err = s.session.Err()
		s.logger.Debug("session ended before guidance arrived", "log_id", logID)
		return
	}
	if err != nil {
		outcome.Fallback = true
		outcome.Err = err
		text = FallbackGuidance
		s.logger.Warn("guidance unavailable, attaching fallback", "log_id", logID, "error", err)
	}

	outcome.Step = StepAttachGuidance
	if _, err := s.store.AttachGuidance(s.session, logID, text); err != nil {
		outcome.Err = errors.Join(outcome.Err, err)
		s.logger.Error("failed to attach guidance", "log_id", logID, "error", err)
		return
	}

	outcome.Step = StepGuidanceDone
	s.logger.Info("guidance attached", "log_id", logID, "fallback", outcome.Fallback, "duration", time.Since(start))
}
