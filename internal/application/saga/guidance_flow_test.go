package saga

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthloop/companion/internal/application/store"
	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
	"github.com/healthloop/companion/internal/infrastructure/persistence/memory"
	"github.com/healthloop/companion/pkg/timeutil"
)

type providerFunc func(ctx context.Context, effect string, severity int) (string, error)

func (f providerFunc) GetGuidance(ctx context.Context, effect string, severity int) (string, error) {
	return f(ctx, effect, severity)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	clock := timeutil.NewFixedClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	s := store.New(memory.NewPatientRepository(), clock, store.WithLogger(quietLogger()))
	require.NoError(t, s.Open(context.Background()))
	_, err := s.Onboard(context.Background(), patient.Profile{
		Name: "Dana", Medication: "Semaglutide", Dose: "0.5mg", InjectionDay: 1,
		StartingWeight: 200, TargetWeight: 170, Motivation: "m",
	})
	require.NoError(t, err)
	return s
}

func findLog(t *testing.T, s *store.Store, id string) patient.SideEffectLog {
	t.Helper()
	st, err := s.Current()
	require.NoError(t, err)
	l, ok := st.FindSideEffect(id)
	require.True(t, ok)
	return l
}

func TestGuidanceFlow_AttachesGuidance(t *testing.T) {
	s := newStore(t)
	release := make(chan struct{})
	provider := providerFunc(func(ctx context.Context, effect string, severity int) (string, error) {
		<-release
		return "- Rest and hydrate (" + effect + ")", nil
	})
	flow := NewGuidanceFlowSaga(context.Background(), s, provider, quietLogger())

	res, err := flow.Execute(context.Background(), GuidanceReport{Effect: "Nausea", Severity: 4})
	require.NoError(t, err)

	// Visible immediately, still pending.
	assert.True(t, findLog(t, s, res.LogID).IsPending())
	logged, _ := res.State.FindSideEffect(res.LogID)
	assert.True(t, logged.IsPending())

	close(release)
	flow.Wait()

	l := findLog(t, s, res.LogID)
	assert.False(t, l.IsPending())
	assert.Equal(t, "- Rest and hydrate (Nausea)", l.Guidance)
}

func TestGuidanceFlow_FallbackOnFailure(t *testing.T) {
	s := newStore(t)
	var outcomes []GuidanceOutcome
	var mu sync.Mutex
	provider := providerFunc(func(context.Context, string, int) (string, error) {
		return "", shared.ErrGuidanceUnavailable
	})
	flow := NewGuidanceFlowSaga(context.Background(), s, provider, quietLogger(),
		WithOutcomeHook(func(o GuidanceOutcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		}))

	res, err := flow.Execute(context.Background(), GuidanceReport{Effect: "Headache", Severity: 2})
	require.NoError(t, err)
	flow.Wait()

	l := findLog(t, s, res.LogID)
	assert.False(t, l.IsPending())
	assert.Equal(t, FallbackGuidance, l.Guidance)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Fallback)
	assert.Equal(t, StepGuidanceDone, outcomes[0].Step)
	assert.ErrorIs(t, outcomes[0].Err, shared.ErrGuidanceUnavailable)
}

func TestGuidanceFlow_SessionEndedLeavesLogPending(t *testing.T) {
	s := newStore(t)
	session, cancel := context.WithCancel(context.Background())
	provider := providerFunc(func(ctx context.Context, _ string, _ int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	flow := NewGuidanceFlowSaga(session, s, provider, quietLogger())

	res, err := flow.Execute(context.Background(), GuidanceReport{Effect: "Fatigue", Severity: 6})
	require.NoError(t, err)

	cancel()
	flow.Wait()

	l := findLog(t, s, res.LogID)
	assert.True(t, l.IsPending())
	assert.Empty(t, l.Guidance)
}

func TestGuidanceFlow_InvalidReportIsRejected(t *testing.T) {
	s := newStore(t)
	called := false
	provider := providerFunc(func(context.Context, string, int) (string, error) {
		called = true
		return "", nil
	})
	flow := NewGuidanceFlowSaga(context.Background(), s, provider, quietLogger())

	_, err := flow.Execute(context.Background(), GuidanceReport{Effect: "Nausea", Severity: 12})
	flow.Wait()

	assert.ErrorIs(t, err, shared.ErrInvalidSeverity)
	assert.False(t, called)
	st, _ := s.Current()
	assert.Empty(t, st.SideEffectLogs)
}

func TestGuidanceFlow_ConcurrentReports(t *testing.T) {
	s := newStore(t)
	provider := providerFunc(func(_ context.Context, effect string, _ int) (string, error) {
		if effect == "Vomiting" {
			return "", errors.New("upstream")
		}
		return "ok: " + effect, nil
	})
	flow := NewGuidanceFlowSaga(context.Background(), s, provider, quietLogger())

	effects := []string{"Nausea", "Vomiting", "Diarrhea", "Fatigue"}
	ids := make([]string, len(effects))
	for i, e := range effects {
		res, err := flow.Execute(context.Background(), GuidanceReport{Effect: e, Severity: 3})
		require.NoError(t, err)
		ids[i] = res.LogID
	}
	flow.Wait()

	st, err := s.Current()
	require.NoError(t, err)
	assert.Len(t, st.SideEffectLogs, 4)
	assert.Empty(t, st.PendingSideEffects())
	for i, id := range ids {
		l, _ := st.FindSideEffect(id)
		if effects[i] == "Vomiting" {
			assert.Equal(t, FallbackGuidance, l.Guidance)
		} else {
			assert.Equal(t, "ok: "+effects[i], l.Guidance)
		}
	}
}
