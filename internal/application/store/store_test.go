package store

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

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
	"github.com/healthloop/companion/internal/infrastructure/persistence/memory"
	"github.com/healthloop/companion/pkg/timeutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// Monday 2024-01-01, 09:00 UTC.
var mondayMorning = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

var testProfile = patient.Profile{
	Name:           "Dana",
	Medication:     "Semaglutide",
	Dose:           "0.5mg",
	InjectionDay:   int(time.Monday),
	StartingWeight: 200,
	TargetWeight:   170,
	Motivation:     "Keep up with my kids",
}

type fixture struct {
	store *Store
	repo  *memory.PatientRepository
	clock *timeutil.FixedClock
	pub   *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:  memory.NewPatientRepository(),
		clock: timeutil.NewFixedClock(mondayMorning),
		pub:   &recordingPublisher{},
	}
	opts = append([]Option{
		WithPublisher(f.pub),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	f.store = New(f.repo, f.clock, opts...)
	require.NoError(t, f.store.Open(context.Background()))
	return f
}

func onboarded(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	_, err := f.store.Onboard(context.Background(), testProfile)
	require.NoError(t, err)
	f.pub.reset()
	return f
}

func TestStore_EmptyRepository(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Current()
	assert.ErrorIs(t, err, shared.ErrNoPatient)
	assert.False(t, f.store.HasPatient())

	_, err = f.store.LogWeight(context.Background(), 180)
	assert.ErrorIs(t, err, shared.ErrNoPatient)
}

func TestStore_Onboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.store.Onboard(ctx, testProfile)
	require.NoError(t, err)
	assert.Equal(t, shared.Points(100), s.Points)
	assert.Equal(t, shared.Day("2024-01-29"), s.RefillDueDate)
	assert.Equal(t, []shared.EventType{shared.EventPatientOnboarded}, f.pub.types())

	persisted, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Dana", persisted.Name)

	_, err = f.store.Onboard(ctx, testProfile)
	assert.ErrorIs(t, err, shared.ErrAlreadyOnboarded)
}

func TestStore_OnboardRejectsInvalidProfile(t *testing.T) {
	f := newFixture(t)
	p := testProfile
	p.InjectionDay = 7

	_, err := f.store.Onboard(context.Background(), p)

	assert.ErrorIs(t, err, shared.ErrInvalidInjectionDay)
	assert.False(t, f.store.HasPatient())
}

func TestStore_CompleteTask_FirstOfDay(t *testing.T) {
	f := onboarded(t)

	s, err := f.store.CompleteTask(context.Background(), patient.TaskLogWeight)
	require.NoError(t, err)

	assert.Equal(t, shared.Points(115), s.Points)
	assert.Equal(t, 1, s.DailyStreak)
	assert.Equal(t, shared.Day("2024-01-01"), s.LastCheckinDate)
	assert.Equal(t, []shared.EventType{
		shared.EventTaskCompleted,
		shared.EventStreakUpdated,
		shared.EventPointsAwarded,
	}, f.pub.types())
}

func TestStore_CompleteTask_Validation(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()

	_, err := f.store.CompleteTask(ctx, "meditate")
	assert.ErrorIs(t, err, shared.ErrUnknownTask)

	// Tuesday is not the injection day.
	f.clock.Advance(24 * time.Hour)
	_, err = f.store.CompleteTask(ctx, patient.TaskInjection)
	assert.ErrorIs(t, err, shared.ErrTaskNotDueToday)
	assert.True(t, shared.IsValidation(err))
}

func TestStore_CompleteTask_Duplicate(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()

	_, err := f.store.CompleteTask(ctx, patient.TaskCheckSymptoms)
	require.NoError(t, err)
	f.pub.reset()

	s, err := f.store.CompleteTask(ctx, patient.TaskCheckSymptoms)
	require.NoError(t, err)

	assert.Equal(t, shared.Points(120), s.Points)
	assert.Empty(t, f.pub.types())
}

func TestStore_PerfectDay(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()

	for _, id := range []shared.TaskID{patient.TaskInjection, patient.TaskLogWeight, patient.TaskCheckSymptoms} {
		_, err := f.store.CompleteTask(ctx, id)
		require.NoError(t, err)
	}

	s, err := f.store.Current()
	require.NoError(t, err)
	assert.True(t, s.HasAchievement(patient.AchievementFirstInjection))
	assert.True(t, s.HasAchievement(patient.AchievementPerfectDay))
	// 100 + 50 + 15 + 20 + first-injection + perfect-day
	assert.Equal(t, shared.Points(385), s.Points)
}

func TestStore_LogWeight(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()

	_, err := f.store.LogWeight(ctx, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidWeight)
	_, err = f.store.LogWeight(ctx, -3)
	assert.ErrorIs(t, err, shared.ErrInvalidWeight)

	s, err := f.store.LogWeight(ctx, 195)
	require.NoError(t, err)

	// +25 for the weigh-in, +100 first-weigh-in, +100 lose-5-lbs
	assert.Equal(t, shared.Points(325), s.Points)
	require.Len(t, s.WeightHistory, 1)
	assert.Equal(t, mondayMorning, s.WeightHistory[0].Date)
	assert.Contains(t, f.pub.types(), shared.EventAchievementUnlocked)
	assert.Contains(t, f.pub.types(), shared.EventWeightLogged)
}

func TestStore_LogSideEffectAndAttachGuidance(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()

	_, _, err := f.store.LogSideEffect(ctx, "   ", 3)
	assert.ErrorIs(t, err, shared.ErrEmptyEffect)
	_, _, err = f.store.LogSideEffect(ctx, "Nausea", 11)
	assert.ErrorIs(t, err, shared.ErrInvalidSeverity)
	_, _, err = f.store.LogSideEffect(ctx, "Nausea", 0)
	assert.ErrorIs(t, err, shared.ErrInvalidSeverity)

	s, id, err := f.store.LogSideEffect(ctx, "Nausea", 4)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	logged, ok := s.FindSideEffect(id)
	require.True(t, ok)
	assert.True(t, logged.IsPending())
	assert.True(t, s.HasAchievement(patient.AchievementFirstSideEffect))

	s, err = f.store.AttachGuidance(ctx, id, "- Drink water")
	require.NoError(t, err)
	logged, _ = s.FindSideEffect(id)
	assert.False(t, logged.IsPending())
	assert.Equal(t, "- Drink water", logged.Guidance)

	s, err = f.store.AttachGuidance(ctx, id, "second")
	require.NoError(t, err)
	logged, _ = s.FindSideEffect(id)
	assert.Equal(t, "- Drink water", logged.Guidance)

	before, _ := f.store.Current()
	after, err := f.store.AttachGuidance(ctx, "unknown", "text")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_SaveFailureLeavesMemoryUnchanged(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()
	before, err := f.store.Current()
	require.NoError(t, err)

	f.repo.SetFailSave(memory.ErrInjected)
	_, err = f.store.CompleteTask(ctx, patient.TaskLogWeight)
	assert.ErrorIs(t, err, memory.ErrInjected)

	after, err := f.store.Current()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.pub.types())
}

func TestStore_OpenMalformedRecord(t *testing.T) {
	repo := memory.NewPatientRepository()
	repo.SetRaw([]byte(`{"name": 42`))

	s := New(repo, timeutil.NewFixedClock(mondayMorning), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	require.NoError(t, s.Open(context.Background()))
	assert.False(t, s.HasPatient())
}

func TestStore_OpenLoadFailureKeepsSavedPatient(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()
	for _, w := range []float64{199, 199, 198} {
		_, err := f.store.LogWeight(ctx, w)
		require.NoError(t, err)
	}

	f.repo.SetFailLoad(errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"))
	reopened := New(f.repo, f.clock, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := reopened.Open(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, reopened.HasPatient())

	other := testProfile
	other.Name = "Someone Else"
	_, err = reopened.Onboard(ctx, other)
	assert.ErrorIs(t, err, shared.ErrStoreNotOpen)

	f.repo.SetFailLoad(nil)
	persisted, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Dana", persisted.Name)
	assert.Equal(t, 275, persisted.Points.Int())
	assert.Len(t, persisted.WeightHistory, 3)
}

func TestStore_OpenAppliesSessionStartRollover(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()
	_, err := f.store.CompleteTask(ctx, patient.TaskLogWeight)
	require.NoError(t, err)

	clock := timeutil.NewFixedClock(mondayMorning.Add(48 * time.Hour))
	reopened := New(f.repo, clock, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, reopened.Open(ctx))

	s, err := reopened.Current()
	require.NoError(t, err)
	assert.Empty(t, s.CompletedTasksToday)
	assert.Equal(t, 1, s.DailyStreak)

	persisted, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted.CompletedTasksToday)
}

func TestStore_CheckRollover(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()

	changed, err := f.store.CheckRollover(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.store.CompleteTask(ctx, patient.TaskLogWeight)
	require.NoError(t, err)
	f.pub.reset()

	f.clock.Advance(24 * time.Hour)
	changed, err = f.store.CheckRollover(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	s, _ := f.store.Current()
	assert.Empty(t, s.CompletedTasksToday)
	assert.Equal(t, 1, s.DailyStreak)
	assert.Equal(t, []shared.EventType{shared.EventDayRolledOver}, f.pub.types())

	// Next day's first completion continues the streak.
	s, err = f.store.CompleteTask(ctx, patient.TaskLogWeight)
	require.NoError(t, err)
	assert.Equal(t, 2, s.DailyStreak)
}

func TestStore_MutationRollsOverWhenWatchEnabled(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()
	_, err := f.store.CompleteTask(ctx, patient.TaskLogWeight)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	s, err := f.store.CompleteTask(ctx, patient.TaskLogWeight)
	require.NoError(t, err)

	assert.Equal(t, []shared.TaskID{patient.TaskLogWeight}, s.CompletedTasksToday)
	assert.Equal(t, 2, s.DailyStreak)
	assert.Equal(t, shared.Day("2024-01-02"), s.LastCheckinDate)
}

func TestStore_MutationWithoutRolloverWatch(t *testing.T) {
	f := onboarded(t, WithRolloverWatch(func() bool { return false }))
	ctx := context.Background()
	_, err := f.store.CompleteTask(ctx, patient.TaskLogWeight)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	s, err := f.store.CompleteTask(ctx, patient.TaskLogWeight)
	require.NoError(t, err)

	// Yesterday's completion is still on the list, so nothing changes.
	assert.Equal(t, shared.Day("2024-01-01"), s.LastCheckinDate)
	assert.Equal(t, 1, s.DailyStreak)
}

func TestStore_LevelUpEvent(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()

	// 100 start, +325 on the first weigh-in (three bonuses), then +25 each.
	_, err := f.store.LogWeight(ctx, 185)
	require.NoError(t, err)
	for i := 0; i < 27; i++ {
		_, err = f.store.LogWeight(ctx, 185)
		require.NoError(t, err)
	}

	s, _ := f.store.Current()
	assert.Equal(t, shared.Points(1100), s.Points)
	assert.Equal(t, shared.Level(2), s.Level)
	assert.Contains(t, f.pub.types(), shared.EventLevelUp)
}

func TestStore_Reset(t *testing.T) {
	f := onboarded(t)
	ctx := context.Background()

	require.NoError(t, f.store.Reset(ctx))

	assert.False(t, f.store.HasPatient())
	_, err := f.repo.Load(ctx)
	assert.ErrorIs(t, err, shared.ErrNoPatient)
	assert.Equal(t, []shared.EventType{shared.EventPatientReset}, f.pub.types())

	_, err = f.store.Onboard(ctx, testProfile)
	assert.NoError(t, err)
}
