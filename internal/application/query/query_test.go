package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

type staticReader struct {
	state *patient.State
	today shared.Day
}

func (r staticReader) Current() (patient.State, error) {
	if r.state == nil {
		return patient.State{}, shared.ErrNoPatient
	}
	return r.state.Clone(), nil
}

func (r staticReader) Today() shared.Day { return r.today }

func sampleState() patient.State {
	// Onboarded on Monday 2024-01-01 with Monday injections.
	s := patient.NewState(patient.Profile{
		Name: "Dana", Medication: "Semaglutide", Dose: "0.5mg", InjectionDay: int(time.Monday),
		StartingWeight: 200, TargetWeight: 180, Motivation: "Hike again",
	}, "2024-01-01")
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	s = patient.CompleteTask(s, patient.TaskInjection, 50, "2024-01-01")
	s = patient.LogWeight(s, 195, now, "2024-01-01")
	s, _ = patient.LogSideEffect(s, "Nausea", 3, now, "2024-01-01")
	s, _ = patient.LogSideEffect(s, "Fatigue", 8, now.Add(time.Hour), "2024-01-01")
	return s
}

func TestGetDashboard(t *testing.T) {
	s := sampleState()
	h := NewGetDashboardHandler(staticReader{state: &s, today: "2024-01-01"})

	d, err := h.Handle(context.Background(), GetDashboardQuery{})
	require.NoError(t, err)

	assert.Equal(t, "Dana", d.Name)
	assert.True(t, d.IsInjectionDay)
	assert.Equal(t, "Monday", d.InjectionWeekday)
	require.Len(t, d.Tasks, 3)
	assert.Equal(t, "injection", d.Tasks[0].ID)
	assert.True(t, d.Tasks[0].Completed)
	assert.False(t, d.Tasks[1].Completed)
	assert.Equal(t, 1, d.TasksCompleted)
	assert.Equal(t, 3, d.TasksTotal)
	assert.Equal(t, 33, d.CompletionPercent)

	assert.Equal(t, 1, d.DailyStreak)
	assert.Equal(t, s.Points.Int(), d.Points)
	assert.Equal(t, 1000-s.Points.Int(), d.PointsToNextLevel)

	assert.Equal(t, 195.0, d.LatestWeight)
	assert.Equal(t, 5.0, d.WeightLost)
	assert.Equal(t, 25.0, d.JourneyProgressPercent)
	assert.Len(t, d.WeightHistory, 1)

	assert.Equal(t, 28, d.DaysUntilRefill)
	assert.False(t, d.RefillDueSoon)

	assert.Len(t, d.Achievements, len(patient.GetAchievementDefinitions()))
	require.Len(t, d.RecentSideEffects, 2)
	assert.Equal(t, "Fatigue", d.RecentSideEffects[0].Effect)
	assert.Equal(t, patient.CommonSideEffects, d.CommonSideEffects)
}

func TestGetDashboard_OtherDayAndRefillSoon(t *testing.T) {
	s := sampleState()
	h := NewGetDashboardHandler(staticReader{state: &s, today: "2024-01-27"})

	d, err := h.Handle(context.Background(), GetDashboardQuery{})
	require.NoError(t, err)

	assert.False(t, d.IsInjectionDay)
	assert.Len(t, d.Tasks, 2)
	assert.Equal(t, 2, d.DaysUntilRefill)
	assert.True(t, d.RefillDueSoon)
}

func TestGetDashboard_TasksOnDayWithoutCheckin(t *testing.T) {
	s := sampleState()
	h := NewGetDashboardHandler(staticReader{state: &s, today: "2024-01-01"})

	d, err := h.Handle(context.Background(), GetDashboardQuery{Day: "2024-01-08"})
	require.NoError(t, err)

	assert.True(t, d.IsInjectionDay)
	require.Len(t, d.Tasks, 3)
	for _, task := range d.Tasks {
		assert.False(t, task.Completed, task.ID)
	}
	assert.Equal(t, 0, d.TasksCompleted)
	assert.Equal(t, 0, d.CompletionPercent)
}

func TestGetDashboard_NoPatient(t *testing.T) {
	h := NewGetDashboardHandler(staticReader{today: "2024-01-01"})

	_, err := h.Handle(context.Background(), GetDashboardQuery{})
	assert.ErrorIs(t, err, shared.ErrNoPatient)
}

func TestGetAchievements(t *testing.T) {
	s := sampleState()
	h := NewGetAchievementsHandler(staticReader{state: &s})

	list, err := h.Handle(context.Background())
	require.NoError(t, err)

	unlocked := map[string]bool{}
	for _, a := range list {
		unlocked[a.ID] = a.Unlocked
	}
	assert.True(t, unlocked["onboarded"])
	assert.True(t, unlocked["first-injection"])
	assert.True(t, unlocked["first-weigh-in"])
	assert.True(t, unlocked["lose-5-lbs"])
	assert.True(t, unlocked["first-side-effect"])
	assert.False(t, unlocked["streak-7-days"])
	assert.False(t, unlocked["perfect-day"])
}

func TestListSideEffects(t *testing.T) {
	s := sampleState()
	h := NewListSideEffectsHandler(staticReader{state: &s})

	all, err := h.Handle(context.Background(), ListSideEffectsQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Fatigue", all[0].Effect)
	assert.Equal(t, "severe", all[0].SeverityLabel)
	assert.True(t, all[0].IsLoadingGuidance)

	one, err := h.Handle(context.Background(), ListSideEffectsQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestListSideEffects_ByID(t *testing.T) {
	s := sampleState()
	h := NewListSideEffectsHandler(staticReader{state: &s})
	oldest := s.SideEffectLogs[0].ID

	got, err := h.Handle(context.Background(), ListSideEffectsQuery{ID: oldest, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, oldest, got[0].ID)
	assert.Equal(t, "Nausea", got[0].Effect)

	_, err = h.Handle(context.Background(), ListSideEffectsQuery{ID: "missing"})
	assert.ErrorIs(t, err, shared.ErrSideEffectNotFound)
}
