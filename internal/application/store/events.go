package store

import (
	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

// diffEvents derives the domain events between two committed states.
// source names what caused the change and is carried on PointsAwarded.
func diffEvents(prev, next patient.State, source string, today shared.Day) []shared.Event {
	var events []shared.Event

	// A rollover either empties the list or restarts it with today's first
	// completion; completions without one only ever grow it.
	base := prev.CompletedTasksToday
	if rolledOver(prev, next, today) {
		events = append(events, shared.NewDayRolledOverEvent(prev.LastCheckinDate.String(), today, len(prev.CompletedTasksToday)))
		base = nil
	}

	for _, id := range next.CompletedTasksToday {
		if contains(base, id) {
			continue
		}
		points := 0
		if def, ok := patient.GetTaskDefinition(id); ok {
			points = def.Points
		}
		events = append(events, shared.NewTaskCompletedEvent(id.String(), points, today))
	}

	if next.DailyStreak != prev.DailyStreak {
		events = append(events, shared.NewStreakUpdatedEvent(prev.DailyStreak, next.DailyStreak))
	}

	if len(next.WeightHistory) > len(prev.WeightHistory) {
		events = append(events, shared.NewWeightLoggedEvent(next.LatestWeight(), next.WeightLost(), len(next.WeightHistory)))
	}

	if n := len(prev.SideEffectLogs); len(next.SideEffectLogs) > n {
		for _, l := range next.SideEffectLogs[n:] {
			events = append(events, shared.NewSideEffectLoggedEvent(l.ID, l.Effect, l.Severity.Int()))
		}
	}

	for _, l := range prev.PendingSideEffects() {
		if resolved, ok := next.FindSideEffect(l.ID); ok && !resolved.IsPending() {
			events = append(events, shared.NewGuidanceAttachedEvent(l.ID, len(resolved.Guidance)))
		}
	}

	if delta := next.Points.Int() - prev.Points.Int(); delta > 0 {
		events = append(events, shared.NewPointsAwardedEvent(delta, next.Points.Int(), source))
	}

	if next.Level > prev.Level {
		events = append(events, shared.NewLevelUpEvent(prev.Level.Int(), next.Level.Int(), next.Points.Int()))
	}

	for _, id := range patient.NewlyUnlocked(prev, next) {
		name := id.String()
		if def, ok := patient.GetAchievementDefinition(id); ok {
			name = def.Name
		}
		events = append(events, shared.NewAchievementUnlockedEvent(id.String(), name, patient.AchievementBonus))
	}

	return events
}

func rolledOver(prev, next patient.State, today shared.Day) bool {
	if len(prev.CompletedTasksToday) == 0 || prev.LastCheckinDate == today {
		return false
	}
	if len(next.CompletedTasksToday) == 0 {
		return true
	}
	return next.LastCheckinDate == today && len(next.CompletedTasksToday) <= len(prev.CompletedTasksToday)
}

func contains(ids []shared.TaskID, id shared.TaskID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
