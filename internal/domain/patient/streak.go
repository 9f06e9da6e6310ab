package patient

import (
	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK AND DAY CYCLE
// ══════════════════════════════════════════════════════════════════════════════

// RolloverIfNewDay clears yesterday's completed tasks when the last check-in
// was not today. The streak is left alone: it is only re-evaluated by the
// first task completion of a day.
func RolloverIfNewDay(s State, today shared.Day) State {
	if s.LastCheckinDate == today || len(s.CompletedTasksToday) == 0 {
		return s
	}
	next := s.Clone()
	next.CompletedTasksToday = []shared.TaskID{}
	return next
}

// CompleteTask marks a task as done for today and awards its points.
// Completing an already completed task is a no-op.
//
// On the first completion of a day the streak continues when the previous
// check-in was yesterday and restarts at 1 otherwise.
func CompleteTask(s State, taskID shared.TaskID, points int, today shared.Day) State {
	if s.HasCompleted(taskID) {
		return s
	}

	next := s.Clone()
	if len(s.CompletedTasksToday) == 0 {
		next.DailyStreak = nextStreak(s, today)
	}
	next.CompletedTasksToday = append(next.CompletedTasksToday, taskID)
	next.LastCheckinDate = today
	next = next.withPoints(points)

	return EvaluateAchievements(next, today)
}

func nextStreak(s State, today shared.Day) int {
	if !s.LastCheckinDate.IsZero() && s.LastCheckinDate == today.Yesterday() {
		return s.DailyStreak + 1
	}
	return 1
}

// StreakAtRisk reports whether the streak breaks unless a task is completed
// today: there is a streak, and the last check-in was yesterday.
func StreakAtRisk(s State, today shared.Day) bool {
	return s.DailyStreak > 0 && s.LastCheckinDate == today.Yesterday()
}

// StreakBroken reports whether the next completion will restart the streak.
func StreakBroken(s State, today shared.Day) bool {
	if s.DailyStreak == 0 || s.LastCheckinDate.IsZero() {
		return false
	}
	return s.LastCheckinDate != today && s.LastCheckinDate != today.Yesterday()
}
