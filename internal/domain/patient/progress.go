package patient

import (
	"math"

	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS CALCULATIONS
// ══════════════════════════════════════════════════════════════════════════════

// JourneyProgress returns the share of the planned weight loss achieved so
// far, as a percentage clamped to [0, 100]. Zero when no loss is planned.
func JourneyProgress(s State) float64 {
	totalToLose := s.StartingWeight - s.TargetWeight
	if totalToLose <= 0 {
		return 0
	}
	progress := s.WeightLost() / totalToLose * 100
	return math.Max(0, math.Min(100, progress))
}

// DaysUntilRefill returns the whole days left before the refill is due,
// never negative.
func DaysUntilRefill(s State, today shared.Day) int {
	if s.RefillDueDate.IsZero() {
		return 0
	}
	days := today.DaysUntil(s.RefillDueDate)
	if days < 0 {
		return 0
	}
	return days
}

// TaskCompletion returns how many of the day's tasks are done and how many
// are due.
func TaskCompletion(s State, day shared.Day) (done, total int) {
	tasks := s.TasksForDay(day)
	for _, t := range tasks {
		if s.CompletedOn(t, day) {
			done++
		}
	}
	return done, len(tasks)
}
