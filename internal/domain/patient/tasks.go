package patient

import (
	"time"

	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY TASKS
// ══════════════════════════════════════════════════════════════════════════════

const (
	TaskInjection     shared.TaskID = "injection"
	TaskLogWeight     shared.TaskID = "log-weight"
	TaskCheckSymptoms shared.TaskID = "check-symptoms"
)

// TaskDefinition describes a daily task.
type TaskDefinition struct {
	ID           shared.TaskID
	Title        string
	Description  string
	Points       int
	Presentation string
}

// GetTaskDefinitions returns the task catalog in display order.
func GetTaskDefinitions() []TaskDefinition {
	return []TaskDefinition{
		{TaskInjection, "Take your injection", "Follow your doctor's instructions.", 50, "syringe"},
		{TaskLogWeight, "Log your weight", "Track your progress consistently.", 15, "weight"},
		{TaskCheckSymptoms, "Check-in on symptoms", "Log any side effects you feel.", 20, "bot"},
	}
}

// GetTaskDefinition returns the definition of a task by id.
func GetTaskDefinition(id shared.TaskID) (TaskDefinition, bool) {
	for _, def := range GetTaskDefinitions() {
		if def.ID == id {
			return def, true
		}
	}
	return TaskDefinition{}, false
}

// IsInjectionDay reports whether day falls on the configured injection weekday.
func IsInjectionDay(injectionDay time.Weekday, day shared.Day) bool {
	return day.Weekday() == injectionDay
}

// TasksForDay derives the task set of a day: injection (only on the
// injection weekday), then log-weight and check-symptoms.
func TasksForDay(injectionDay time.Weekday, day shared.Day) []shared.TaskID {
	tasks := make([]shared.TaskID, 0, 3)
	if IsInjectionDay(injectionDay, day) {
		tasks = append(tasks, TaskInjection)
	}
	return append(tasks, TaskLogWeight, TaskCheckSymptoms)
}

// TasksForDay returns the patient's task set for day.
func (s State) TasksForDay(day shared.Day) []shared.TaskID {
	return TasksForDay(s.InjectionDay, day)
}

// IsDue reports whether id belongs to the patient's task set for day.
func (s State) IsDue(id shared.TaskID, day shared.Day) bool {
	for _, t := range s.TasksForDay(day) {
		if t == id {
			return true
		}
	}
	return false
}

// AllTasksDone reports whether every task due on day is completed.
func (s State) AllTasksDone(day shared.Day) bool {
	for _, t := range s.TasksForDay(day) {
		if !s.HasCompleted(t) {
			return false
		}
	}
	return true
}
