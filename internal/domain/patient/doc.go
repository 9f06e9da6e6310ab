// Package patient contains the domain model of a HealthLoop patient and the
// gamification and streak-state engine that drives it.
//
// The package defines:
//
//   - State: the single patient aggregate persisted by an installation
//   - Daily tasks: the task catalog and the per-day derived task set
//   - Streaks: RolloverIfNewDay and CompleteTask
//   - Achievements: the catalog and EvaluateAchievements
//   - Logging: LogWeight, LogSideEffect and AttachGuidance
//   - Repository: the contract for the single persisted slot
//
// # Transitions
//
// Every operation is a pure function from a State (plus explicit inputs such
// as today's Day) to a new State. Inputs are never mutated; slices are copied
// before they are appended to, so callers can keep the previous value around
// to diff it against the result:
//
//	next := patient.CompleteTask(prev, patient.TaskLogWeight, 15, today)
//	unlocked := patient.NewlyUnlocked(prev, next)
//
// The engine performs no input guarding. Validation (positive weights,
// severity ranges, task ids due today) belongs to the caller, normally the
// application store.
//
// # Levels
//
// Level is always floor(points/1000)+1. Every transition that changes points
// recomputes it, and Decode normalises it when a record is rehydrated.
package patient
