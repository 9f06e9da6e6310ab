package patient

import (
	"strings"
	"time"

	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// State is the patient aggregate. One instance exists per installation.
// JSON field names are the persisted schema.
type State struct {
	// Identity and treatment configuration.
	Name           string       `json:"name"`
	Medication     string       `json:"medication"`
	Dose           string       `json:"dose"`
	InjectionDay   time.Weekday `json:"injectionDay"`
	StartingWeight float64      `json:"startingWeight"`
	TargetWeight   float64      `json:"targetWeight"`
	Motivation     string       `json:"motivation"`
	RefillDueDate  shared.Day   `json:"refillDueDate"`

	// History, append-only and chronological.
	WeightHistory  []WeightEntry   `json:"weightHistory"`
	SideEffectLogs []SideEffectLog `json:"sideEffectLogs"`

	// Daily cycle.
	DailyStreak         int             `json:"dailyStreak"`
	LastCheckinDate     shared.Day      `json:"lastCheckinDate"`
	CompletedTasksToday []shared.TaskID `json:"completedTasksToday"`

	// Gamification.
	Points       shared.Points          `json:"points"`
	Level        shared.Level           `json:"level"`
	Achievements []shared.AchievementID `json:"achievements"`
}

// WeightEntry is one weigh-in.
type WeightEntry struct {
	Date   time.Time `json:"date"`
	Weight float64   `json:"weight"`
}

// SideEffectLog is one reported side effect. Guidance stays empty while
// IsLoadingGuidance is true and is written exactly once.
type SideEffectLog struct {
	ID                string          `json:"id"`
	Date              time.Time       `json:"date"`
	Effect            string          `json:"effect"`
	Severity          shared.Severity `json:"severity"`
	Guidance          string          `json:"guidance,omitempty"`
	IsLoadingGuidance bool            `json:"isLoadingGuidance"`
}

// IsPending reports whether the log still waits for guidance.
func (l SideEffectLog) IsPending() bool {
	return l.IsLoadingGuidance
}

// ══════════════════════════════════════════════════════════════════════════════
// ONBOARDING
// ══════════════════════════════════════════════════════════════════════════════

const (
	// StarterPoints are granted at onboarding.
	StarterPoints shared.Points = 100

	// RefillCycleDays is the supply length assumed at onboarding.
	RefillCycleDays = 28
)

// Profile holds the answers collected during onboarding.
type Profile struct {
	Name           string
	Medication     string
	Dose           string
	InjectionDay   int
	StartingWeight float64
	TargetWeight   float64
	Motivation     string
}

// Validate checks the onboarding answers.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return shared.WrapError("patient", "Validate", shared.ErrEmptyValue, "name is required", shared.ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Medication) == "" {
		return shared.WrapError("patient", "Validate", shared.ErrEmptyValue, "medication is required", shared.ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Dose) == "" {
		return shared.WrapError("patient", "Validate", shared.ErrEmptyValue, "dose is required", shared.ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Motivation) == "" {
		return shared.WrapError("patient", "Validate", shared.ErrEmptyValue, "motivation is required", shared.ErrInvalidProfile)
	}
	if p.InjectionDay < 0 || p.InjectionDay > 6 {
		return shared.ErrInvalidInjectionDay
	}
	if p.StartingWeight <= 0 || p.TargetWeight <= 0 {
		return shared.WrapError("patient", "Validate", shared.ErrValueOutOfRange, "weights must be positive", shared.ErrInvalidProfile)
	}
	return nil
}

// NewState creates the initial state for a validated profile.
// The "onboarded" achievement is granted here and never by the evaluator.
func NewState(p Profile, today shared.Day) State {
	return State{
		Name:                strings.TrimSpace(p.Name),
		Medication:          strings.TrimSpace(p.Medication),
		Dose:                strings.TrimSpace(p.Dose),
		InjectionDay:        time.Weekday(p.InjectionDay),
		StartingWeight:      p.StartingWeight,
		TargetWeight:        p.TargetWeight,
		Motivation:          strings.TrimSpace(p.Motivation),
		RefillDueDate:       today.AddDays(RefillCycleDays),
		WeightHistory:       []WeightEntry{},
		SideEffectLogs:      []SideEffectLog{},
		DailyStreak:         0,
		LastCheckinDate:     "",
		CompletedTasksToday: []shared.TaskID{},
		Points:              StarterPoints,
		Level:               shared.LevelFor(StarterPoints),
		Achievements:        []shared.AchievementID{AchievementOnboarded},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	c := s
	c.WeightHistory = append([]WeightEntry{}, s.WeightHistory...)
	c.SideEffectLogs = append([]SideEffectLog{}, s.SideEffectLogs...)
	c.CompletedTasksToday = append([]shared.TaskID{}, s.CompletedTasksToday...)
	c.Achievements = append([]shared.AchievementID{}, s.Achievements...)
	return c
}

// HasAchievement reports whether id is unlocked.
func (s State) HasAchievement(id shared.AchievementID) bool {
	for _, a := range s.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// HasCompleted reports whether the task was completed today.
func (s State) HasCompleted(id shared.TaskID) bool {
	for _, t := range s.CompletedTasksToday {
		if t == id {
			return true
		}
	}
	return false
}

// CompletedOn reports whether the task was completed on the given day.
// Completions are only known for the last check-in day.
func (s State) CompletedOn(id shared.TaskID, day shared.Day) bool {
	return s.LastCheckinDate == day && s.HasCompleted(id)
}

// LatestWeight returns the most recent weigh-in, or the starting weight
// when none was logged.
func (s State) LatestWeight() float64 {
	if n := len(s.WeightHistory); n > 0 {
		return s.WeightHistory[n-1].Weight
	}
	return s.StartingWeight
}

// WeightLost returns startingWeight - latestWeight.
func (s State) WeightLost() float64 {
	return s.StartingWeight - s.LatestWeight()
}

// FindSideEffect returns the log with the given id.
func (s State) FindSideEffect(id string) (SideEffectLog, bool) {
	for _, l := range s.SideEffectLogs {
		if l.ID == id {
			return l, true
		}
	}
	return SideEffectLog{}, false
}

// PendingSideEffects returns the logs still waiting for guidance.
func (s State) PendingSideEffects() []SideEffectLog {
	var pending []SideEffectLog
	for _, l := range s.SideEffectLogs {
		if l.IsPending() {
			pending = append(pending, l)
		}
	}
	return pending
}

// withPoints adds points and recomputes the derived level.
func (s State) withPoints(amount int) State {
	s.Points = s.Points.Add(amount)
	s.Level = shared.LevelFor(s.Points)
	return s
}
