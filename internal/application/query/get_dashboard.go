package query

import (
	"context"
	"math"
	"time"

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD QUERY
// Everything the home screen shows: today's tasks, streak, points and level,
// journey progress, refill countdown and achievements.
// ══════════════════════════════════════════════════════════════════════════════

// RefillSoonDays is the window in which the refill is flagged as due soon.
const RefillSoonDays = 3

// recentSideEffects is how many side-effect logs the dashboard lists.
const recentSideEffects = 5

// GetDashboardQuery contains the dashboard parameters.
type GetDashboardQuery struct {
	// Day to build the task list for. Empty means today.
	Day shared.Day
}

// DashboardDTO is the dashboard view model.
type DashboardDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Patient
	// ─────────────────────────────────────────────────────────────────────────

	Name       string `json:"name"`
	Medication string `json:"medication"`
	Dose       string `json:"dose"`

	// ─────────────────────────────────────────────────────────────────────────
	// Today
	// ─────────────────────────────────────────────────────────────────────────

	Date              shared.Day `json:"date"`
	IsInjectionDay    bool       `json:"is_injection_day"`
	InjectionWeekday  string     `json:"injection_weekday"`
	Tasks             []TaskDTO  `json:"tasks"`
	TasksCompleted    int        `json:"tasks_completed"`
	TasksTotal        int        `json:"tasks_total"`
	CompletionPercent int        `json:"completion_percent"`

	// ─────────────────────────────────────────────────────────────────────────
	// Streak and gamification
	// ─────────────────────────────────────────────────────────────────────────

	DailyStreak          int        `json:"daily_streak"`
	LastCheckinDate      shared.Day `json:"last_checkin_date"`
	StreakAtRisk         bool       `json:"streak_at_risk"`
	Points               int        `json:"points"`
	Level                int        `json:"level"`
	PointsToNextLevel    int        `json:"points_to_next_level"`
	LevelProgressPercent int        `json:"level_progress_percent"`

	// ─────────────────────────────────────────────────────────────────────────
	// Journey
	// ─────────────────────────────────────────────────────────────────────────

	StartingWeight         float64     `json:"starting_weight"`
	TargetWeight           float64     `json:"target_weight"`
	LatestWeight           float64     `json:"latest_weight"`
	WeightLost             float64     `json:"weight_lost"`
	JourneyProgressPercent float64     `json:"journey_progress_percent"`
	Motivation             string      `json:"motivation"`
	WeightHistory          []WeightDTO `json:"weight_history"`

	// ─────────────────────────────────────────────────────────────────────────
	// Refill
	// ─────────────────────────────────────────────────────────────────────────

	RefillDueDate   shared.Day `json:"refill_due_date"`
	DaysUntilRefill int        `json:"days_until_refill"`
	RefillDueSoon   bool       `json:"refill_due_soon"`

	// ─────────────────────────────────────────────────────────────────────────
	// Achievements and side effects
	// ─────────────────────────────────────────────────────────────────────────

	Achievements      []AchievementDTO `json:"achievements"`
	UnlockedCount     int              `json:"unlocked_count"`
	RecentSideEffects []SideEffectDTO  `json:"recent_side_effects"`
	CommonSideEffects []string         `json:"common_side_effects"`
}

// TaskDTO is one task of the day.
type TaskDTO struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Points       int    `json:"points"`
	Presentation string `json:"presentation"`
	Completed    bool   `json:"completed"`
}

// WeightDTO is one weigh-in.
type WeightDTO struct {
	Date   time.Time `json:"date"`
	Weight float64   `json:"weight"`
}

// GetDashboardHandler builds the dashboard.
type GetDashboardHandler struct {
	reader StateReader
}

// NewGetDashboardHandler creates a new handler.
func NewGetDashboardHandler(reader StateReader) *GetDashboardHandler {
	return &GetDashboardHandler{reader: reader}
}

// Handle executes the query.
func (h *GetDashboardHandler) Handle(ctx context.Context, q GetDashboardQuery) (*DashboardDTO, error) {
	s, err := h.reader.Current()
	if err != nil {
		return nil, err
	}

	day := q.Day
	if day.IsZero() {
		day = h.reader.Today()
	}

	done, total := patient.TaskCompletion(s, day)
	daysLeft := patient.DaysUntilRefill(s, day)
	achievements := achievementDTOs(s)

	dto := &DashboardDTO{
		Name:       s.Name,
		Medication: s.Medication,
		Dose:       s.Dose,

		Date:              day,
		IsInjectionDay:    patient.IsInjectionDay(s.InjectionDay, day),
		InjectionWeekday:  s.InjectionDay.String(),
		Tasks:             taskDTOs(s, day),
		TasksCompleted:    done,
		TasksTotal:        total,
		CompletionPercent: percent(done, total),

		DailyStreak:          s.DailyStreak,
		LastCheckinDate:      s.LastCheckinDate,
		StreakAtRisk:         patient.StreakAtRisk(s, day),
		Points:               s.Points.Int(),
		Level:                s.Level.Int(),
		PointsToNextLevel:    s.Points.ToNextLevel(),
		LevelProgressPercent: s.Points.ProgressToNextLevel(),

		StartingWeight:         s.StartingWeight,
		TargetWeight:           s.TargetWeight,
		LatestWeight:           s.LatestWeight(),
		WeightLost:             round1(s.WeightLost()),
		JourneyProgressPercent: round1(patient.JourneyProgress(s)),
		Motivation:             s.Motivation,
		WeightHistory:          weightDTOs(s),

		RefillDueDate:   s.RefillDueDate,
		DaysUntilRefill: daysLeft,
		RefillDueSoon:   daysLeft <= RefillSoonDays,

		Achievements:      achievements,
		UnlockedCount:     len(s.Achievements),
		RecentSideEffects: sideEffectDTOs(s, recentSideEffects),
		CommonSideEffects: append([]string(nil), patient.CommonSideEffects...),
	}

	return dto, nil
}

func taskDTOs(s patient.State, day shared.Day) []TaskDTO {
	ids := s.TasksForDay(day)
	out := make([]TaskDTO, 0, len(ids))
	for _, id := range ids {
		def, ok := patient.GetTaskDefinition(id)
		if !ok {
			continue
		}
		out = append(out, TaskDTO{
			ID:           def.ID.String(),
			Title:        def.Title,
			Description:  def.Description,
			Points:       def.Points,
			Presentation: def.Presentation,
			Completed:    s.CompletedOn(id, day),
		})
	}
	return out
}

func weightDTOs(s patient.State) []WeightDTO {
	out := make([]WeightDTO, 0, len(s.WeightHistory))
	for _, w := range s.WeightHistory {
		out = append(out, WeightDTO{Date: w.Date, Weight: w.Weight})
	}
	return out
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return part * 100 / total
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
