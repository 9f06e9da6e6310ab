package shared

import (
	"time"
)

// EventType names what happened to the patient record.
type EventType string

const (
	EventPatientOnboarded EventType = "patient.onboarded"
	EventPatientReset     EventType = "patient.reset"

	EventTaskCompleted    EventType = "tracker.task_completed"
	EventStreakUpdated    EventType = "tracker.streak_updated"
	EventDayRolledOver    EventType = "tracker.day_rolled_over"
	EventWeightLogged     EventType = "tracker.weight_logged"
	EventSideEffectLogged EventType = "tracker.side_effect_logged"
	EventGuidanceAttached EventType = "tracker.guidance_attached"

	EventPointsAwarded       EventType = "gamification.points_awarded"
	EventLevelUp             EventType = "gamification.level_up"
	EventAchievementUnlocked EventType = "gamification.achievement_unlocked"

	EventRefillDueSoon EventType = "system.refill_due_soon"
)

// Event is published after a state change has been persisted. Concrete
// events are plain structs with JSON tags.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
}

type header struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
}

func (h header) EventType() EventType  { return h.Type }
func (h header) OccurredAt() time.Time { return h.At }

func stamp(t EventType) header {
	return header{Type: t, At: time.Now()}
}

// ══════════════════════════════════════════════════════════════════════════════
// PATIENT
// ══════════════════════════════════════════════════════════════════════════════

type PatientOnboardedEvent struct {
	header
	Name          string `json:"name"`
	Medication    string `json:"medication"`
	InjectionDay  int    `json:"injection_day"`
	RefillDueDate string `json:"refill_due_date"`
}

func NewPatientOnboardedEvent(name, medication string, injectionDay int, refillDue Day) PatientOnboardedEvent {
	return PatientOnboardedEvent{stamp(EventPatientOnboarded), name, medication, injectionDay, refillDue.String()}
}

type PatientResetEvent struct {
	header
}

func NewPatientResetEvent() PatientResetEvent {
	return PatientResetEvent{stamp(EventPatientReset)}
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKER
// ══════════════════════════════════════════════════════════════════════════════

type TaskCompletedEvent struct {
	header
	TaskID       string `json:"task_id"`
	PointsEarned int    `json:"points_earned"`
	Day          string `json:"day"`
}

func NewTaskCompletedEvent(taskID string, points int, day Day) TaskCompletedEvent {
	return TaskCompletedEvent{stamp(EventTaskCompleted), taskID, points, day.String()}
}

// StreakUpdatedEvent.IsBroken is set when the new streak is not longer than
// the old one, i.e. a reset to 1.
type StreakUpdatedEvent struct {
	header
	OldStreak int  `json:"old_streak"`
	NewStreak int  `json:"new_streak"`
	IsBroken  bool `json:"is_broken"`
}

func NewStreakUpdatedEvent(oldStreak, newStreak int) StreakUpdatedEvent {
	return StreakUpdatedEvent{stamp(EventStreakUpdated), oldStreak, newStreak, newStreak <= oldStreak}
}

// DayRolledOverEvent is published when yesterday's completed tasks are
// cleared without a check-in.
type DayRolledOverEvent struct {
	header
	PreviousCheckin string `json:"previous_checkin"`
	Today           string `json:"today"`
	ClearedTasks    int    `json:"cleared_tasks"`
}

func NewDayRolledOverEvent(previous string, today Day, cleared int) DayRolledOverEvent {
	return DayRolledOverEvent{stamp(EventDayRolledOver), previous, today.String(), cleared}
}

type WeightLoggedEvent struct {
	header
	Weight     float64 `json:"weight"`
	TotalLost  float64 `json:"total_lost"`
	EntryCount int     `json:"entry_count"`
}

func NewWeightLoggedEvent(weight, totalLost float64, entryCount int) WeightLoggedEvent {
	return WeightLoggedEvent{stamp(EventWeightLogged), weight, totalLost, entryCount}
}

type SideEffectLoggedEvent struct {
	header
	LogID    string `json:"log_id"`
	Effect   string `json:"effect"`
	Severity int    `json:"severity"`
}

func NewSideEffectLoggedEvent(logID, effect string, severity int) SideEffectLoggedEvent {
	return SideEffectLoggedEvent{stamp(EventSideEffectLogged), logID, effect, severity}
}

// GuidanceAttachedEvent carries the text length only; guidance may quote the
// patient's report.
type GuidanceAttachedEvent struct {
	header
	LogID  string `json:"log_id"`
	Length int    `json:"length"`
}

func NewGuidanceAttachedEvent(logID string, length int) GuidanceAttachedEvent {
	return GuidanceAttachedEvent{stamp(EventGuidanceAttached), logID, length}
}

// ══════════════════════════════════════════════════════════════════════════════
// GAMIFICATION
// ══════════════════════════════════════════════════════════════════════════════

type PointsAwardedEvent struct {
	header
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
	Source   string `json:"source"` // task, weight or achievement
}

func NewPointsAwardedEvent(amount, newTotal int, source string) PointsAwardedEvent {
	return PointsAwardedEvent{stamp(EventPointsAwarded), amount, newTotal, source}
}

type LevelUpEvent struct {
	header
	OldLevel int `json:"old_level"`
	NewLevel int `json:"new_level"`
	Points   int `json:"points"`
}

func NewLevelUpEvent(oldLevel, newLevel, points int) LevelUpEvent {
	return LevelUpEvent{stamp(EventLevelUp), oldLevel, newLevel, points}
}

type AchievementUnlockedEvent struct {
	header
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	BonusPoints   int    `json:"bonus_points"`
}

func NewAchievementUnlockedEvent(achievementID, name string, bonus int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{stamp(EventAchievementUnlocked), achievementID, name, bonus}
}

// RefillDueSoonEvent is raised by the refill reminder job, not by the store.
type RefillDueSoonEvent struct {
	header
	RefillDueDate string `json:"refill_due_date"`
	DaysLeft      int    `json:"days_left"`
	Medication    string `json:"medication"`
}

func NewRefillDueSoonEvent(refillDue string, daysLeft int, medication string) RefillDueSoonEvent {
	return RefillDueSoonEvent{stamp(EventRefillDueSoon), refillDue, daysLeft, medication}
}

// ══════════════════════════════════════════════════════════════════════════════
// BUS CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// EventHandler reacts to one event. Its error is logged, never propagated
// to the publisher.
type EventHandler func(event Event) error

type EventPublisher interface {
	Publish(event Event) error
}

type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}
