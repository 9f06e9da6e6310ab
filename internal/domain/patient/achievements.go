package patient

import (
	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	AchievementOnboarded       shared.AchievementID = "onboarded"
	AchievementFirstWeighIn    shared.AchievementID = "first-weigh-in"
	AchievementFirstSideEffect shared.AchievementID = "first-side-effect"
	AchievementFirstInjection  shared.AchievementID = "first-injection"
	AchievementStreak3         shared.AchievementID = "streak-3-days"
	AchievementStreak7         shared.AchievementID = "streak-7-days"
	AchievementLose5           shared.AchievementID = "lose-5-lbs"
	AchievementLose10          shared.AchievementID = "lose-10-lbs"
	AchievementPerfectDay      shared.AchievementID = "perfect-day"
)

// AchievementBonus is awarded for every newly unlocked achievement.
const AchievementBonus = 100

// AchievementDefinition describes an achievement. Presentation is a key the
// interface layer resolves to an icon; the catalog carries no rendering.
type AchievementDefinition struct {
	ID           shared.AchievementID
	Name         string
	Description  string
	Presentation string
}

// GetAchievementDefinitions returns the achievement catalog in display order.
func GetAchievementDefinitions() []AchievementDefinition {
	return []AchievementDefinition{
		{AchievementOnboarded, "Journey Begins", "You've set up your profile and are ready to go!", "trophy"},
		{AchievementFirstWeighIn, "First Weigh-in", "You logged your first weight. The first step is the most important!", "weight"},
		{AchievementFirstInjection, "Injection Pro", "You completed your first injection task. Well done!", "syringe"},
		{AchievementPerfectDay, "Perfect Day", "Completed all of your tasks for the day. Great job!", "check"},
		{AchievementStreak3, "On a Roll", "Completed your daily check-in 3 days in a row.", "flame"},
		{AchievementStreak7, "Week Warrior", "Completed your daily check-in for a whole week!", "flame"},
		{AchievementFirstSideEffect, "Vigilant Victor", "Logged your first side effect. Staying aware is key!", "check"},
		{AchievementLose5, "5 lbs Lighter!", "You've lost your first 5 pounds. Amazing progress!", "trophy"},
		{AchievementLose10, "Double Digits!", "You've lost 10 pounds. Keep up the great work!", "trophy"},
	}
}

// GetAchievementDefinition returns the definition of an achievement by id.
func GetAchievementDefinition(id shared.AchievementID) (AchievementDefinition, bool) {
	for _, def := range GetAchievementDefinitions() {
		if def.ID == id {
			return def, true
		}
	}
	return AchievementDefinition{}, false
}

// achievementRule pairs an achievement with its unlock predicate.
type achievementRule struct {
	id    shared.AchievementID
	holds func(s State, today shared.Day) bool
}

// evaluationOrder is the order in which newly unlocked ids are appended.
var evaluationOrder = []achievementRule{
	{AchievementFirstWeighIn, func(s State, _ shared.Day) bool { return len(s.WeightHistory) > 0 }},
	{AchievementFirstSideEffect, func(s State, _ shared.Day) bool { return len(s.SideEffectLogs) > 0 }},
	{AchievementFirstInjection, func(s State, _ shared.Day) bool { return s.HasCompleted(TaskInjection) }},
	{AchievementStreak3, func(s State, _ shared.Day) bool { return s.DailyStreak >= 3 }},
	{AchievementStreak7, func(s State, _ shared.Day) bool { return s.DailyStreak >= 7 }},
	{AchievementLose5, func(s State, _ shared.Day) bool { return s.WeightLost() >= 5 }},
	{AchievementLose10, func(s State, _ shared.Day) bool { return s.WeightLost() >= 10 }},
	{AchievementPerfectDay, func(s State, today shared.Day) bool { return s.AllTasksDone(today) }},
}

// EvaluateAchievements unlocks every achievement whose predicate holds and
// that is not unlocked yet, adds AchievementBonus per unlock and recomputes
// the level. Evaluating twice yields the same state.
func EvaluateAchievements(s State, today shared.Day) State {
	var unlocked []shared.AchievementID
	for _, rule := range evaluationOrder {
		if s.HasAchievement(rule.id) {
			continue
		}
		if rule.holds(s, today) {
			unlocked = append(unlocked, rule.id)
		}
	}
	if len(unlocked) == 0 {
		return s
	}

	next := s.Clone()
	next.Achievements = append(next.Achievements, unlocked...)
	return next.withPoints(AchievementBonus * len(unlocked))
}

// NewlyUnlocked returns the achievements present in next but not in prev,
// in unlock order.
func NewlyUnlocked(prev, next State) []shared.AchievementID {
	var ids []shared.AchievementID
	for _, id := range next.Achievements {
		if !prev.HasAchievement(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// AchievementStatus is a catalog entry joined with the patient's progress.
type AchievementStatus struct {
	AchievementDefinition
	Unlocked bool
}

// AchievementStatuses returns the catalog with unlock flags.
func AchievementStatuses(s State) []AchievementStatus {
	defs := GetAchievementDefinitions()
	statuses := make([]AchievementStatus, 0, len(defs))
	for _, def := range defs {
		statuses = append(statuses, AchievementStatus{
			AchievementDefinition: def,
			Unlocked:              s.HasAchievement(def.ID),
		})
	}
	return statuses
}
