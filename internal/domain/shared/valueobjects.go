// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Day Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DayLayout is the calendar date format used for check-in and refill dates.
const DayLayout = "2006-01-02"

// Day is a calendar date (YYYY-MM-DD) in the installation's timezone.
// The zero value means "no date" and is encoded as JSON null.
type Day string

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return Day(t.In(loc).Format(DayLayout))
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(DayLayout, s); err != nil {
		return "", WrapError("shared", "ParseDay", ErrInvalidFormat, "day must be YYYY-MM-DD", err)
	}
	return Day(s), nil
}

// String returns the string representation.
func (d Day) String() string {
	return string(d)
}

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool {
	return d == ""
}

// date returns the day as midnight UTC. Calendar arithmetic is done in UTC
// so that DST transitions in the local zone never skip or repeat a day.
func (d Day) date() time.Time {
	t, err := time.Parse(DayLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns the day n days after d (n may be negative).
func (d Day) AddDays(n int) Day {
	if d.IsZero() {
		return d
	}
	return Day(d.date().AddDate(0, 0, n).Format(DayLayout))
}

// Yesterday returns the previous calendar day.
func (d Day) Yesterday() Day {
	return d.AddDays(-1)
}

// Weekday returns the day of the week (Sunday = 0).
func (d Day) Weekday() time.Weekday {
	return d.date().Weekday()
}

// DaysUntil returns the number of calendar days from d to other.
// Negative when other is in the past.
func (d Day) DaysUntil(other Day) int {
	if d.IsZero() || other.IsZero() {
		return 0
	}
	return int(other.date().Sub(d.date()).Hours() / 24)
}

// Before reports whether d is strictly before other.
func (d Day) Before(other Day) bool {
	return d.date().Before(other.date())
}

// MarshalJSON encodes the zero day as null.
func (d Day) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// UnmarshalJSON accepts null or a YYYY-MM-DD string.
func (d *Day) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = ""
		return nil
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Points Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Points represents the patient's gamification points.
type Points int

// PointsPerLevel is the number of points that separates two levels.
const PointsPerLevel = 1000

// Int returns the underlying int value.
func (p Points) Int() int {
	return int(p)
}

// Add adds points and returns the result, floored at zero.
func (p Points) Add(amount int) Points {
	result := Points(int(p) + amount)
	if result < 0 {
		return 0
	}
	return result
}

// Level returns the level derived from the points total.
func (p Points) Level() Level {
	return LevelFor(p)
}

// ToNextLevel returns how many points are missing for the next level.
func (p Points) ToNextLevel() int {
	next := p.Level().RequiredPoints() + PointsPerLevel
	return next - int(p)
}

// ProgressToNextLevel returns percentage progress to next level (0-100).
func (p Points) ProgressToNextLevel() int {
	if p < 0 {
		return 0
	}
	return (int(p) % PointsPerLevel) * 100 / PointsPerLevel
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Level represents the patient's level. It is always derived from points.
type Level int

// MinLevel is the level of a freshly onboarded patient.
const MinLevel Level = 1

// LevelFor computes floor(points/1000)+1.
func LevelFor(p Points) Level {
	if p <= 0 {
		return MinLevel
	}
	return Level(int(p)/PointsPerLevel) + 1
}

// Int returns the underlying int value.
func (l Level) Int() int {
	return int(l)
}

// RequiredPoints returns the total points required to reach this level.
func (l Level) RequiredPoints() int {
	if l <= MinLevel {
		return 0
	}
	return (int(l) - 1) * PointsPerLevel
}

// ═══════════════════════════════════════════════════════════════════════════
// Severity Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Severity is a side-effect severity on a 1-10 scale.
type Severity int

const (
	MinSeverity Severity = 1
	MaxSeverity Severity = 10
)

// IsValid checks if the severity is within valid range.
func (s Severity) IsValid() bool {
	return s >= MinSeverity && s <= MaxSeverity
}

// Int returns the underlying int value.
func (s Severity) Int() int {
	return int(s)
}

// Label returns a coarse description of the severity.
func (s Severity) Label() string {
	switch {
	case s <= 3:
		return "mild"
	case s <= 6:
		return "moderate"
	default:
		return "severe"
	}
}

// String returns the "n/10" form used in prompts and listings.
func (s Severity) String() string {
	return fmt.Sprintf("%d/%d", s, MaxSeverity)
}

// NewSeverity creates a new Severity with validation.
func NewSeverity(value int) (Severity, error) {
	if value < int(MinSeverity) || value > int(MaxSeverity) {
		return 0, ErrInvalidSeverity
	}
	return Severity(value), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Identifier Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TaskID identifies a daily task.
type TaskID string

// String returns the string representation.
func (t TaskID) String() string {
	return string(t)
}

// AchievementID identifies an achievement.
type AchievementID string

// String returns the string representation.
func (a AchievementID) String() string {
	return string(a)
}
