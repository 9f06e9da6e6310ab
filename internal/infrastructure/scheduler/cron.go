package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a parsed 5-field cron expression evaluated in a fixed
// timezone: minute hour day-of-month month day-of-week.
// Examples:
//   - "0 9 * * *"   every day at 09:00
//   - "*/15 * * * *" every 15 minutes
//   - "0 8 * * 1"   Mondays at 08:00
type CronSchedule struct {
	raw      string
	location *time.Location
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)
}

// Common expressions.
const (
	EveryMinute   = "* * * * *"
	EveryHour     = "0 * * * *"
	EveryDay9AM   = "0 9 * * *"
	EveryMidnight = "0 0 * * *"
)

// ParseCron parses a cron expression evaluated in loc (nil means Local).
// Supports *, */n, n, n-m, n-m/s and comma lists of those.
func ParseCron(expr string, loc *time.Location) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}
	if loc == nil {
		loc = time.Local
	}

	cs := &CronSchedule{raw: expr, location: loc}
	specs := []struct {
		name     string
		dst      *[]int
		min, max int
	}{
		{"minute", &cs.minutes, 0, 59},
		{"hour", &cs.hours, 0, 23},
		{"day", &cs.days, 1, 31},
		{"month", &cs.months, 1, 12},
		{"weekday", &cs.weekdays, 0, 6},
	}
	for i, spec := range specs {
		values, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", spec.name, err)
		}
		*spec.dst = values
	}
	return cs, nil
}

// MustParseCron parses a cron expression or panics. Use only for constants.
func MustParseCron(expr string, loc *time.Location) *CronSchedule {
	cs, err := ParseCron(expr, loc)
	if err != nil {
		panic(err)
	}
	return cs
}

// parseField parses one field: a comma list of terms.
func parseField(field string, min, max int) ([]int, error) {
	set := make(map[int]struct{})
	for _, term := range strings.Split(field, ",") {
		if err := parseTerm(strings.TrimSpace(term), min, max, set); err != nil {
			return nil, err
		}
	}

	result := make([]int, 0, len(set))
	for v := range set {
		result = append(result, v)
	}
	sort.Ints(result)
	return result, nil
}

// parseTerm parses *, n, n-m with an optional /step.
func parseTerm(term string, min, max int, set map[int]struct{}) error {
	if term == "" {
		return fmt.Errorf("empty term")
	}

	rangePart, step := term, 1
	if i := strings.IndexByte(term, '/'); i >= 0 {
		s, err := strconv.Atoi(term[i+1:])
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid step value: %s", term[i+1:])
		}
		rangePart, step = term[:i], s
	}

	start, end := min, max
	switch {
	case rangePart == "*":
	case strings.Contains(rangePart, "-"):
		bounds := strings.SplitN(rangePart, "-", 2)
		var err error
		if start, err = strconv.Atoi(bounds[0]); err != nil {
			return fmt.Errorf("invalid range start: %s", bounds[0])
		}
		if end, err = strconv.Atoi(bounds[1]); err != nil {
			return fmt.Errorf("invalid range end: %s", bounds[1])
		}
	default:
		v, err := strconv.Atoi(rangePart)
		if err != nil {
			return fmt.Errorf("invalid value: %s", rangePart)
		}
		start = v
		if step == 1 {
			end = v
		}
	}

	if start < min || end > max || start > end {
		return fmt.Errorf("value out of range [%d-%d]: %s", min, max, term)
	}
	for v := start; v <= end; v += step {
		set[v] = struct{}{}
	}
	return nil
}

// String returns the original expression.
func (cs *CronSchedule) String() string {
	return cs.raw
}

// Location returns the timezone the expression is evaluated in.
func (cs *CronSchedule) Location() *time.Location {
	return cs.location
}

// Next returns the first matching minute strictly after t, or the zero time
// when nothing matches within a year (e.g. "0 0 31 2 *").
func (cs *CronSchedule) Next(after time.Time) time.Time {
	t := after.In(cs.location).Truncate(time.Minute).Add(time.Minute)

	const maxIterations = 366 * 24 * 60
	for i := 0; i < maxIterations; i++ {
		if !containsInt(cs.months, int(t.Month())) {
			// Jump to the first minute of the next month.
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, cs.location)
			continue
		}
		if !containsInt(cs.days, t.Day()) || !containsInt(cs.weekdays, int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, cs.location)
			continue
		}
		if !containsInt(cs.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, cs.location)
			continue
		}
		if containsInt(cs.minutes, t.Minute()) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func containsInt(slice []int, val int) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}
