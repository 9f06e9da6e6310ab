package patient

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/healthloop/companion/internal/domain/shared"
)

// Encode serialises the state into the persisted JSON record.
// Nil slices are written as empty arrays.
func Encode(s State) ([]byte, error) {
	return json.Marshal(normalize(s))
}

// Decode parses a persisted record. Anything that does not parse into a
// plausible patient yields ErrMalformedState, which callers treat the same
// as an absent record. The level is recomputed from points.
func Decode(data []byte) (State, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return State{}, shared.ErrMalformedState
	}

	var s State
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return State{}, shared.WrapError("patient", "Decode", shared.ErrMalformedState, "cannot parse patient record", err)
	}
	if strings.TrimSpace(s.Name) == "" || s.InjectionDay < 0 || s.InjectionDay > 6 || s.Points < 0 {
		return State{}, shared.ErrMalformedState
	}
	return normalize(s), nil
}

func normalize(s State) State {
	if s.WeightHistory == nil {
		s.WeightHistory = []WeightEntry{}
	}
	if s.SideEffectLogs == nil {
		s.SideEffectLogs = []SideEffectLog{}
	}
	if s.CompletedTasksToday == nil {
		s.CompletedTasksToday = []shared.TaskID{}
	}
	if s.Achievements == nil {
		s.Achievements = []shared.AchievementID{}
	}
	s.Level = shared.LevelFor(s.Points)
	return s
}
