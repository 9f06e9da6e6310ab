package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEIGHT AND SIDE-EFFECT LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// WeightLogPoints are awarded for every weigh-in.
const WeightLogPoints = 25

// CommonSideEffects lists the effects offered for quick selection.
var CommonSideEffects = []string{
	"Nausea",
	"Vomiting",
	"Diarrhea",
	"Stomach Pain",
	"Constipation",
	"Fatigue",
	"Headache",
	"Injection Site Reaction",
	"Decreased Appetite",
}

// LogWeight appends a weigh-in, awards WeightLogPoints and evaluates
// achievements. The weight is assumed positive.
func LogWeight(s State, weight float64, now time.Time, today shared.Day) State {
	next := s.Clone()
	next.WeightHistory = append(next.WeightHistory, WeightEntry{Date: now, Weight: weight})
	next = next.withPoints(WeightLogPoints)
	return EvaluateAchievements(next, today)
}

// LogSideEffect appends a side-effect log waiting for guidance and returns
// the new log id.
func LogSideEffect(s State, effect string, severity shared.Severity, now time.Time, today shared.Day) (State, string) {
	id := uuid.NewString()
	next := s.Clone()
	next.SideEffectLogs = append(next.SideEffectLogs, SideEffectLog{
		ID:                id,
		Date:              now,
		Effect:            effect,
		Severity:          severity,
		IsLoadingGuidance: true,
	})
	return EvaluateAchievements(next, today), id
}

// AttachGuidance resolves the pending log with the given id. Unknown ids and
// logs that already carry guidance are left untouched.
func AttachGuidance(s State, logID, text string) State {
	for i, l := range s.SideEffectLogs {
		if l.ID != logID {
			continue
		}
		if !l.IsPending() {
			return s
		}
		next := s.Clone()
		next.SideEffectLogs[i].Guidance = text
		next.SideEffectLogs[i].IsLoadingGuidance = false
		return next
	}
	return s
}
