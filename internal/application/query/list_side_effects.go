package query

import (
	"context"
	"time"

	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

// SideEffectDTO is one side-effect log.
type SideEffectDTO struct {
	ID                string    `json:"id"`
	Date              time.Time `json:"date"`
	Effect            string    `json:"effect"`
	Severity          int       `json:"severity"`
	SeverityLabel     string    `json:"severity_label"`
	Guidance          string    `json:"guidance,omitempty"`
	IsLoadingGuidance bool      `json:"is_loading_guidance"`
}

// ListSideEffectsQuery contains the listing parameters.
type ListSideEffectsQuery struct {
	// ID selects a single log. Empty means all.
	ID string

	// Limit caps the number of logs; zero means all.
	Limit int
}

// ListSideEffectsHandler lists side-effect logs, newest first.
type ListSideEffectsHandler struct {
	reader StateReader
}

// NewListSideEffectsHandler creates a new handler.
func NewListSideEffectsHandler(reader StateReader) *ListSideEffectsHandler {
	return &ListSideEffectsHandler{reader: reader}
}

// Handle executes the query.
func (h *ListSideEffectsHandler) Handle(ctx context.Context, q ListSideEffectsQuery) ([]SideEffectDTO, error) {
	s, err := h.reader.Current()
	if err != nil {
		return nil, err
	}
	if q.ID != "" {
		l, ok := s.FindSideEffect(q.ID)
		if !ok {
			return nil, shared.ErrSideEffectNotFound
		}
		return []SideEffectDTO{sideEffectDTO(l)}, nil
	}
	return sideEffectDTOs(s, q.Limit), nil
}

func sideEffectDTOs(s patient.State, limit int) []SideEffectDTO {
	n := len(s.SideEffectLogs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]SideEffectDTO, 0, n)
	for i := len(s.SideEffectLogs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, sideEffectDTO(s.SideEffectLogs[i]))
	}
	return out
}

func sideEffectDTO(l patient.SideEffectLog) SideEffectDTO {
	return SideEffectDTO{
		ID:                l.ID,
		Date:              l.Date,
		Effect:            l.Effect,
		Severity:          l.Severity.Int(),
		SeverityLabel:     l.Severity.Label(),
		Guidance:          l.Guidance,
		IsLoadingGuidance: l.IsLoadingGuidance,
	}
}
