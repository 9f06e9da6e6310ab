package query

import (
	"context"

	"github.com/healthloop/companion/internal/domain/patient"
)

// AchievementDTO is a catalog entry with the patient's unlock flag.
type AchievementDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Presentation string `json:"presentation"`
	Unlocked     bool   `json:"unlocked"`
}

// GetAchievementsHandler lists the achievement catalog.
type GetAchievementsHandler struct {
	reader StateReader
}

// NewGetAchievementsHandler creates a new handler.
func NewGetAchievementsHandler(reader StateReader) *GetAchievementsHandler {
	return &GetAchievementsHandler{reader: reader}
}

// Handle returns every achievement in display order.
func (h *GetAchievementsHandler) Handle(ctx context.Context) ([]AchievementDTO, error) {
	s, err := h.reader.Current()
	if err != nil {
		return nil, err
	}
	return achievementDTOs(s), nil
}

func achievementDTOs(s patient.State) []AchievementDTO {
	statuses := patient.AchievementStatuses(s)
	out := make([]AchievementDTO, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, AchievementDTO{
			ID:           st.ID.String(),
			Name:         st.Name,
			Description:  st.Description,
			Presentation: st.Presentation,
			Unlocked:     st.Unlocked,
		})
	}
	return out
}
