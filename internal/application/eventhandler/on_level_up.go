package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/healthloop/companion/config"
	"github.com/healthloop/companion/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEVEL UP / ACHIEVEMENT UNLOCKED
// Celebrates progress. Both are silenced by the notify.level_up flag.
// ═══════════════════════════════════════════════════════════════════════════

// OnLevelUpHandler turns LevelUp and AchievementUnlocked events into notices.
type OnLevelUpHandler struct {
	notifier Notifier
	flags    FeatureChecker
	logger   *slog.Logger
}

// NewOnLevelUpHandler creates the handler. A nil flags checker enables it.
func NewOnLevelUpHandler(notifier Notifier, flags FeatureChecker, logger *slog.Logger) *OnLevelUpHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if flags == nil {
		flags = allFlags{}
	}
	return &OnLevelUpHandler{
		notifier: notifier,
		flags:    flags,
		logger:   logger.With("handler", "on_level_up"),
	}
}

// Handle implements shared.EventHandler.
func (h *OnLevelUpHandler) Handle(event shared.Event) error {
	if !h.flags.IsEnabled(config.FeatureNotifyLevelUp) {
		return nil
	}

	var notice Notice
	switch e := event.(type) {
	case shared.LevelUpEvent:
		notice = Notice{
			Kind:  NoticeLevelUp,
			Title: fmt.Sprintf("Level %d reached!", e.NewLevel),
			Body:  fmt.Sprintf("You now have %d points. Keep going!", e.Points),
		}
	case shared.AchievementUnlockedEvent:
		notice = Notice{
			Kind:  NoticeAchievement,
			Title: "Achievement unlocked: " + e.Name,
			Body:  fmt.Sprintf("+%d bonus points", e.BonusPoints),
		}
	default:
		h.logger.Warn("unexpected event", "event_type", event.EventType())
		return nil
	}

	if err := h.notifier.Notify(context.Background(), notice); err != nil {
		return fmt.Errorf("notify %s: %w", notice.Kind, err)
	}
	return nil
}
