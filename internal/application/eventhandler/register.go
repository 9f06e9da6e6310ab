package eventhandler

import (
	"fmt"
	"log/slog"

	"github.com/healthloop/companion/internal/domain/shared"
)

// Register subscribes every notification handler to the bus.
func Register(bus shared.EventSubscriber, notifier Notifier, flags FeatureChecker, logger *slog.Logger) error {
	levelUp := NewOnLevelUpHandler(notifier, flags, logger)
	refill := NewOnRefillDueSoonHandler(notifier, flags, logger)

	subs := []struct {
		eventType shared.EventType
		handler   shared.EventHandler
	}{
		{shared.EventLevelUp, levelUp.Handle},
		{shared.EventAchievementUnlocked, levelUp.Handle},
		{shared.EventRefillDueSoon, refill.Handle},
	}
	for _, s := range subs {
		if err := bus.Subscribe(s.eventType, s.handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.eventType, err)
		}
	}
	return nil
}
