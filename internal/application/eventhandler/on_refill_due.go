package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/healthloop/companion/config"
	"github.com/healthloop/companion/internal/domain/shared"
)

// OnRefillDueSoonHandler reminds the patient to order the next refill.
type OnRefillDueSoonHandler struct {
	notifier Notifier
	flags    FeatureChecker
	logger   *slog.Logger
}

// NewOnRefillDueSoonHandler creates the handler. A nil flags checker enables it.
func NewOnRefillDueSoonHandler(notifier Notifier, flags FeatureChecker, logger *slog.Logger) *OnRefillDueSoonHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if flags == nil {
		flags = allFlags{}
	}
	return &OnRefillDueSoonHandler{
		notifier: notifier,
		flags:    flags,
		logger:   logger.With("handler", "on_refill_due_soon"),
	}
}

// Handle implements shared.EventHandler.
func (h *OnRefillDueSoonHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.RefillDueSoonEvent)
	if !ok {
		h.logger.Warn("received non-RefillDueSoonEvent", "event_type", event.EventType())
		return nil
	}
	if !h.flags.IsEnabled(config.FeatureNotifyRefillReminder) {
		return nil
	}

	notice := Notice{Kind: NoticeRefill, Title: "Refill due soon"}
	switch {
	case e.DaysLeft < 0:
		notice.Title = "Refill overdue"
		notice.Body = fmt.Sprintf("Your %s refill was due on %s.", e.Medication, e.RefillDueDate)
	case e.DaysLeft == 0:
		notice.Body = fmt.Sprintf("Your %s refill is due today.", e.Medication)
	case e.DaysLeft == 1:
		notice.Body = fmt.Sprintf("Your %s refill is due tomorrow (%s).", e.Medication, e.RefillDueDate)
	default:
		notice.Body = fmt.Sprintf("Your %s refill is due in %d days (%s).", e.Medication, e.DaysLeft, e.RefillDueDate)
	}

	if err := h.notifier.Notify(context.Background(), notice); err != nil {
		return fmt.Errorf("notify refill: %w", err)
	}
	return nil
}
