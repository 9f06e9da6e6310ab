package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/healthloop/companion/config"
	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFILL REMINDER JOB
// ══════════════════════════════════════════════════════════════════════════════

// StateReader exposes the current patient and calendar day.
type StateReader interface {
	Current() (patient.State, error)
	Today() shared.Day
}

// RefillReminderJob publishes RefillDueSoon once per day while the refill
// is within the reminder window or overdue.
type RefillReminderJob struct {
	reader    StateReader
	publisher shared.EventPublisher
	flags     FeatureChecker
	logger    *slog.Logger
	window    int

	mu           sync.Mutex
	lastReminded shared.Day
}

// NewRefillReminderJob creates the job. window is the number of days before
// the due date that reminders start.
func NewRefillReminderJob(reader StateReader, publisher shared.EventPublisher, flags FeatureChecker, window int, logger *slog.Logger) *RefillReminderJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefillReminderJob{
		reader:    reader,
		publisher: publisher,
		flags:     flags,
		window:    window,
		logger:    logger.With("job", "refill_reminder"),
	}
}

// Name implements scheduler.Job.
func (j *RefillReminderJob) Name() string { return "refill_reminder" }

// Description implements scheduler.Job.
func (j *RefillReminderJob) Description() string {
	return fmt.Sprintf("Reminds the patient when the refill is due within %d days", j.window)
}

// Run implements scheduler.Job.
func (j *RefillReminderJob) Run(ctx context.Context) error {
	if j.flags != nil && !j.flags.IsEnabled(config.FeatureNotifyRefillReminder) {
		return nil
	}

	s, err := j.reader.Current()
	if errors.Is(err, shared.ErrNoPatient) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refill reminder: %w", err)
	}

	if s.RefillDueDate.IsZero() {
		return nil
	}

	today := j.reader.Today()
	days := patient.DaysUntilRefill(s, today)
	if days > j.window {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.lastReminded == today {
		return nil
	}

	if err := j.publisher.Publish(shared.NewRefillDueSoonEvent(s.RefillDueDate.String(), days, s.Medication)); err != nil {
		return fmt.Errorf("refill reminder: publish: %w", err)
	}
	j.lastReminded = today
	j.logger.Info("refill reminder sent", "days_left", days, "refill_due", s.RefillDueDate.String())
	return nil
}
