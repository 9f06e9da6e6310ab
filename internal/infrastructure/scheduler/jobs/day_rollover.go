// Package jobs contains the companion's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/healthloop/companion/config"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAY ROLLOVER JOB
// ══════════════════════════════════════════════════════════════════════════════

// Roller is the part of the patient store the job needs.
type Roller interface {
	CheckRollover(ctx context.Context) (bool, error)
}

// FeatureChecker reports whether a feature flag is on.
type FeatureChecker interface {
	IsEnabled(featureName string) bool
}

// DayRolloverJob clears yesterday's completed tasks once the calendar day
// changes while the process is running.
type DayRolloverJob struct {
	store  Roller
	flags  FeatureChecker
	logger *slog.Logger

	rollovers atomic.Int64
}

// NewDayRolloverJob creates the job. A nil flags checker leaves it enabled.
func NewDayRolloverJob(store Roller, flags FeatureChecker, logger *slog.Logger) *DayRolloverJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DayRolloverJob{
		store:  store,
		flags:  flags,
		logger: logger.With("job", "day_rollover"),
	}
}

// Name implements scheduler.Job.
func (j *DayRolloverJob) Name() string { return "day_rollover" }

// Description implements scheduler.Job.
func (j *DayRolloverJob) Description() string {
	return "Clears yesterday's completed tasks when the calendar day changes"
}

// Run implements scheduler.Job.
func (j *DayRolloverJob) Run(ctx context.Context) error {
	if j.flags != nil && !j.flags.IsEnabled(config.FeatureTrackerRolloverWatch) {
		return nil
	}

	rolled, err := j.store.CheckRollover(ctx)
	if err != nil {
		return fmt.Errorf("day rollover: %w", err)
	}
	if rolled {
		j.rollovers.Add(1)
		j.logger.Info("new day started, daily tasks cleared")
	}
	return nil
}

// Rollovers returns how many rollovers this job has applied.
func (j *DayRolloverJob) Rollovers() int64 {
	return j.rollovers.Load()
}
