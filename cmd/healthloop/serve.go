package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/healthloop/companion/config"
	"github.com/healthloop/companion/internal/infrastructure/scheduler"
	"github.com/healthloop/companion/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/healthloop/companion/internal/interface/http"
	"github.com/healthloop/companion/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local API server and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if noScheduler {
				cfg.Scheduler.Enabled = false
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "disable background jobs")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. Logging
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting HealthLoop companion",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
		"storage", cfg.Storage.Backend,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Application
	// ─────────────────────────────────────────────────────────────────────────
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = newScheduler(cfg, a)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.APITokenHash = cfg.HTTP.APITokenHash
	httpCfg.Version = cfg.App.Version

	reqLog := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: logger.ParseFormat(cfg.Observability.LogFormat),
	})

	srv := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Patients:      a.store,
		SideEffect:    a.flow,
		HealthChecker: a.health,
		Logger:        reqLog,
	})
	timeout := cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = shutdownGrace
	}

	log.Info("HealthLoop companion is running", "http_address", httpCfg.Address())
	err = srv.ListenAndServe(ctx, timeout)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	if sched != nil {
		if stopErr := sched.Stop(); stopErr != nil {
			log.Warn("failed to stop scheduler", "error", stopErr)
		}
	}
	if err != nil {
		log.Error("http server error", "error", err)
		return err
	}

	log.Info("shutdown completed")
	return nil
}

// newScheduler registers the day-boundary watcher and the refill reminder.
func newScheduler(cfg *config.Config, a *app) (*scheduler.Scheduler, error) {
	loc := cfg.App.Location

	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = a.log
	schedCfg.Timezone = loc
	schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	sched := scheduler.NewScheduler(schedCfg)

	rollover := jobs.NewDayRolloverJob(a.store, cfg.Features, a.log)
	if err := sched.Register(rollover, scheduler.NewAlignedSchedule(cfg.Scheduler.RolloverInterval)); err != nil {
		return nil, err
	}

	cron, err := scheduler.ParseCron(cfg.Scheduler.RefillReminderCron, loc)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_REFILL_CRON: %w", err)
	}
	reminder := jobs.NewRefillReminderJob(a.store, a.bus, cfg.Features, cfg.Scheduler.RefillReminderDays, a.log)
	if err := sched.Register(reminder, cron, scheduler.RunAtStart()); err != nil {
		return nil, err
	}

	sched.OnJobComplete(func(r scheduler.JobResult) {
		if !r.Success() {
			a.log.Warn("job failed", "job", r.JobName, "error", r.Err, "duration", r.Duration)
		}
	})
	a.health.AddStats("scheduler", func() any { return sched.Status() })

	return sched, nil
}

// shutdownGrace is how long in-flight requests get when no timeout is set.
const shutdownGrace = 5 * time.Second
