// Command healthloop runs the HealthLoop patient companion: the local API
// server with its background jobs, plus one-shot commands for onboarding,
// task check-ins, weigh-ins and side-effect reports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/healthloop/companion/config"
	"github.com/healthloop/companion/internal/application/query"
	"github.com/healthloop/companion/internal/application/saga"
	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "healthloop",
		Short:         "HealthLoop patient companion",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newOnboardCmd())
	root.AddCommand(newTaskCmd())
	root.AddCommand(newWeightCmd())
	root.AddCommand(newSideEffectCmd())
	root.AddCommand(newAchievementsCmd())
	root.AddCommand(newResetCmd())
	return root
}

// withApp loads configuration, builds the app for one command and closes it
// afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := setupLogger(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				dto, err := query.NewGetDashboardHandler(a.store).Handle(ctx, query.GetDashboardQuery{})
				if err != nil {
					return onboardingHint(err)
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), dto)
				}
				printDashboard(cmd.OutOrStdout(), dto)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the dashboard as JSON")
	return cmd
}

func printDashboard(w io.Writer, d *query.DashboardDTO) {
	_, _ = fmt.Fprintf(w, "%s · %s %s\n", d.Name, d.Medication, d.Dose)
	_, _ = fmt.Fprintf(w, "Level %d · %d points (%d to next level)\n", d.Level, d.Points, d.PointsToNextLevel)
	_, _ = fmt.Fprintf(w, "Streak: %d day(s)", d.DailyStreak)
	if d.StreakAtRisk {
		_, _ = fmt.Fprint(w, " · at risk, check in today")
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "\nToday %s (%d/%d done)\n", d.Date, d.TasksCompleted, d.TasksTotal)
	for _, t := range d.Tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		_, _ = fmt.Fprintf(w, "  [%s] %-15s %s (+%d)\n", mark, t.ID, t.Title, t.Points)
	}

	_, _ = fmt.Fprintf(w, "\nJourney: %.1f%% · lost %.1f\n", d.JourneyProgressPercent, d.WeightLost)
	_, _ = fmt.Fprintf(w, "Refill due %s (in %d day(s))\n", d.RefillDueDate, d.DaysUntilRefill)
	_, _ = fmt.Fprintf(w, "Achievements: %d/%d\n", d.UnlockedCount, len(d.Achievements))
}

// ══════════════════════════════════════════════════════════════════════════════
// ONBOARDING & RESET
// ══════════════════════════════════════════════════════════════════════════════

func newOnboardCmd() *cobra.Command {
	var p patient.Profile
	var injectionDay string

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create the patient profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseWeekday(injectionDay)
			if err != nil {
				return err
			}
			p.InjectionDay = day

			return withApp(cmd, func(ctx context.Context, a *app) error {
				s, err := a.store.Onboard(ctx, p)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "welcome %s: %d points, injections on %s, refill due %s\n",
					s.Name, s.Points.Int(), s.InjectionDay, s.RefillDueDate)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&p.Name, "name", "", "your name")
	cmd.Flags().StringVar(&p.Medication, "medication", "", "medication name")
	cmd.Flags().StringVar(&p.Dose, "dose", "", "current dose, e.g. 0.5mg")
	cmd.Flags().StringVar(&injectionDay, "injection-day", "", "weekly injection day (monday..sunday or 0-6)")
	cmd.Flags().Float64Var(&p.StartingWeight, "start-weight", 0, "starting weight")
	cmd.Flags().Float64Var(&p.TargetWeight, "target-weight", 0, "target weight")
	cmd.Flags().StringVar(&p.Motivation, "motivation", "", "what keeps you going")
	for _, name := range []string{"name", "medication", "dose", "injection-day", "start-weight", "target-weight", "motivation"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all patient data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("reset deletes all patient data; pass --yes to confirm")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.Reset(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "patient data deleted")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKING
// ══════════════════════════════════════════════════════════════════════════════

func newTaskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Daily tasks"}

	task.AddCommand(&cobra.Command{
		Use:   "complete <id>",
		Short: "Complete one of today's tasks (injection, log-weight, check-symptoms)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				before, err := a.store.Current()
				if err != nil {
					return onboardingHint(err)
				}
				s, err := a.store.CompleteTask(ctx, shared.TaskID(args[0]))
				if err != nil {
					return onboardingHint(err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "done: +%d points (total %d, level %d, streak %d)\n",
					s.Points.Int()-before.Points.Int(), s.Points.Int(), s.Level.Int(), s.DailyStreak)
				return nil
			})
		},
	})
	return task
}

func newWeightCmd() *cobra.Command {
	weight := &cobra.Command{Use: "weight", Short: "Weigh-ins"}

	weight.AddCommand(&cobra.Command{
		Use:   "log <value>",
		Short: "Record a weigh-in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid weight %q", args[0])
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				s, err := a.store.LogWeight(ctx, value)
				if err != nil {
					return onboardingHint(err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "logged %.1f · lost %.1f so far · %d points\n",
					value, s.WeightLost(), s.Points.Int())
				return nil
			})
		},
	})
	return weight
}

func newSideEffectCmd() *cobra.Command {
	se := &cobra.Command{Use: "side-effect", Short: "Side-effect reports and guidance"}

	se.AddCommand(&cobra.Command{
		Use:   "log <effect> <severity>",
		Short: "Report a side effect (severity 1-10) and wait for guidance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			severity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid severity %q", args[1])
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.flow.Execute(ctx, saga.GuidanceReport{Effect: args[0], Severity: severity})
				if err != nil {
					return onboardingHint(err)
				}
				a.flow.Wait()

				s, err := a.store.Current()
				if err != nil {
					return err
				}
				logged, ok := s.FindSideEffect(res.LogID)
				if !ok {
					return shared.ErrSideEffectNotFound
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n\n%s\n",
					logged.Effect, logged.Severity.Label(), logged.Guidance)
				return nil
			})
		},
	})

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List side-effect logs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				logs, err := query.NewListSideEffectsHandler(a.store).Handle(ctx, query.ListSideEffectsQuery{Limit: limit})
				if err != nil {
					return onboardingHint(err)
				}
				if len(logs) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no side effects logged")
					return nil
				}
				for _, l := range logs {
					status := "guidance ready"
					if l.IsLoadingGuidance {
						status = "guidance pending"
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %2d %-8s %s\n",
						l.Date.Format(time.DateTime), l.Effect, l.Severity, l.SeverityLabel, status)
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 10, "maximum number of logs (0 = all)")
	se.AddCommand(list)

	return se
}

func newAchievementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "achievements",
		Short: "List achievements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				list, err := query.NewGetAchievementsHandler(a.store).Handle(ctx)
				if err != nil {
					return onboardingHint(err)
				}
				for _, ach := range list {
					mark := " "
					if ach.Unlocked {
						mark = "x"
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[%s] %-20s %s\n", mark, ach.Name, ach.Description)
				}
				return nil
			})
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// parseWeekday accepts a weekday name (or its first three letters) or 0-6
// with Sunday as 0.
func parseWeekday(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return int(d), nil
		}
	}
	return 0, fmt.Errorf("invalid injection day %q", s)
}

func onboardingHint(err error) error {
	if errors.Is(err, shared.ErrNoPatient) {
		return errors.New("no patient yet; run `healthloop onboard` first")
	}
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
