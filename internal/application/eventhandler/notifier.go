// Package eventhandler contains handlers that react to patient domain events.
package eventhandler

import (
	"context"
	"log/slog"
	"sync"
)

// NoticeKind classifies a patient-facing notice.
type NoticeKind string

const (
	NoticeLevelUp     NoticeKind = "level_up"
	NoticeAchievement NoticeKind = "achievement"
	NoticeRefill      NoticeKind = "refill_due_soon"
)

// Notice is a message meant for the patient.
type Notice struct {
	Kind  NoticeKind
	Title string
	Body  string
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// FeatureChecker reports whether a feature flag is on.
type FeatureChecker interface {
	IsEnabled(featureName string) bool
}

// LogNotifier writes notices to the structured log. It is the only delivery
// channel of the local companion.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, notice Notice) error {
	n.logger.InfoContext(ctx, notice.Title,
		"kind", string(notice.Kind),
		"body", notice.Body,
	)
	return nil
}

// RecordingNotifier keeps every notice in memory.
type RecordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Notifier.
func (r *RecordingNotifier) Notify(_ context.Context, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

// Notices returns a copy of the recorded notices.
func (r *RecordingNotifier) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

type allFlags struct{}

func (allFlags) IsEnabled(string) bool { return true }
