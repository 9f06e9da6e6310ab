package eventhandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthloop/companion/config"
	"github.com/healthloop/companion/internal/domain/shared"
	"github.com/healthloop/companion/internal/infrastructure/messaging"
)

type flagSet map[string]bool

func (f flagSet) IsEnabled(name string) bool { return f[name] }

func TestOnLevelUpHandler(t *testing.T) {
	rec := &RecordingNotifier{}
	h := NewOnLevelUpHandler(rec, nil, nil)

	require.NoError(t, h.Handle(shared.NewLevelUpEvent(1, 2, 1100)))
	require.NoError(t, h.Handle(shared.NewAchievementUnlockedEvent("first-injection", "First Injection", 100)))

	notices := rec.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, NoticeLevelUp, notices[0].Kind)
	assert.Equal(t, "Level 2 reached!", notices[0].Title)
	assert.Contains(t, notices[0].Body, "1100 points")
	assert.Equal(t, NoticeAchievement, notices[1].Kind)
	assert.Equal(t, "Achievement unlocked: First Injection", notices[1].Title)
	assert.Equal(t, "+100 bonus points", notices[1].Body)
}

func TestOnLevelUpHandler_FlagOff(t *testing.T) {
	rec := &RecordingNotifier{}
	h := NewOnLevelUpHandler(rec, flagSet{}, nil)

	require.NoError(t, h.Handle(shared.NewLevelUpEvent(1, 2, 1100)))
	assert.Empty(t, rec.Notices())
}

func TestHandlers_FollowConfiguredFlags(t *testing.T) {
	t.Setenv("FEATURE_NOTIFY_LEVEL_UP", "false")
	flags := config.LoadFeatureFlags()

	rec := &RecordingNotifier{}
	require.NoError(t, NewOnLevelUpHandler(rec, flags, nil).Handle(shared.NewLevelUpEvent(1, 2, 1100)))
	assert.Empty(t, rec.Notices())

	require.NoError(t, NewOnRefillDueSoonHandler(rec, flags, nil).Handle(shared.NewRefillDueSoonEvent("2024-01-29", 2, "Semaglutide")))
	assert.Len(t, rec.Notices(), 1)
}

func TestOnRefillDueSoonHandler(t *testing.T) {
	tests := []struct {
		name     string
		daysLeft int
		title    string
		body     string
	}{
		{"in days", 3, "Refill due soon", "Your Semaglutide refill is due in 3 days (2024-01-29)."},
		{"tomorrow", 1, "Refill due soon", "Your Semaglutide refill is due tomorrow (2024-01-29)."},
		{"today", 0, "Refill due soon", "Your Semaglutide refill is due today."},
		{"overdue", -2, "Refill overdue", "Your Semaglutide refill was due on 2024-01-29."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &RecordingNotifier{}
			h := NewOnRefillDueSoonHandler(rec, flagSet{config.FeatureNotifyRefillReminder: true}, nil)

			require.NoError(t, h.Handle(shared.NewRefillDueSoonEvent("2024-01-29", tt.daysLeft, "Semaglutide")))

			notices := rec.Notices()
			require.Len(t, notices, 1)
			assert.Equal(t, NoticeRefill, notices[0].Kind)
			assert.Equal(t, tt.title, notices[0].Title)
			assert.Equal(t, tt.body, notices[0].Body)
		})
	}
}

func TestOnRefillDueSoonHandler_IgnoresOtherEvents(t *testing.T) {
	rec := &RecordingNotifier{}
	h := NewOnRefillDueSoonHandler(rec, nil, nil)

	require.NoError(t, h.Handle(shared.NewLevelUpEvent(1, 2, 1000)))
	assert.Empty(t, rec.Notices())
}

func TestRegister(t *testing.T) {
	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	defer bus.Close()

	rec := &RecordingNotifier{}
	require.NoError(t, Register(bus, rec, nil, nil))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent(2, 3, 2000)))
	require.NoError(t, bus.Publish(shared.NewRefillDueSoonEvent("2024-01-29", 2, "Semaglutide")))
	require.NoError(t, bus.Publish(shared.NewStreakUpdatedEvent(1, 2)))

	notices := rec.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, NoticeLevelUp, notices[0].Kind)
	assert.Equal(t, NoticeRefill, notices[1].Kind)
}
