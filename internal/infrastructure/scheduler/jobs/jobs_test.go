package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthloop/companion/config"
	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
)

type flagSet map[string]bool

func (f flagSet) IsEnabled(name string) bool { return f[name] }

type fakeRoller struct {
	calls  int
	rolled bool
	err    error
}

func (f *fakeRoller) CheckRollover(context.Context) (bool, error) {
	f.calls++
	return f.rolled, f.err
}

func TestDayRolloverJob(t *testing.T) {
	roller := &fakeRoller{rolled: true}
	job := NewDayRolloverJob(roller, nil, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, roller.calls)
	assert.Equal(t, int64(1), job.Rollovers())
	assert.Equal(t, "day_rollover", job.Name())
}

func TestDayRolloverJob_FlagOff(t *testing.T) {
	roller := &fakeRoller{rolled: true}
	job := NewDayRolloverJob(roller, flagSet{}, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, roller.calls)
}

func TestDayRolloverJob_Error(t *testing.T) {
	boom := errors.New("disk full")
	job := NewDayRolloverJob(&fakeRoller{err: boom}, flagSet{config.FeatureTrackerRolloverWatch: true}, nil)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, job.Rollovers())
}

type fakeReader struct {
	state patient.State
	err   error
	today shared.Day
}

func (f *fakeReader) Current() (patient.State, error) { return f.state, f.err }
func (f *fakeReader) Today() shared.Day               { return f.today }

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func onboarded() patient.State {
	return patient.NewState(patient.Profile{
		Name: "Dana", Medication: "Semaglutide", Dose: "0.5mg",
		InjectionDay: int(time.Monday), StartingWeight: 200, TargetWeight: 170, Motivation: "m",
	}, "2024-01-01")
}

func TestRefillReminderJob(t *testing.T) {
	reader := &fakeReader{state: onboarded(), today: "2024-01-27"}
	pub := &recordingPublisher{}
	job := NewRefillReminderJob(reader, pub, nil, 3, nil)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, pub.events, 1)
	e, ok := pub.events[0].(shared.RefillDueSoonEvent)
	require.True(t, ok)
	assert.Equal(t, 2, e.DaysLeft)
	assert.Equal(t, "2024-01-29", e.RefillDueDate)
	assert.Equal(t, "Semaglutide", e.Medication)

	// Once per day.
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, pub.events, 1)

	reader.today = "2024-01-28"
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, pub.events, 2)
}

func TestRefillReminderJob_OutsideWindow(t *testing.T) {
	pub := &recordingPublisher{}
	job := NewRefillReminderJob(&fakeReader{state: onboarded(), today: "2024-01-10"}, pub, nil, 3, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, pub.events)
}

func TestRefillReminderJob_NoPatient(t *testing.T) {
	pub := &recordingPublisher{}
	job := NewRefillReminderJob(&fakeReader{err: shared.ErrNoPatient, today: "2024-01-28"}, pub, nil, 3, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, pub.events)
}

func TestRefillReminderJob_FlagOff(t *testing.T) {
	pub := &recordingPublisher{}
	job := NewRefillReminderJob(&fakeReader{state: onboarded(), today: "2024-01-28"}, pub, flagSet{}, 3, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, pub.events)
}
