package messaging

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthloop/companion/internal/domain/shared"
)

func quietBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestInMemoryEventBus_Delivery(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent(1, 2, 1000)))
	require.NoError(t, bus.Publish(shared.NewPatientResetEvent()))

	assert.Equal(t, []shared.EventType{shared.EventLevelUp}, typed)
	assert.Equal(t, []shared.EventType{shared.EventLevelUp, shared.EventPatientReset}, all)

	stats := bus.Stats()
	assert.Equal(t, int64(1), stats.Published[shared.EventLevelUp])
	assert.Equal(t, int64(1), stats.Published[shared.EventPatientReset])
	assert.Equal(t, int64(3), stats.Deliveries)
	assert.Zero(t, stats.Failures)
}

func TestInMemoryEventBus_HandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	reached := false
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("handler bug") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		reached = true
		return nil
	}))

	assert.NoError(t, bus.Publish(shared.NewPatientResetEvent()))
	assert.True(t, reached)
	assert.Equal(t, int64(2), bus.Stats().Failures)
}

func TestInMemoryEventBus_Close(t *testing.T) {
	bus := quietBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewPatientResetEvent()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.Error(t, bus.Publish(nil))
	assert.Error(t, bus.Subscribe(shared.EventLevelUp, nil))
}

func TestInMemoryEventBus_Middleware(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	var order []string
	bus.Use(func(next shared.EventHandler) shared.EventHandler {
		return func(e shared.Event) error {
			order = append(order, "before")
			err := next(e)
			order = append(order, "after")
			return err
		}
	})
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		order = append(order, "handler")
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewPatientResetEvent()))
	assert.Equal(t, []string{"before", "handler", "after"}, order)
}
