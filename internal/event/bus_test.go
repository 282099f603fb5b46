package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestBusDeliversToMatchingPatterns(t *testing.T) {
	bus := NewBus()
	var cel, all, layer []Event

	_, err := bus.Subscribe("doc.cel.*", func(_ context.Context, ev Event) error {
		cel = append(cel, ev)
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("doc.**", func(_ context.Context, ev Event) error {
		all = append(all, ev)
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("doc.layer.*", func(_ context.Context, ev Event) error {
		layer = append(layer, ev)
		return nil
	})
	require.NoError(t, err)

	doc := uuid.New()
	require.NoError(t, bus.Publish(context.Background(), New(TopicCelAdded, doc, ObjectPayload{ID: 7})))
	require.NoError(t, bus.Publish(context.Background(), New(TopicFrameAdded, doc, nil)))

	require.Len(t, cel, 1)
	assert.Equal(t, doc, cel[0].Document)
	assert.Equal(t, ObjectPayload{ID: 7}, cel[0].Payload)
	assert.False(t, cel[0].Time.IsZero())
	assert.Len(t, all, 2)
	assert.Less(t, all[0].Seq, all[1].Seq)
	assert.Empty(t, layer)
}

func TestBusIsolatesFailures(t *testing.T) {
	var panicked *PanicError
	bus := NewBus(WithPanicHandler(func(_ Event, err *PanicError) { panicked = err }))

	boom := errors.New("boom")
	calls := 0
	_, _ = bus.Subscribe("doc.**", func(context.Context, Event) error { panic("bad handler") })
	_, _ = bus.Subscribe("doc.**", func(context.Context, Event) error { return boom })
	_, _ = bus.Subscribe("doc.**", func(context.Context, Event) error {
		calls++
		return nil
	})

	err := bus.Publish(context.Background(), New(TopicMaskChanged, uuid.Nil, nil))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, multierr.Errors(err), 2)

	require.NotNil(t, panicked)
	assert.Equal(t, "bad handler", panicked.Value)

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.HandlerPanics)
	assert.Equal(t, uint64(1), stats.HandlerErrors)
	assert.Equal(t, uint64(3), stats.HandlersExecuted)
}

func TestBusSubscribeValidation(t *testing.T) {
	bus := NewBus()
	_, err := bus.Subscribe("", func(context.Context, Event) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidTopic)
	_, err = bus.Subscribe("doc.*", nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	err = bus.Publish(context.Background(), New("doc.*", uuid.Nil, nil))
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestBusUnsubscribeAndClose(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub, err := bus.Subscribe("doc.cel.added", func(context.Context, Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Stats().Subscriptions)

	require.NoError(t, bus.Unsubscribe(sub))
	assert.ErrorIs(t, bus.Unsubscribe(sub), ErrSubscriptionNotFound)
	require.NoError(t, bus.Publish(context.Background(), New(TopicCelAdded, uuid.Nil, nil)))
	assert.Zero(t, calls)

	bus.Close()
	assert.ErrorIs(t, bus.Publish(context.Background(), New(TopicCelAdded, uuid.Nil, nil)), ErrBusClosed)
	_, err = bus.Subscribe("doc.*", func(context.Context, Event) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBusStopsOnCancelledContext(t *testing.T) {
	bus := NewBus()
	calls := 0
	_, _ = bus.Subscribe("doc.**", func(context.Context, Event) error {
		calls++
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bus.Publish(ctx, New(TopicCelAdded, uuid.Nil, nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
