package events_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/equiptrack-client/events"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newBus() *events.Bus {
	return events.New(events.WithLogger(zerolog.Nop()))
}

func recorder(calls *[]string, label string, result any) events.Handler {
	return func(evt events.Event) (any, error) {
		*calls = append(*calls, label+":"+evt.Name)
		return result, nil
	}
}

func TestEmitExactThenWildcardInRegistrationOrder(t *testing.T) {
	bus := newBus()
	var calls []string

	_, err := bus.Subscribe("user.*", recorder(&calls, "wild", "w"))
	require.NoError(t, err)
	_, err = bus.Subscribe("user.created", recorder(&calls, "exact1", "e1"))
	require.NoError(t, err)
	_, err = bus.Subscribe("user.created", recorder(&calls, "exact2", "e2"))
	require.NoError(t, err)
	_, err = bus.Subscribe("equipment.*", recorder(&calls, "other", "o"))
	require.NoError(t, err)

	results := bus.Emit("user.created", 42)

	require.Equal(t, []string{"exact1:user.created", "exact2:user.created", "wild:user.created"}, calls)
	require.Equal(t, []any{"e1", "e2", "w"}, results)
}

func TestOnceListenerRunsOnlyOnce(t *testing.T) {
	bus := newBus()
	var calls []string

	_, err := bus.Once("user.created", recorder(&calls, "once", nil))
	require.NoError(t, err)
	_, err = bus.Subscribe("user.*", recorder(&calls, "wild", nil), events.Once())
	require.NoError(t, err)

	bus.Emit("user.created")
	bus.Emit("user.created")

	require.Equal(t, []string{"once:user.created", "wild:user.created"}, calls)
	require.Equal(t, 0, bus.ListenerCount(""))
}

func TestOnceListenerRemovedEvenWhenItFails(t *testing.T) {
	bus := newBus()
	var count int
	_, err := bus.Once("boom", func(events.Event) (any, error) {
		count++
		panic("listener exploded")
	})
	require.NoError(t, err)

	require.NotPanics(t, func() { bus.Emit("boom") })
	bus.Emit("boom")
	require.Equal(t, 1, count)
}

func TestOnceListenerUnderConcurrentEmit(t *testing.T) {
	bus := newBus()
	var count atomic.Int32
	_, err := bus.Once("tick", func(events.Event) (any, error) {
		count.Add(1)
		return nil, nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit("tick")
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), count.Load())
}

func TestFailingListenerDoesNotStopOthers(t *testing.T) {
	bus := newBus()
	var calls []string

	_, err := bus.Subscribe("save", func(events.Event) (any, error) {
		return nil, errors.New("nope")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("save", func(events.Event) (any, error) {
		panic("worse")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("save", recorder(&calls, "ok", "done"))
	require.NoError(t, err)

	results := bus.Emit("save")
	require.Equal(t, []any{"done"}, results)
	require.Equal(t, []string{"ok:save"}, calls)
}

func TestSubscribeNilHandler(t *testing.T) {
	bus := newBus()
	sub, err := bus.Subscribe("x", nil)
	require.Nil(t, sub)
	require.ErrorIs(t, err, apperrors.ErrInvalidListener)
}

func TestUnsubscribe(t *testing.T) {
	bus := newBus()
	var calls []string

	sub, err := bus.Subscribe("a", recorder(&calls, "one", nil))
	require.NoError(t, err)
	_, err = bus.Subscribe("a", recorder(&calls, "two", nil))
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()
	bus.Emit("a")

	require.Equal(t, []string{"two:a"}, calls)
	require.Equal(t, "a", sub.Name())
}

func TestOffByName(t *testing.T) {
	bus := newBus()
	var calls []string

	_, _ = bus.Subscribe("user.created", recorder(&calls, "exact", nil))
	_, _ = bus.Subscribe("user.*", recorder(&calls, "wild", nil))
	_, _ = bus.Subscribe("user*", recorder(&calls, "wild2", nil))

	bus.Off("user.created")
	bus.Emit("user.created")
	require.Equal(t, []string{"wild:user.created", "wild2:user.created"}, calls)

	calls = nil
	bus.Off("user.*")
	bus.Emit("user.created")
	require.Equal(t, []string{"wild2:user.created"}, calls)

	bus.OffAll()
	require.Equal(t, 0, bus.ListenerCount(""))
	require.False(t, bus.Has("user.created"))
}

func TestContextAndArgs(t *testing.T) {
	bus := newBus()
	owner := struct{ Name string }{"table"}

	var got events.Event
	_, err := bus.Subscribe("row:*", func(evt events.Event) (any, error) {
		got = evt
		return nil, nil
	}, events.WithContext(owner))
	require.NoError(t, err)

	bus.Emit("row:selected", 7, "x")
	require.Equal(t, "row:selected", got.Name)
	require.Equal(t, owner, got.Context)
	require.Equal(t, 7, got.Arg(0))
	require.Nil(t, got.Arg(5))
}

func TestListenerCountAndEventNames(t *testing.T) {
	bus := newBus()
	noop := func(events.Event) (any, error) { return nil, nil }

	_, _ = bus.Subscribe("b", noop)
	_, _ = bus.Subscribe("a", noop)
	_, _ = bus.Subscribe("a.*", noop)
	_, _ = bus.Subscribe("a.*", noop)

	require.Equal(t, 4, bus.ListenerCount(""))
	require.Equal(t, 2, bus.ListenerCount("a.b"))
	require.Equal(t, 1, bus.ListenerCount("a"))
	require.True(t, bus.Has("b"))
	require.Equal(t, []string{"a", "b", "a.*"}, bus.EventNames())
}

func TestHandlerMaySubscribeDuringEmit(t *testing.T) {
	bus := newBus()
	var calls []string
	_, err := bus.Subscribe("start", func(events.Event) (any, error) {
		_, err := bus.Subscribe("start", recorder(&calls, "late", nil))
		return nil, err
	})
	require.NoError(t, err)

	bus.Emit("start")
	require.Empty(t, calls)
	bus.Emit("start")
	require.Equal(t, []string{"late:start"}, calls)
}
