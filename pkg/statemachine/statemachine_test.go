package statemachine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/supportcore/pkg/statemachine"
)

const (
	idle    = statemachine.StringState("idle")
	running = statemachine.StringState("running")
	paused  = statemachine.StringState("paused")
	done    = statemachine.StringState("done")

	start  = statemachine.StringEvent("start")
	pause  = statemachine.StringEvent("pause")
	resume = statemachine.StringEvent("resume")
	finish = statemachine.StringEvent("finish")
	reset  = statemachine.StringEvent("reset")
)

func newTable(t *testing.T, opts ...statemachine.Option) *statemachine.Table {
	t.Helper()
	base := []statemachine.Option{
		statemachine.WithTransition(idle, running, start),
		statemachine.WithTransition(running, paused, pause),
		statemachine.WithTransition(paused, running, resume),
		statemachine.WithTransition(running, done, finish),
		statemachine.WithGlobalTransition(idle, reset),
	}
	table, err := statemachine.New(idle, append(base, opts...)...)
	require.NoError(t, err)
	return table
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil initial state", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(nil)
		assert.ErrorIs(t, err, statemachine.ErrNilInitialState)
	})

	t.Run("nil target", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(idle, statemachine.WithTransition(idle, nil, start))
		assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	})

	t.Run("nil event", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(idle, statemachine.WithTransition(idle, running, nil))
		assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	})

	t.Run("nil source", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(idle, statemachine.WithTransition(nil, running, start))
		assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	})

	t.Run("duplicate unguarded transition", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(idle,
			statemachine.WithTransition(idle, running, start),
			statemachine.WithTransition(idle, done, start),
		)
		assert.ErrorIs(t, err, statemachine.ErrDuplicateTransition)
	})

	t.Run("guarded before unguarded is allowed", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(idle,
			statemachine.WithTransition(idle, done, start, statemachine.WithGuard(never)),
			statemachine.WithTransition(idle, running, start),
		)
		assert.NoError(t, err)
	})

	t.Run("unreachable declared state", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(idle,
			statemachine.WithStates(paused),
			statemachine.WithTransition(idle, running, start),
		)
		assert.ErrorIs(t, err, statemachine.ErrUnreachableState)
		assert.Contains(t, err.Error(), "paused")
	})

	t.Run("unreachable source state", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(idle,
			statemachine.WithTransition(idle, running, start),
			statemachine.WithTransition(paused, done, finish),
		)
		assert.ErrorIs(t, err, statemachine.ErrUnreachableState)
	})

	t.Run("global transition makes target reachable", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(idle,
			statemachine.WithGlobalTransition(done, finish),
		)
		assert.NoError(t, err)
	})

	t.Run("batch transitions report index", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.New(idle, statemachine.WithTransitions([]statemachine.Transition{
			{From: idle, To: running, Event: start},
			{From: idle, To: nil, Event: pause},
		}))
		require.ErrorIs(t, err, statemachine.ErrInvalidTransition)
		assert.Contains(t, err.Error(), "transition[1]")
	})

	t.Run("must new panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { statemachine.MustNew(nil) })
	})
}

func TestTable_Next(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	table := newTable(t)

	t.Run("follows declared edges", func(t *testing.T) {
		t.Parallel()
		next, err := table.Next(ctx, idle, start, nil)
		require.NoError(t, err)
		assert.Equal(t, running, next)

		next, err = table.Next(ctx, running, pause, nil)
		require.NoError(t, err)
		assert.Equal(t, paused, next)
	})

	t.Run("global transition applies everywhere", func(t *testing.T) {
		t.Parallel()
		for _, from := range []statemachine.State{idle, running, paused, done} {
			next, err := table.Next(ctx, from, reset, nil)
			require.NoError(t, err, from.Name())
			assert.Equal(t, idle, next)
		}
	})

	t.Run("undeclared pair", func(t *testing.T) {
		t.Parallel()
		_, err := table.Next(ctx, done, start, nil)
		require.Error(t, err)
		assert.True(t, statemachine.IsNoTransition(err))
		assert.False(t, statemachine.IsRejected(err))
	})

	t.Run("unknown state", func(t *testing.T) {
		t.Parallel()
		_, err := table.Next(ctx, statemachine.StringState("ghost"), start, nil)
		assert.ErrorIs(t, err, statemachine.ErrUnknownState)

		_, err = table.Next(ctx, nil, start, nil)
		assert.ErrorIs(t, err, statemachine.ErrUnknownState)
	})

	t.Run("nil event", func(t *testing.T) {
		t.Parallel()
		_, err := table.Next(ctx, idle, nil, nil)
		assert.ErrorIs(t, err, statemachine.ErrInvalidEvent)
	})

	t.Run("does not mutate anything", func(t *testing.T) {
		t.Parallel()
		_, err := table.Next(ctx, idle, start, nil)
		require.NoError(t, err)
		assert.Equal(t, idle, table.Initial())
	})
}

func TestTable_Guards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	allowed := func(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
		ok, _ := data.(bool)
		return ok
	}

	table, err := statemachine.New(idle,
		statemachine.WithTransition(idle, done, finish, statemachine.WithGuard(allowed)),
		statemachine.WithTransition(idle, running, start, statemachine.WithGuards(allowed, always)),
		statemachine.WithTransition(idle, paused, start),
	)
	require.NoError(t, err)

	t.Run("guard passes", func(t *testing.T) {
		t.Parallel()
		next, err := table.Next(ctx, idle, finish, true)
		require.NoError(t, err)
		assert.Equal(t, done, next)
	})

	t.Run("guard rejects", func(t *testing.T) {
		t.Parallel()
		_, err := table.Next(ctx, idle, finish, false)
		require.Error(t, err)
		assert.True(t, statemachine.IsRejected(err))
		assert.False(t, table.Can(ctx, idle, finish, false))
	})

	t.Run("falls through to next candidate", func(t *testing.T) {
		t.Parallel()
		next, err := table.Next(ctx, idle, start, false)
		require.NoError(t, err)
		assert.Equal(t, paused, next)

		next, err = table.Next(ctx, idle, start, true)
		require.NoError(t, err)
		assert.Equal(t, running, next)
	})
}

func TestTable_SpecificBeforeGlobal(t *testing.T) {
	t.Parallel()

	table := newTable(t, statemachine.WithTransition(done, paused, reset))

	next, err := table.Next(context.Background(), done, reset, nil)
	require.NoError(t, err)
	assert.Equal(t, paused, next)

	next, err = table.Next(context.Background(), running, reset, nil)
	require.NoError(t, err)
	assert.Equal(t, idle, next)
}

func TestTable_Introspection(t *testing.T) {
	t.Parallel()

	table := newTable(t)

	assert.Equal(t, idle, table.Initial())
	assert.Equal(t, []statemachine.State{idle, running, paused, done}, table.States())

	s, ok := table.Lookup("paused")
	assert.True(t, ok)
	assert.Equal(t, paused, s)

	_, ok = table.Lookup("ghost")
	assert.False(t, ok)

	assert.Equal(t, []statemachine.Event{finish, pause, reset}, table.Events(running))
	assert.Equal(t, []statemachine.Event{reset}, table.Events(done))

	assert.Len(t, table.Transitions(), 5)
}

func TestTable_ConcurrentUse(t *testing.T) {
	t.Parallel()

	table := newTable(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := table.Next(ctx, running, finish, nil)
			assert.NoError(t, err)
			assert.Equal(t, done, next)
		}()
	}
	wg.Wait()
}

func always(context.Context, statemachine.State, statemachine.Event, any) bool { return true }

func never(context.Context, statemachine.State, statemachine.Event, any) bool { return false }
