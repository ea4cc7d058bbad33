package queue

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
// Ordering
// ============================================================================

func TestQueue_SlowFirstSettlesFirst(t *testing.T) {
	q := New()
	ctx := waitCtx(t)

	var a2WorkDone atomic.Int64
	var a1WorkDone atomic.Int64
	a1 := q.Push(ctx, func(context.Context) (any, error) {
		time.Sleep(30 * time.Millisecond)
		a1WorkDone.Store(time.Now().UnixNano())
		return "a1", nil
	})
	a2 := q.Push(ctx, func(context.Context) (any, error) {
		time.Sleep(5 * time.Millisecond)
		a2WorkDone.Store(time.Now().UnixNano())
		return "a2", nil
	})

	res, err := a2.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", res)

	select {
	case <-a1.Done():
	default:
		t.Fatal("a2 settled before a1")
	}
	res, err = a1.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", res)
	assert.Less(t, a1WorkDone.Load(), a2WorkDone.Load(), "a2 must not start before a1 finishes")
}

func TestQueue_FIFOWithRandomDelays(t *testing.T) {
	q := New()
	ctx := waitCtx(t)

	const n = 25
	var mu sync.Mutex
	var started, completed []int
	var running atomic.Int32

	handles := make([]*Handle, n)
	for i := 0; i < n; i++ {
		delay := time.Duration(rand.IntN(4)) * time.Millisecond
		handles[i] = q.Push(ctx, func(context.Context) (any, error) {
			if running.Add(1) != 1 {
				t.Error("more than one action running")
			}
			defer running.Add(-1)

			mu.Lock()
			started = append(started, i)
			mu.Unlock()

			time.Sleep(delay)

			mu.Lock()
			completed = append(completed, i)
			mu.Unlock()
			return i, nil
		})
	}

	for i, h := range handles {
		res, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, res)
	}

	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, started)
	assert.Equal(t, want, completed)
}

// ============================================================================
// Failure isolation
// ============================================================================

func TestQueue_FailureDoesNotAbortQueue(t *testing.T) {
	q := New()
	ctx := waitCtx(t)
	boom := errors.New("boom")

	h1 := q.Push(ctx, func(context.Context) (any, error) { return nil, boom })
	h2 := q.Push(ctx, func(context.Context) (any, error) { panic("kaboom") })
	h3 := q.Push(ctx, func(context.Context) (any, error) { return "ok", nil })

	_, err := h1.Wait(ctx)
	assert.ErrorIs(t, err, boom)

	_, err = h2.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	res, err := h3.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestQueue_ActionIgnoresCallerCancellation(t *testing.T) {
	q := New()
	callerCtx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	h := q.Push(callerCtx, func(ctx context.Context) (any, error) {
		<-release
		return nil, ctx.Err()
	})
	cancel()
	close(release)

	_, err := h.Wait(waitCtx(t))
	assert.NoError(t, err, "queued work runs to completion after the caller gives up")
}

// ============================================================================
// Processing state
// ============================================================================

func TestQueue_ManualProcess(t *testing.T) {
	q := New(WithAutoProcess(false))
	ctx := waitCtx(t)

	ran := false
	h := q.Push(ctx, func(context.Context) (any, error) {
		ran = true
		return nil, nil
	})
	assert.Equal(t, 1, q.Len())
	assert.False(t, q.Processing())

	q.Process()
	q.Process()

	_, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	require.NoError(t, q.WaitDrained(ctx))
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Processing())
}

func TestQueue_ReentrantPushExtendsRun(t *testing.T) {
	q := New()
	ctx := waitCtx(t)

	var drains atomic.Int32
	q.OnDrained(func() { drains.Add(1) })

	var order []string
	var inner *Handle
	outer := q.Push(ctx, func(ctx context.Context) (any, error) {
		order = append(order, "outer")
		inner = q.Push(ctx, func(context.Context) (any, error) {
			order = append(order, "inner")
			return nil, nil
		})
		return nil, nil
	})

	_, err := outer.Wait(ctx)
	require.NoError(t, err)
	_, err = inner.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, q.WaitDrained(ctx))

	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Eventually(t, func() bool { return drains.Load() == 1 }, time.Second, time.Millisecond,
		"one run drains exactly once")
}

func TestQueue_DrainedOncePerEpisode(t *testing.T) {
	q := New()
	ctx := waitCtx(t)

	drained := make(chan struct{}, 4)
	unsubscribe := q.OnDrained(func() { drained <- struct{}{} })

	for range 2 {
		h := q.Push(ctx, func(context.Context) (any, error) { return nil, nil })
		_, err := h.Wait(ctx)
		require.NoError(t, err)
		select {
		case <-drained:
		case <-ctx.Done():
			t.Fatal("drained not emitted")
		}
	}

	unsubscribe()
	h := q.Push(ctx, func(context.Context) (any, error) { return nil, nil })
	_, _ = h.Wait(ctx)
	require.NoError(t, q.WaitDrained(ctx))
	assert.Empty(t, drained)
}

func TestQueue_InTurn(t *testing.T) {
	q := New()
	other := New()
	ctx := waitCtx(t)

	assert.False(t, q.InTurn(ctx))

	h := q.Push(ctx, func(ctx context.Context) (any, error) {
		return [2]bool{q.InTurn(ctx), other.InTurn(ctx)}, nil
	})
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, [2]bool{true, false}, res)
}

func TestQueue_WaitDrainedRespectsContext(t *testing.T) {
	q := New(WithAutoProcess(false))
	q.Push(context.Background(), func(context.Context) (any, error) { return nil, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.WaitDrained(ctx), context.DeadlineExceeded)
}

func TestDetach(t *testing.T) {
	q := New()
	ctx := waitCtx(t)

	type traceKey struct{}
	h := q.Push(context.WithValue(ctx, traceKey{}, "trace-1"), func(ctx context.Context) (any, error) {
		d := Detach(ctx)
		return [3]any{q.InTurn(ctx), q.InTurn(d), d.Value(traceKey{})}, nil
	})
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, [3]any{true, false, "trace-1"}, res)
}
