package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchsync/internal/evented"
	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/syncerr"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func addOp(path string, v value.Value) patch.Operation {
	return patch.Add{Path: patch.MustParsePointer(path), Value: v}
}

func data(t *testing.T, s *Source) value.Value {
	t.Helper()
	v, ok := s.Retrieve(patch.Path{})
	require.True(t, ok)
	return v
}

// recorder collects events delivered to a source.
type recorder struct {
	mu     sync.Mutex
	events []evented.Event
}

func (r *recorder) listen(_ context.Context, ev evented.Event) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil, nil
}

func (r *recorder) kinds() []evented.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]evented.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// ============================================================================
// Transform
// ============================================================================

func TestSource_TransformAppliesAndLogs(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{})

	var got *transform.Transform
	var result *transform.Result
	s.On(func(_ context.Context, ev evented.Event) (any, error) {
		got, _ = evented.Arg[*transform.Transform](ev, 0)
		result, _ = evented.Arg[*transform.Result](ev, 1)
		return nil, nil
	}, evented.Transform)

	tr := transform.New([]patch.Operation{addOp("/a", value.Int(1))}, transform.WithID("t1"))
	r, err := s.Transform(ctx, tr)
	require.NoError(t, err)

	assert.Equal(t, value.Object{"a": value.Int(1)}, data(t, s))
	assert.Equal(t, []string{"t1"}, s.Log().Entries())
	assert.Same(t, tr, got, "the Transform event is settled before Transform returns")
	assert.Equal(t, r, result)
	assert.Equal(t, []patch.Operation{patch.Remove{Path: patch.P("a")}}, r.Inverse)
}

func TestSource_TransformIsIdempotent(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{"list": value.Array{}})
	rec := &recorder{}
	s.On(rec.listen, evented.Transform)

	tr := transform.New([]patch.Operation{addOp("/list/-", value.String("x"))}, transform.WithID("t1"))

	_, err := s.Transform(ctx, tr)
	require.NoError(t, err)
	before := data(t, s)

	r, err := s.Transform(ctx, tr)
	require.NoError(t, err)
	assert.True(t, r.IsEmpty())

	assert.Equal(t, before, data(t, s))
	assert.Equal(t, []string{"t1"}, s.Log().Entries())
	assert.Len(t, rec.kinds(), 1)
}

func TestSource_FailedTransformIsNotLogged(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{"a": value.Int(1)})
	rec := &recorder{}
	s.On(rec.listen, evented.Transform)

	_, err := s.Transform(ctx, []patch.Operation{
		addOp("/b", value.Int(2)),
		patch.Remove{Path: patch.P("missing")},
	})
	require.Error(t, err)
	assert.True(t, syncerr.IsPathNotFound(err))

	assert.Equal(t, 0, s.Log().Len())
	assert.Empty(t, rec.kinds())
	assert.Equal(t, value.Object{"a": value.Int(1)}, data(t, s), "a failed transform leaves no partial change")
}

func TestSource_TransformsApplyInSubmissionOrder(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{"list": value.Array{}},
		WithIDGenerator(transform.NewFixedGenerator("t0", "t1", "t2", "t3", "t4")))

	for i := range 5 {
		_, err := s.Transform(ctx, addOp("/list/-", value.Int(int64(i))))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"t0", "t1", "t2", "t3", "t4"}, s.Log().Entries())
	list, _ := s.Retrieve(patch.P("list"))
	assert.Equal(t, value.Array{value.Int(0), value.Int(1), value.Int(2), value.Int(3), value.Int(4)}, list)
}

func TestSource_ConcurrentTransformsAreSerialized(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{"list": value.Array{}})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transform(ctx, addOp("/list/-", value.Int(int64(i))))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, _ := s.Retrieve(patch.P("list"))
	assert.Len(t, list, 20)
	assert.Equal(t, 20, s.Log().Len())
}

func TestSource_BuilderCallbacks(t *testing.T) {
	ctx := testCtx(t)
	build := transform.BuildFunc(func(b transform.Builder) []patch.Operation {
		return []patch.Operation{b.Add(patch.P("a"), value.Bool(true))}
	})

	bare := NewMemory("bare", value.Object{})
	_, err := bare.Transform(ctx, build)
	require.Error(t, err)
	assert.True(t, syncerr.IsBuilderNotRegistered(err))

	withBuilder := NewMemory("built", value.Object{}, WithBuilder(transform.OperationBuilder{}))
	_, err = withBuilder.Transform(ctx, build)
	require.NoError(t, err)
	assert.Equal(t, value.Object{"a": value.Bool(true)}, data(t, withBuilder))
}

func TestSource_MaxOperations(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{}, WithMaxOperations(1))

	_, err := s.Transform(ctx, []patch.Operation{addOp("/a", value.Int(1)), addOp("/b", value.Int(2))})
	require.Error(t, err)
	assert.True(t, syncerr.IsNotAllowed(err))
	assert.Equal(t, syncerr.ErrCodeTransformNotAllowed, syncerr.CodeOf(err))
	assert.Equal(t, 0, s.Log().Len())
}

func TestSource_ReentrantTransformFailsFast(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{})

	var nestedErr error
	s.One(func(ctx context.Context, _ evented.Event) (any, error) {
		_, nestedErr = s.Transform(ctx, addOp("/nested", value.Int(1)))
		return nil, nil
	}, evented.Transform)

	_, err := s.Transform(ctx, addOp("/a", value.Int(1)))
	require.NoError(t, err)
	require.Error(t, nestedErr)
	assert.True(t, syncerr.IsReentrant(nestedErr))
	assert.False(t, s.Queue().InTurn(ctx))
}

func TestSource_ReconcileReadsAndAppliesInOneTurn(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.MustParse(`{"n":1}`))
	rec := &recorder{}
	s.On(rec.listen, evented.Transform)

	in := transform.New([]patch.Operation{addOp("/n", value.Int(5))}, transform.WithID("t1"))
	applied, r, err := s.Reconcile(ctx, in, func(current Retriever, t *transform.Transform) (*transform.Transform, error) {
		if current == nil {
			return nil, errors.New("backend cannot read")
		}
		n, ok := current.Retrieve(patch.P("n"))
		if !ok {
			return nil, errors.New("n does not resolve")
		}
		return t.Spawn([]patch.Operation{addOp("/n", value.Int(int64(n.(value.Int)) + 5))}, transform.WithID("t2")), nil
	})
	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.Equal(t, "t2", applied.ID)
	assert.Len(t, r.Inverse, 1)
	assert.True(t, value.Equal(value.MustParse(`{"n":6}`), data(t, s)))
	assert.Equal(t, []string{"t2"}, s.Log().Entries())
	assert.Equal(t, []evented.Kind{evented.Transform}, rec.kinds())
}

func TestSource_ReconcileSkips(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{})
	parent := transform.New([]patch.Operation{addOp("/x", value.Int(1))}, transform.WithID("t1"))
	_, err := s.Transform(ctx, parent)
	require.NoError(t, err)

	t.Run("logged lineage", func(t *testing.T) {
		called := false
		child := parent.Spawn([]patch.Operation{addOp("/y", value.Int(2))}, transform.WithID("t2"))
		applied, _, err := s.Reconcile(ctx, child, func(Retriever, *transform.Transform) (*transform.Transform, error) {
			called = true
			return child, nil
		})
		require.NoError(t, err)
		assert.Nil(t, applied)
		assert.False(t, called)
	})

	t.Run("nothing to apply", func(t *testing.T) {
		other := transform.New([]patch.Operation{addOp("/x", value.Int(1))}, transform.WithID("t3"))
		applied, _, err := s.Reconcile(ctx, other, func(Retriever, *transform.Transform) (*transform.Transform, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, applied)
	})

	t.Run("rewrite error", func(t *testing.T) {
		boom := errors.New("boom")
		other := transform.New([]patch.Operation{addOp("/z", value.Int(1))}, transform.WithID("t4"))
		_, _, err := s.Reconcile(ctx, other, func(Retriever, *transform.Transform) (*transform.Transform, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	assert.Equal(t, []string{"t1"}, s.Log().Entries())
}

func TestSource_Reset(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{"seeded": value.Bool(true)})
	rec := &recorder{}
	s.On(rec.listen, evented.Reset)

	_, err := s.Transform(ctx, addOp("/a", value.Int(1)))
	require.NoError(t, err)
	require.Equal(t, 1, s.Log().Len())

	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, 0, s.Log().Len())
	assert.Equal(t, value.Object{"seeded": value.Bool(true)}, data(t, s))
	assert.Equal(t, []evented.Kind{evented.Reset}, rec.kinds())
}

// ============================================================================
// Journal
// ============================================================================

type memJournal struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (j *memJournal) Append(_ context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, e)
	return nil
}

func TestSource_JournalReceivesSequencedEntries(t *testing.T) {
	ctx := testCtx(t)
	j := &memJournal{}
	s := NewMemory("memory", value.Object{}, WithJournal(j), WithClock(NewClockAt(10)),
		WithIDGenerator(transform.NewFixedGenerator("t1", "t2")))

	_, err := s.Transform(ctx, addOp("/a", value.Int(1)))
	require.NoError(t, err)
	_, err = s.Transform(ctx, addOp("/b", value.Int(2)))
	require.NoError(t, err)

	require.Len(t, j.entries, 2)
	assert.Equal(t, int64(11), j.entries[0].Seq)
	assert.Equal(t, int64(12), j.entries[1].Seq)
	assert.Equal(t, "t2", j.entries[1].Transform.ID)
	assert.Equal(t, "memory", j.entries[1].Source)
	assert.Equal(t, []patch.Operation{patch.Remove{Path: patch.P("b")}}, j.entries[1].Result.Inverse)
}

func TestSource_JournalFailureUndoesTransform(t *testing.T) {
	ctx := testCtx(t)
	j := &memJournal{err: errors.New("disk full")}
	s := NewMemory("memory", value.Object{"a": value.Int(1)}, WithJournal(j))

	_, err := s.Transform(ctx, patch.Replace{Path: patch.P("a"), Value: value.Int(2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, value.Object{"a": value.Int(1)}, data(t, s))
	assert.Equal(t, 0, s.Log().Len())
}

// ============================================================================
// Request lifecycle
// ============================================================================

// scriptedBackend answers queries from a function and counts calls.
type scriptedBackend struct {
	*MemoryBackend
	mu      sync.Mutex
	queries int
	queryFn func(Query) (value.Value, error)
	pushFn  func(*transform.Transform) ([]*transform.Transform, error)
}

func (b *scriptedBackend) Query(_ context.Context, q Query) (value.Value, error) {
	b.mu.Lock()
	b.queries++
	b.mu.Unlock()
	return b.queryFn(q)
}

func (b *scriptedBackend) Push(_ context.Context, t *transform.Transform) ([]*transform.Transform, error) {
	return b.pushFn(t)
}

func TestSource_QueryFromBackend(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{"planet": value.Object{"name": value.String("Earth")}})
	rec := &recorder{}
	s.On(rec.listen, evented.BeforeQuery, evented.Query, evented.QueryFail)

	v, err := s.Query(ctx, NewQuery(patch.P("planet", "name")))
	require.NoError(t, err)
	assert.Equal(t, value.String("Earth"), v)
	assert.Equal(t, []evented.Kind{evented.BeforeQuery, evented.Query}, rec.kinds())

	both, err := s.Query(ctx, NewQuery(patch.P("planet", "name"), patch.P("planet")))
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestSource_QueryAssistShortCircuits(t *testing.T) {
	ctx := testCtx(t)
	backend := &scriptedBackend{
		MemoryBackend: NewMemoryBackend(value.Object{}),
		queryFn:       func(Query) (value.Value, error) { return value.String("own"), nil },
	}
	s := New("primary", backend)
	s.On(func(context.Context, evented.Event) (any, error) { return nil, nil }, evented.AssistQuery)
	s.On(func(context.Context, evented.Event) (any, error) { return value.String("assisted"), nil }, evented.AssistQuery)

	v, err := s.Query(ctx, NewQuery(patch.P("x")))
	require.NoError(t, err)
	assert.Equal(t, value.String("assisted"), v)
	assert.Equal(t, 0, backend.queries)
}

func TestSource_QueryRescue(t *testing.T) {
	ctx := testCtx(t)
	offline := syncerr.Network(errors.New("connection refused"))
	backend := &scriptedBackend{
		MemoryBackend: NewMemoryBackend(value.Object{}),
		queryFn:       func(Query) (value.Value, error) { return nil, offline },
	}
	s := New("remote", backend)

	rec := &recorder{}
	s.On(rec.listen, evented.Query, evented.QueryFail)

	t.Run("rescue answers", func(t *testing.T) {
		id := s.On(func(context.Context, evented.Event) (any, error) { return value.String("cached"), nil }, evented.RescueQuery)
		defer s.Off(id)

		v, err := s.Query(ctx, NewQuery(patch.P("x")))
		require.NoError(t, err)
		assert.Equal(t, value.String("cached"), v)
	})

	t.Run("rescue fails too", func(t *testing.T) {
		id := s.On(func(context.Context, evented.Event) (any, error) { return nil, errors.New("cache miss") }, evented.RescueQuery)
		defer s.Off(id)

		_, err := s.Query(ctx, NewQuery(patch.P("x")))
		require.Error(t, err)
		assert.ErrorIs(t, err, offline, "the original error is returned")
		assert.Equal(t, syncerr.ErrCodeNetwork, syncerr.CodeOf(err))
	})

	assert.Equal(t, []evented.Kind{evented.Query, evented.QueryFail}, rec.kinds())
	assert.Equal(t, 2, backend.queries)
}

func TestSource_DidAndDidNotCarryOutcome(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{"a": value.Int(1)})

	var didArgs, failArgs []any
	s.On(func(_ context.Context, ev evented.Event) (any, error) {
		didArgs = ev.Args
		return nil, nil
	}, evented.Query)
	s.On(func(_ context.Context, ev evented.Event) (any, error) {
		failArgs = ev.Args
		return nil, nil
	}, evented.QueryFail)

	q := NewQuery(patch.P("a"))
	_, err := s.Query(ctx, q)
	require.NoError(t, err)
	require.Len(t, didArgs, 2)
	assert.Equal(t, q, didArgs[0])
	assert.Equal(t, value.Int(1), didArgs[1])

	_, err = s.Query(ctx, NewQuery(patch.P("missing")))
	require.Error(t, err)
	require.Len(t, failArgs, 2)
	assert.True(t, syncerr.IsPathNotFound(failArgs[1].(error)))
}

func TestSource_MaxQueryPaths(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{}, WithMaxQueryPaths(1))

	_, err := s.Query(ctx, NewQuery(patch.P("a"), patch.P("b")))
	require.Error(t, err)
	assert.Equal(t, syncerr.ErrCodeQueryNotAllowed, syncerr.CodeOf(err))

	_, err = s.Pull(ctx, NewQuery(patch.P("a"), patch.P("b")))
	assert.Equal(t, syncerr.ErrCodeQueryNotAllowed, syncerr.CodeOf(err))
}

func TestSource_Update(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{})
	rec := &recorder{}
	s.On(rec.listen, evented.BeforeUpdate, evented.Transform, evented.Update)

	r, err := s.Update(ctx, addOp("/a", value.Int(1)))
	require.NoError(t, err)
	assert.Len(t, r.Inverse, 1)
	assert.Equal(t, []evented.Kind{evented.BeforeUpdate, evented.Transform, evented.Update}, rec.kinds())
}

func TestSource_PushAppliesLocallyWithoutPusher(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{})

	tr := transform.New([]patch.Operation{addOp("/a", value.Int(1))}, transform.WithID("t1"))
	ts, err := s.Push(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, []*transform.Transform{tr}, ts)
	assert.True(t, s.Log().Contains("t1"))

	again, err := s.Push(ctx, tr)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSource_PushFoldsBackendChanges(t *testing.T) {
	ctx := testCtx(t)
	sideEffect := transform.New([]patch.Operation{addOp("/server_id", value.Int(42))}, transform.WithID("server-1"))
	backend := &scriptedBackend{
		MemoryBackend: NewMemoryBackend(value.Object{}),
		pushFn: func(t *transform.Transform) ([]*transform.Transform, error) {
			return []*transform.Transform{t, sideEffect}, nil
		},
	}
	s := New("remote", backend)
	rec := &recorder{}
	s.On(rec.listen, evented.Transform, evented.Push)

	ts, err := s.Push(ctx, transform.New(nil, transform.WithID("t1")))
	require.NoError(t, err)
	assert.Len(t, ts, 2)
	assert.Equal(t, []string{"t1", "server-1"}, s.Log().Entries())
	assert.Equal(t, []evented.Kind{evented.Transform, evented.Transform, evented.Push}, rec.kinds())
}

func TestSource_Pull(t *testing.T) {
	ctx := testCtx(t)
	s := NewMemory("memory", value.Object{"a": value.Int(1)},
		WithIDGenerator(transform.NewFixedGenerator("pulled")))
	rec := &recorder{}
	s.On(rec.listen, evented.Transform)

	ts, err := s.Pull(ctx, NewQuery(patch.P("a")))
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "pulled", ts[0].ID)
	assert.Equal(t, []patch.Operation{addOp("/a", value.Int(1))}, ts[0].Operations)
	assert.True(t, s.Log().Contains("pulled"))
	assert.Len(t, rec.kinds(), 1)
}

func TestSource_PullNotSupported(t *testing.T) {
	ctx := testCtx(t)
	s := New("plain", backendFunc(func(context.Context, *transform.Transform) (*transform.Result, error) {
		return &transform.Result{}, nil
	}))

	_, err := s.Pull(ctx, NewQuery(patch.P("a")))
	assert.Equal(t, syncerr.ErrCodeNotSupported, syncerr.CodeOf(err))

	_, ok := s.Retrieve(patch.P("a"))
	assert.False(t, ok)
	assert.Nil(t, s.Retriever())
}

type backendFunc func(context.Context, *transform.Transform) (*transform.Result, error)

func (f backendFunc) Apply(ctx context.Context, t *transform.Transform) (*transform.Result, error) {
	return f(ctx, t)
}
