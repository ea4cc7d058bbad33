package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/patchsync/internal/evented"
)

// Action is one unit of queued work. The queue waits for it to return
// before starting the next action.
type Action func(ctx context.Context) (any, error)

// ActionQueue runs actions one at a time in submission order.
//
// State machine: Idle -> Processing -> Idle. Process starts a run loop if
// none is active; the loop pops the front action, runs it to completion,
// settles its Handle and moves on regardless of the outcome. When the
// queue empties the loop stops and drained listeners are notified once.
//
// Push is safe from any goroutine, including from inside a running action;
// such a push extends the current run.
type ActionQueue struct {
	mu         sync.Mutex
	pending    []*entry
	processing bool
	idle       chan struct{} // closed while empty and not processing

	autoProcess bool
	name        string
	logger      *slog.Logger
	drained     *evented.Notifier
}

type entry struct {
	ctx    context.Context
	action Action
	handle *Handle
}

// Option configures an ActionQueue.
type Option func(*ActionQueue)

// WithAutoProcess controls whether Push starts processing. Defaults to true.
func WithAutoProcess(auto bool) Option {
	return func(q *ActionQueue) {
		q.autoProcess = auto
	}
}

// WithName labels log lines.
func WithName(name string) Option {
	return func(q *ActionQueue) {
		q.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *ActionQueue) {
		q.logger = logger
	}
}

// New creates an idle queue.
func New(opts ...Option) *ActionQueue {
	idle := make(chan struct{})
	close(idle)
	q := &ActionQueue{
		idle:        idle,
		autoProcess: true,
		logger:      slog.Default(),
		drained:     evented.NewNotifier(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

type turnKey struct {
	q *ActionQueue
}

// InTurn reports whether ctx belongs to an action running on q (or on work
// started from one).
//
// Actions that call back into their own queue and wait on the handle would
// deadlock: the run loop is busy running the caller. Callers use InTurn to
// run such work inline or to refuse it.
func (q *ActionQueue) InTurn(ctx context.Context) bool {
	return ctx.Value(turnKey{q}) != nil
}

// Push enqueues action and returns a handle that settles when this action
// finishes. The action runs with a context that keeps ctx's values but not
// its cancellation: once queued, work runs to completion so later entries
// keep their order.
//
// Thread-safe: may be called from any goroutine, including from inside a
// running action (the push extends the current run).
func (q *ActionQueue) Push(ctx context.Context, action Action) *Handle {
	h := newHandle()
	q.mu.Lock()
	q.pending = append(q.pending, &entry{ctx: ctx, action: action, handle: h})
	if !q.processing && len(q.pending) == 1 {
		// First entry after idle: WaitDrained callers must block again.
		q.idle = make(chan struct{})
	}
	auto := q.autoProcess
	q.mu.Unlock()

	if auto {
		q.Process()
	}
	return h
}

// Process starts the run loop. It is a no-op while already processing or
// when nothing is pending.
//
// The loop runs on its own goroutine so Process never blocks the caller;
// with auto-processing off this is the only way queued actions start.
func (q *ActionQueue) Process() {
	q.mu.Lock()
	if q.processing || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()

	go q.run()
}

func (q *ActionQueue) run() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.processing = false
			close(q.idle)
			q.mu.Unlock()

			q.logger.Debug("queue drained", "queue", q.name)
			q.drained.Emit(context.Background(), evented.Event{})
			return
		}
		e := q.pending[0]
		q.pending[0] = nil // release the entry for GC
		q.pending = q.pending[1:]
		q.mu.Unlock()

		res, err := q.invoke(e)
		if err != nil {
			q.logger.Debug("queued action failed", "queue", q.name, "error", err)
		}
		e.handle.settle(res, err)
	}
}

func (q *ActionQueue) invoke(e *entry) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queued action panicked: %v", r)
		}
	}()
	ctx := context.WithValue(context.WithoutCancel(e.ctx), turnKey{q}, true)
	return e.action(ctx)
}

// Processing reports whether the run loop is active.
func (q *ActionQueue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// Len returns the number of actions waiting to start.
func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// OnDrained registers fn to run each time a run empties the queue. The
// returned func unregisters it.
func (q *ActionQueue) OnDrained(fn func()) func() {
	id := q.drained.Add(func(context.Context, evented.Event) (any, error) {
		fn()
		return nil, nil
	})
	return func() { q.drained.Remove(id) }
}

// WaitDrained blocks until the queue is empty and not processing, or ctx
// is done. With auto-processing off, pending actions keep the queue busy
// until someone calls Process.
func (q *ActionQueue) WaitDrained(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detach returns a context with ctx's values but without any queue turn
// markers, for work that will run after the current turns have ended.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}

type detached struct {
	context.Context
}

func (d detached) Value(key any) any {
	if _, ok := key.(turnKey); ok {
		return nil
	}
	return d.Context.Value(key)
}
