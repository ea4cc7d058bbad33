package evented

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/patchsync/internal/syncerr"
)

// Evented is a typed pub-sub hub: one Notifier per Kind, plus the three
// fan-out disciplines used across sources and connectors.
//
//   - Emit/Poll: synchronous broadcast; Poll collects non-nil results.
//   - Resolve: first responder wins.
//   - Settle: every listener runs in order; failures are logged and skipped.
//
// All of them iterate a snapshot taken when the call starts.
type Evented struct {
	mu        sync.Mutex
	notifiers map[Kind]*Notifier
	logger    *slog.Logger
	name      string
}

// Option configures an Evented.
type Option func(*Evented)

// WithLogger sets the logger used for swallowed listener errors.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evented) {
		e.logger = logger
	}
}

// WithName labels log lines with the owner's name.
func WithName(name string) Option {
	return func(e *Evented) {
		e.name = name
	}
}

// New creates an Evented with no listeners.
func New(opts ...Option) *Evented {
	e := &Evented{
		notifiers: make(map[Kind]*Notifier),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evented) notifier(kind Kind, create bool) *Notifier {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.notifiers[kind]
	if !ok && create {
		n = NewNotifier()
		e.notifiers[kind] = n
	}
	return n
}

// On registers fn under each of kinds. The returned id removes it from all
// of them.
func (e *Evented) On(fn Listener, kinds ...Kind) ListenerID {
	id := newListenerID()
	for _, kind := range kinds {
		e.notifier(kind, true).add(id, fn)
	}
	return id
}

// One registers fn to run at most once. It is removed from every kind
// before it is invoked.
func (e *Evented) One(fn Listener, kinds ...Kind) ListenerID {
	var fired atomic.Bool
	var id ListenerID
	wrapped := func(ctx context.Context, ev Event) (any, error) {
		if !fired.CompareAndSwap(false, true) {
			return nil, nil
		}
		e.Off(id, kinds...)
		return fn(ctx, ev)
	}
	id = newListenerID()
	for _, kind := range kinds {
		e.notifier(kind, true).add(id, wrapped)
	}
	return id
}

// Off removes the listener registered under id. With no kinds it is removed
// from every kind.
func (e *Evented) Off(id ListenerID, kinds ...Kind) {
	if len(kinds) == 0 {
		e.mu.Lock()
		all := make([]*Notifier, 0, len(e.notifiers))
		for _, n := range e.notifiers {
			all = append(all, n)
		}
		e.mu.Unlock()
		for _, n := range all {
			n.Remove(id)
		}
		return
	}
	for _, kind := range kinds {
		if n := e.notifier(kind, false); n != nil {
			n.Remove(id)
		}
	}
}

// Listeners returns the number of listeners registered for kind.
func (e *Evented) Listeners(kind Kind) int {
	if n := e.notifier(kind, false); n != nil {
		return n.Len()
	}
	return 0
}

func (e *Evented) snapshot(kind Kind) []entry {
	if n := e.notifier(kind, false); n != nil {
		return n.snapshot()
	}
	return nil
}

// Emit broadcasts synchronously.
func (e *Evented) Emit(ctx context.Context, kind Kind, args ...any) {
	if n := e.notifier(kind, false); n != nil {
		n.Emit(ctx, Event{Kind: kind, Args: args})
	}
}

// Poll broadcasts and collects the non-nil listener results.
func (e *Evented) Poll(ctx context.Context, kind Kind, args ...any) []any {
	if n := e.notifier(kind, false); n != nil {
		return n.Poll(ctx, Event{Kind: kind, Args: args})
	}
	return nil
}

// Resolve tries listeners in order until one returns a non-nil result,
// which becomes the outcome. A listener returning (nil, nil) passes. A
// failing listener also passes, but its error is kept: if no listener
// produced a result, the last error is returned, or NO_RESOLUTION when
// nothing failed.
func (e *Evented) Resolve(ctx context.Context, kind Kind, args ...any) (any, error) {
	ev := Event{Kind: kind, Args: args}

	var lastErr error
	for _, l := range e.snapshot(kind) {
		res, err := invoke(ctx, l.fn, ev)
		if err != nil {
			lastErr = err
			continue
		}
		if res != nil {
			return res, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, syncerr.NoResolution(kind.String())
}

// Settle calls every listener in order, waiting for each before starting
// the next. Errors are logged and do not stop the remaining listeners.
func (e *Evented) Settle(ctx context.Context, kind Kind, args ...any) {
	ev := Event{Kind: kind, Args: args}

	for _, l := range e.snapshot(kind) {
		if _, err := invoke(ctx, l.fn, ev); err != nil {
			e.logger.Warn("listener failed",
				"owner", e.name,
				"event", kind.String(),
				"error", err)
		}
	}
}
