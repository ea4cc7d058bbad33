package evented

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Event is delivered to listeners.
type Event struct {
	Kind Kind
	Args []any
}

// Arg returns the i-th argument as T.
func Arg[T any](ev Event, i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(ev.Args) {
		return zero, false
	}
	v, ok := ev.Args[i].(T)
	return v, ok
}

// Listener handles an event. A nil result with a nil error means the
// listener had nothing to contribute.
type Listener func(ctx context.Context, ev Event) (any, error)

// ListenerID identifies a registration so it can be removed.
type ListenerID uint64

var nextListenerID atomic.Uint64

func newListenerID() ListenerID {
	return ListenerID(nextListenerID.Add(1))
}

type entry struct {
	id ListenerID
	fn Listener
}

// Notifier is an ordered listener list. Mutations replace the underlying
// slice, so a fan-out in progress keeps iterating the snapshot it started
// with: a listener removed mid-emit is still called by that emit and
// skipped by the next one.
type Notifier struct {
	mu      sync.Mutex
	entries []entry
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Add appends fn and returns its id.
func (n *Notifier) Add(fn Listener) ListenerID {
	id := newListenerID()
	n.add(id, fn)
	return id
}

func (n *Notifier) add(id ListenerID, fn Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()

	next := make([]entry, len(n.entries), len(n.entries)+1)
	copy(next, n.entries)
	n.entries = append(next, entry{id: id, fn: fn})
}

// Remove drops the listener with the given id. It reports whether a
// listener was removed.
func (n *Notifier) Remove(id ListenerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, e := range n.entries {
		if e.id == id {
			next := make([]entry, 0, len(n.entries)-1)
			next = append(next, n.entries[:i]...)
			n.entries = append(next, n.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

func (n *Notifier) snapshot() []entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.entries
}

// Emit calls every listener synchronously, in registration order.
// Results and errors are discarded.
func (n *Notifier) Emit(ctx context.Context, ev Event) {
	for _, e := range n.snapshot() {
		_, _ = invoke(ctx, e.fn, ev)
	}
}

// Poll calls every listener and collects the non-nil results, in
// registration order.
func (n *Notifier) Poll(ctx context.Context, ev Event) []any {
	var results []any
	for _, e := range n.snapshot() {
		res, err := invoke(ctx, e.fn, ev)
		if err == nil && res != nil {
			results = append(results, res)
		}
	}
	return results
}

// invoke calls fn, converting a panic into an error so one listener cannot
// take down the fan-out.
func invoke(ctx context.Context, fn Listener, ev Event) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener for %s panicked: %v", ev.Kind, r)
		}
	}()
	return fn(ctx, ev)
}
