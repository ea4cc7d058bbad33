package connector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/patchsync/internal/evented"
	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/queue"
	"github.com/roach88/patchsync/internal/source"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

// TransformConnector propagates every transform applied by a source to a
// target.
//
// Each propagation is computed against the target's current value: add
// and replace operations that would write a value the target already holds
// are dropped, differing values are rewritten by the Resolver, and removes
// of absent paths are dropped. Transforms the target has already logged
// (including ones descended from a logged transform) are ignored, which
// stops changes from echoing back through a reverse connector.
//
// Propagations wait on a private queue while the target is busy and are
// released when the target's queue drains. The diff itself is computed
// inside the target's queue turn together with the apply (see
// source.Source.Reconcile), so it always sees the target's latest value
// even when the target takes other writes while propagations wait.
type TransformConnector struct {
	source   *source.Source
	target   *source.Source
	blocking bool
	resolver Resolver
	ids      transform.IDGenerator
	logger   *slog.Logger

	// pending holds propagations in arrival order. It never auto-processes:
	// it is released by kick and by the target's drained notification.
	pending *queue.ActionQueue

	mu         sync.Mutex // guards active and listenerID
	active     bool
	listenerID evented.ListenerID
}

// Option configures a TransformConnector.
type Option func(*TransformConnector)

// WithBlocking makes the source's transform wait for the propagation.
func WithBlocking(blocking bool) Option {
	return func(c *TransformConnector) {
		c.blocking = blocking
	}
}

// WithResolver replaces the DiffResolver.
func WithResolver(r Resolver) Option {
	return func(c *TransformConnector) {
		c.resolver = r
	}
}

// WithIDGenerator sets the generator for rewritten (spawned) transforms.
func WithIDGenerator(gen transform.IDGenerator) Option {
	return func(c *TransformConnector) {
		c.ids = gen
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *TransformConnector) {
		c.logger = logger
	}
}

// NewTransformConnector creates an inactive connector from src to target.
func NewTransformConnector(src, target *source.Source, opts ...Option) *TransformConnector {
	c := &TransformConnector{
		source:   src,
		target:   target,
		resolver: DiffResolver{},
		ids:      transform.UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("from", src.Name(), "to", target.Name())
	c.pending = queue.New(
		queue.WithAutoProcess(false),
		queue.WithName(src.Name()+"->"+target.Name()),
		queue.WithLogger(c.logger))
	c.target.Queue().OnDrained(c.pending.Process)
	return c
}

// Activate subscribes to the source. Calling it again is a no-op.
func (c *TransformConnector) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return
	}
	c.listenerID = c.source.On(c.onTransform, evented.Transform)
	c.active = true
	c.logger.Debug("connector activated", "blocking", c.blocking)
}

// Deactivate unsubscribes. Propagations already queued still run.
func (c *TransformConnector) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}
	c.source.Off(c.listenerID, evented.Transform)
	c.active = false
	c.logger.Debug("connector deactivated")
}

// Active reports whether the connector is subscribed.
func (c *TransformConnector) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Pending returns the number of propagations waiting for the target.
func (c *TransformConnector) Pending() int {
	return c.pending.Len()
}

// Flush waits until every queued propagation has run, or ctx ends.
// Propagations that a flushed propagation triggers on other connectors are
// not waited for; topology.Topology.Flush loops until everything settles.
func (c *TransformConnector) Flush(ctx context.Context) error {
	c.kick()
	return c.pending.WaitDrained(ctx)
}

// kick releases queued propagations unless the target is busy; the
// target's drained notification releases them otherwise. The check races
// with the target starting new work, which only delays a propagation:
// its diff is taken inside the target's turn.
func (c *TransformConnector) kick() {
	if !c.target.Queue().Processing() {
		c.pending.Process()
	}
}

func (c *TransformConnector) onTransform(ctx context.Context, ev evented.Event) (any, error) {
	t, ok := evented.Arg[*transform.Transform](ev, 0)
	if !ok {
		return nil, nil
	}
	if c.target.Log().ContainsAny(t.Lineage()...) {
		c.logger.Debug("target already has transform", "transform_id", t.ID)
		return nil, nil
	}

	// Waiting is only safe when the target is not part of the turn chain
	// that delivered this event.
	wait := c.blocking && !c.target.Queue().InTurn(ctx)
	pushCtx := ctx
	if !wait {
		pushCtx = queue.Detach(ctx)
	}

	h := c.pending.Push(pushCtx, func(ctx context.Context) (any, error) {
		return nil, c.propagate(ctx, t)
	})
	c.kick()

	if !wait {
		return nil, nil
	}
	_, err := h.Wait(ctx)
	return nil, err
}

func (c *TransformConnector) propagate(ctx context.Context, t *transform.Transform) error {
	rewritten := false
	out, _, err := c.target.Reconcile(ctx, t, func(current source.Retriever, t *transform.Transform) (*transform.Transform, error) {
		ops, changed, err := c.reconcile(current, t)
		if err != nil || len(ops) == 0 {
			return nil, err
		}
		rewritten = changed
		if changed {
			return t.Spawn(ops, transform.WithGenerator(c.ids)), nil
		}
		return t, nil
	})
	if err != nil {
		c.logger.Warn("propagation failed", "transform_id", t.ID, "error", err)
		return err
	}
	if out == nil {
		c.logger.Debug("nothing to propagate", "transform_id", t.ID)
		return nil
	}
	c.logger.Debug("transform propagated",
		"transform_id", t.ID,
		"propagated_id", out.ID,
		"rewritten", rewritten)
	return nil
}

// reconcile rewrites t's operations against the target's current data.
// Operations are checked against a scratch copy that already reflects the
// earlier operations of the same transform. rewritten reports whether the
// result differs from t's operations.
func (c *TransformConnector) reconcile(current source.Retriever, t *transform.Transform) ([]patch.Operation, bool, error) {
	if current == nil {
		return t.Operations, false, nil
	}
	root, _ := current.Retrieve(patch.Path{})
	scratch := patch.NewDocument(root)

	rewritten := false
	out := make([]patch.Operation, 0, len(t.Operations))
	emit := func(ops ...patch.Operation) {
		out = append(out, ops...)
		_, _ = scratch.ApplyAll(ops, false)
	}

	// write handles add/replace of v at path.
	write := func(op patch.Operation, path patch.Path, v value.Value) error {
		cur, exists := scratch.Get(path)
		switch {
		case !exists:
			emit(op)
		case value.Equal(cur, v):
			rewritten = true
		default:
			resolved, err := c.resolver.Resolve(path, cur, v)
			if err != nil {
				return err
			}
			rewritten = true
			emit(resolved...)
		}
		return nil
	}

	for _, op := range t.Operations {
		var err error
		switch o := op.(type) {
		case patch.Add:
			if insertsIntoArray(scratch, o.Path) {
				emit(op)
				continue
			}
			err = write(op, o.Path, o.Value)
		case patch.Replace:
			err = write(op, o.Path, o.Value)
		case patch.Remove:
			if !scratch.Contains(o.Path) {
				rewritten = true
				continue
			}
			emit(op)
		default:
			emit(op)
		}
		if err != nil {
			return nil, false, err
		}
	}
	return out, rewritten, nil
}

// insertsIntoArray reports whether an add at path inserts into an array
// rather than writing a slot.
func insertsIntoArray(doc *patch.Document, path patch.Path) bool {
	if path.IsRoot() {
		return false
	}
	if path.Last() == patch.AppendSegment {
		return true
	}
	parent, ok := doc.Get(path.Parent())
	if !ok {
		return false
	}
	_, isArray := parent.(value.Array)
	return isArray
}
