package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/patchsync/internal/evented"
	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/queue"
	"github.com/roach88/patchsync/internal/syncerr"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

// Source is a named data container that applies each transform exactly
// once and in submission order.
//
// A Source composes its concerns rather than inheriting them: a Backend
// holds the data, a TransformLog provides idempotence, an ActionQueue
// serializes every mutation and an Evented publishes lifecycle events.
// The document and the log are only mutated from the source's own queue
// turn.
type Source struct {
	name    string
	backend Backend
	log     *TransformLog
	queue   *queue.ActionQueue
	events  *evented.Evented
	journal Journal
	clock   *Clock
	ids     transform.IDGenerator
	builder transform.Builder
	logger  *slog.Logger

	maxOperations int
	maxQueryPaths int
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithJournal records every logged transform durably.
func WithJournal(j Journal) Option {
	return func(s *Source) {
		s.journal = j
	}
}

// WithClock sets the clock stamping journal entries. Use NewClockAt to
// continue a replayed journal.
func WithClock(c *Clock) Option {
	return func(s *Source) {
		s.clock = c
	}
}

// WithIDGenerator sets the generator for transforms created from raw
// operations or builder callbacks.
func WithIDGenerator(gen transform.IDGenerator) Option {
	return func(s *Source) {
		s.ids = gen
	}
}

// WithBuilder registers the builder passed to callback inputs. Without one,
// callback inputs fail with BUILDER_NOT_REGISTERED.
func WithBuilder(b transform.Builder) Option {
	return func(s *Source) {
		s.builder = b
	}
}

// WithMaxOperations caps the operations per transform. Zero means no cap.
func WithMaxOperations(n int) Option {
	return func(s *Source) {
		s.maxOperations = n
	}
}

// WithMaxQueryPaths caps the paths per query. Zero means no cap.
func WithMaxQueryPaths(n int) Option {
	return func(s *Source) {
		s.maxQueryPaths = n
	}
}

// New creates a source with an empty log over backend.
func New(name string, backend Backend, opts ...Option) *Source {
	s := &Source{
		name:    name,
		backend: backend,
		log:     NewTransformLog(),
		clock:   NewClock(),
		ids:     transform.UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("source", name)
	s.queue = queue.New(queue.WithName(name), queue.WithLogger(s.logger))
	s.events = evented.New(evented.WithName(name), evented.WithLogger(s.logger))
	return s
}

// NewMemory creates a source backed by a MemoryBackend seeded with seed.
func NewMemory(name string, seed value.Value, opts ...Option) *Source {
	backend := NewMemoryBackend(seed)
	s := New(name, backend, opts...)
	backend.ids = s.ids
	return s
}

// Name returns the source's name.
func (s *Source) Name() string { return s.name }

// Log returns the transform log. Callers must treat it as read-only.
func (s *Source) Log() *TransformLog { return s.log }

// Queue returns the action queue serializing this source's mutations.
// Connectors watch it to hold propagations while the source is busy.
func (s *Source) Queue() *queue.ActionQueue { return s.queue }

// Backend returns the backend.
func (s *Source) Backend() Backend { return s.backend }

// Retriever returns the backend's read capability, or nil.
func (s *Source) Retriever() Retriever {
	r, _ := s.backend.(Retriever)
	return r
}

// Retrieve reads the current value at path. It reports false when the
// path does not resolve or the backend cannot read.
//
// Thread-safe for MemoryBackend, but the value may be stale by the time
// the caller uses it; writes that depend on it belong in Reconcile.
func (s *Source) Retrieve(path patch.Path) (value.Value, bool) {
	if r := s.Retriever(); r != nil {
		return r.Retrieve(path)
	}
	return nil, false
}

// On subscribes fn to every kind in kinds.
func (s *Source) On(fn evented.Listener, kinds ...evented.Kind) evented.ListenerID {
	return s.events.On(fn, kinds...)
}

// One subscribes fn for a single delivery.
func (s *Source) One(fn evented.Listener, kinds ...evented.Kind) evented.ListenerID {
	return s.events.One(fn, kinds...)
}

// Off unsubscribes id from kinds, or from everything when kinds is empty.
func (s *Source) Off(id evented.ListenerID, kinds ...evented.Kind) {
	s.events.Off(id, kinds...)
}

// Events exposes the source's event hub.
func (s *Source) Events() *evented.Evented { return s.events }

// Normalize turns input into a Transform using the source's builder and id
// generator.
func (s *Source) Normalize(input any) (*transform.Transform, error) {
	return transform.From(input, s.builder, s.ids)
}

// Transform applies input, which may be a *transform.Transform, operations
// or a builder callback.
//
// A transform whose id is already logged returns an empty result with no
// side effects. Otherwise the apply runs on the source's queue: the
// backend applies it, the id is logged, the journal (if any) records it,
// and the Transform event is settled with the transform and its result
// before the call returns. A failed apply is not logged.
//
// Calling Transform from inside this source's own queue turn (for example
// from a Transform listener) fails with REENTRANT_TRANSFORM, since the
// nested call would wait on the turn it is running in.
func (s *Source) Transform(ctx context.Context, input any) (*transform.Result, error) {
	t, err := s.Normalize(input)
	if err != nil {
		return nil, err
	}
	if s.log.Contains(t.ID) {
		return &transform.Result{}, nil
	}
	if s.queue.InTurn(ctx) {
		return nil, syncerr.ReentrantTransform(s.name)
	}

	res, err := s.queue.Push(ctx, func(ctx context.Context) (any, error) {
		return s.apply(ctx, t)
	}).Wait(ctx)
	if err != nil {
		return nil, err
	}
	r, _ := res.(*transform.Result)
	return r, nil
}

// ReconcileFunc rewrites t against the source's data as it stands when the
// apply starts. current is nil when the backend cannot read. Returning a
// nil transform skips the apply. It runs inside the source's queue turn
// and must not call back into the source.
type ReconcileFunc func(current Retriever, t *transform.Transform) (*transform.Transform, error)

// Reconcile is Transform for writes that depend on the source's current
// data, such as propagations that are diffed against it. fn and the apply
// of its result run as one queue action, so no other transform on this
// source can land between the read and the write.
//
// t is skipped when any transform of its lineage is already logged. The
// returned transform is the one applied, or nil when nothing was.
func (s *Source) Reconcile(ctx context.Context, t *transform.Transform, fn ReconcileFunc) (*transform.Transform, *transform.Result, error) {
	if s.queue.InTurn(ctx) {
		return nil, nil, syncerr.ReentrantTransform(s.name)
	}

	type outcome struct {
		applied *transform.Transform
		result  *transform.Result
	}
	res, err := s.queue.Push(ctx, func(ctx context.Context) (any, error) {
		if s.log.ContainsAny(t.Lineage()...) {
			return outcome{}, nil
		}
		out, err := fn(s.Retriever(), t)
		if err != nil || out == nil {
			return outcome{}, err
		}
		r, err := s.apply(ctx, out)
		if err != nil {
			return nil, err
		}
		return outcome{applied: out, result: r}, nil
	}).Wait(ctx)
	if err != nil {
		return nil, nil, err
	}
	o, _ := res.(outcome)
	return o.applied, o.result, nil
}

// apply runs inside the queue turn.
func (s *Source) apply(ctx context.Context, t *transform.Transform) (*transform.Result, error) {
	if s.log.Contains(t.ID) {
		return &transform.Result{}, nil
	}
	if s.maxOperations > 0 && len(t.Operations) > s.maxOperations {
		return nil, syncerr.TransformNotAllowed(len(t.Operations), s.maxOperations)
	}

	r, err := s.backend.Apply(ctx, t)
	if err != nil {
		s.logger.Debug("transform rejected", "transform_id", t.ID, "error", err)
		return nil, err
	}

	if err := s.record(ctx, t, r); err != nil {
		if _, undoErr := s.backend.Apply(ctx, transform.New(r.Inverse, transform.WithID(t.ID))); undoErr != nil {
			s.logger.Error("undo after journal failure failed",
				"transform_id", t.ID,
				"error", undoErr)
		}
		return nil, err
	}

	s.logger.Debug("transform applied",
		"transform_id", t.ID,
		"operations", len(t.Operations))
	s.events.Settle(ctx, evented.Transform, t, r)
	return r, nil
}

// record journals t and appends it to the log.
func (s *Source) record(ctx context.Context, t *transform.Transform, r *transform.Result) error {
	if s.journal != nil {
		entry := Entry{Source: s.name, Seq: s.clock.Next(), Transform: t, Result: r}
		if err := s.journal.Append(ctx, entry); err != nil {
			return fmt.Errorf("journal transform %s: %w", t.ID, err)
		}
	}
	s.log.Append(t.ID)
	return nil
}

// Transformed folds transforms that already took effect (typically
// returned by a Pusher or Puller) into the log and publishes them. Ids
// already logged are skipped.
//
// The source never applied these itself, so their results and journal
// entries carry no inverse and a journal rewind cannot undo them.
func (s *Source) Transformed(ctx context.Context, ts ...*transform.Transform) error {
	_, err := s.turn(ctx, func(ctx context.Context) (any, error) {
		for _, t := range ts {
			if s.log.Contains(t.ID) {
				continue
			}
			r := &transform.Result{Operations: t.Operations}
			if err := s.record(ctx, t, r); err != nil {
				return nil, err
			}
			s.events.Settle(ctx, evented.Transform, t, r)
		}
		return nil, nil
	})
	return err
}

// Reset discards the backend's data and clears the log in one queue turn.
func (s *Source) Reset(ctx context.Context) error {
	_, err := s.turn(ctx, func(ctx context.Context) (any, error) {
		if r, ok := s.backend.(Resetter); ok {
			if err := r.Reset(ctx); err != nil {
				return nil, fmt.Errorf("reset %s: %w", s.name, err)
			}
		}
		s.log.Clear()
		s.logger.Debug("source reset")
		s.events.Settle(ctx, evented.Reset)
		return nil, nil
	})
	return err
}

// turn runs fn on the source's queue, or directly when already inside it.
func (s *Source) turn(ctx context.Context, fn queue.Action) (any, error) {
	if s.queue.InTurn(ctx) {
		return fn(ctx)
	}
	return s.queue.Push(ctx, fn).Wait(ctx)
}
