package transform

import (
	"fmt"
	"slices"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/syncerr"
)

// Transform is an identified, ordered batch of operations applied to a
// source as one unit. A Transform is immutable once constructed; Spawn
// derives a child rather than editing in place.
type Transform struct {
	// ID is assigned once at construction and never reused.
	ID string

	// Operations are applied in order.
	Operations []patch.Operation

	// Ancestry lists parent ids, oldest first.
	Ancestry []string
}

// Option configures New.
type Option func(*config)

type config struct {
	id       string
	gen      IDGenerator
	ancestry []string
}

// WithID fixes the transform id instead of generating one.
func WithID(id string) Option {
	return func(c *config) {
		c.id = id
	}
}

// WithGenerator sets the generator used when no id is given.
func WithGenerator(gen IDGenerator) Option {
	return func(c *config) {
		c.gen = gen
	}
}

// WithAncestry is used when a transform is reconstructed from storage.
func WithAncestry(ids ...string) Option {
	return func(c *config) {
		c.ancestry = append([]string(nil), ids...)
	}
}

// New creates a transform over ops with a fresh id.
func New(ops []patch.Operation, opts ...Option) *Transform {
	cfg := config{gen: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	id := cfg.id
	if id == "" {
		id = cfg.gen.Generate()
	}
	return &Transform{
		ID:         id,
		Operations: slices.Clone(ops),
		Ancestry:   cfg.ancestry,
	}
}

// IsEmpty reports whether the transform carries no operations.
func (t *Transform) IsEmpty() bool {
	return len(t.Operations) == 0
}

// Spawn derives a child transform. The child's ancestry is the parent's
// ancestry followed by the parent's id.
func (t *Transform) Spawn(ops []patch.Operation, opts ...Option) *Transform {
	child := New(ops, opts...)
	child.Ancestry = append(slices.Clone(t.Ancestry), t.ID)
	return child
}

// DescendedFrom reports whether other's id appears in t's ancestry.
func (t *Transform) DescendedFrom(other *Transform) bool {
	return other != nil && slices.Contains(t.Ancestry, other.ID)
}

// Root returns the oldest ancestor id, or the transform's own id when it
// has no ancestry.
func (t *Transform) Root() string {
	if len(t.Ancestry) > 0 {
		return t.Ancestry[0]
	}
	return t.ID
}

// RelatedTo reports whether t and other are part of the same causal chain:
// they share an id, or one descends from the other's root.
func (t *Transform) RelatedTo(other *Transform) bool {
	if other == nil {
		return false
	}
	if t.ID == other.ID {
		return true
	}
	return t.ID == other.Root() || other.ID == t.Root() ||
		slices.Contains(t.Ancestry, other.Root()) ||
		slices.Contains(other.Ancestry, t.Root())
}

// Lineage returns the transform's ancestry plus its own id.
func (t *Transform) Lineage() []string {
	return append(slices.Clone(t.Ancestry), t.ID)
}

func (t *Transform) String() string {
	return fmt.Sprintf("transform %s (%d ops)", t.ID, len(t.Operations))
}

// BuildFunc produces operations through a Builder.
type BuildFunc func(b Builder) []patch.Operation

// From normalizes input into a Transform. Accepted inputs are an existing
// *Transform (returned unchanged), a list of operations, a single operation
// or a BuildFunc. A BuildFunc requires a builder.
func From(input any, builder Builder, gen IDGenerator) (*Transform, error) {
	if gen == nil {
		gen = UUIDv7Generator{}
	}

	switch in := input.(type) {
	case *Transform:
		if in == nil {
			return nil, fmt.Errorf("normalize transform: nil transform")
		}
		return in, nil
	case []patch.Operation:
		return New(in, WithGenerator(gen)), nil
	case patch.Operation:
		return New([]patch.Operation{in}, WithGenerator(gen)), nil
	case BuildFunc:
		if builder == nil {
			return nil, syncerr.BuilderNotRegistered()
		}
		return New(in(builder), WithGenerator(gen)), nil
	case func(Builder) []patch.Operation:
		return From(BuildFunc(in), builder, gen)
	default:
		return nil, fmt.Errorf("normalize transform: unsupported input %T", input)
	}
}

// Result is the outcome of applying a transform: the operations that were
// applied and the operations that undo them.
type Result struct {
	Operations []patch.Operation
	Inverse    []patch.Operation
}

// IsEmpty reports whether both sequences are empty.
func (r *Result) IsEmpty() bool {
	return r == nil || (len(r.Operations) == 0 && len(r.Inverse) == 0)
}

// Concat returns a result covering r followed by other. The combined
// inverse undoes other before r.
func (r *Result) Concat(other *Result) *Result {
	if r == nil {
		r = &Result{}
	}
	if other == nil {
		other = &Result{}
	}
	ops := make([]patch.Operation, 0, len(r.Operations)+len(other.Operations))
	ops = append(append(ops, r.Operations...), other.Operations...)
	inverse := make([]patch.Operation, 0, len(r.Inverse)+len(other.Inverse))
	inverse = append(append(inverse, other.Inverse...), r.Inverse...)
	return &Result{Operations: ops, Inverse: inverse}
}
