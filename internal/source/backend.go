package source

import (
	"context"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

// Backend stores a source's data. Apply is called from the source's queue
// turn only; it must be all-or-nothing.
type Backend interface {
	Apply(ctx context.Context, t *transform.Transform) (*transform.Result, error)
}

// Retriever is implemented by backends that can read their current value
// at a path. Connectors use it to diff before propagating.
type Retriever interface {
	Retrieve(path patch.Path) (value.Value, bool)
}

// Querier answers queries from the backend's own data.
type Querier interface {
	Query(ctx context.Context, q Query) (value.Value, error)
}

// Pusher sends a transform to an external store. The returned transforms
// describe what actually changed, which may include side effects such as
// server-assigned ids.
type Pusher interface {
	Push(ctx context.Context, t *transform.Transform) ([]*transform.Transform, error)
}

// Puller fetches changes from an external store as transforms.
type Puller interface {
	Pull(ctx context.Context, q Query) ([]*transform.Transform, error)
}

// Resetter is implemented by backends that can discard their data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Query addresses one or more paths. Options are passed through to
// backends and listeners untouched.
type Query struct {
	Paths   []patch.Path
	Options map[string]any
}

// NewQuery builds a query over paths.
func NewQuery(paths ...patch.Path) Query {
	return Query{Paths: paths}
}

// Entry is one journaled transform.
type Entry struct {
	Source    string
	Seq       int64
	Transform *transform.Transform
	Result    *transform.Result
}

// Journal durably records applied transforms. A failed Append undoes the
// transform, so the journal never misses an entry the source has logged.
type Journal interface {
	Append(ctx context.Context, e Entry) error
}
