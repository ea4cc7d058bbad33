package source

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/syncerr"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

// MemoryBackend keeps the data in a patch.Document.
//
// Writes arrive from the owning source's queue turn; reads come from any
// goroutine (connectors diffing against this source), so the document is
// guarded by a RWMutex.
type MemoryBackend struct {
	mu   sync.RWMutex
	doc  *patch.Document
	seed value.Value
	ids  transform.IDGenerator
}

var (
	_ Backend   = (*MemoryBackend)(nil)
	_ Retriever = (*MemoryBackend)(nil)
	_ Querier   = (*MemoryBackend)(nil)
	_ Puller    = (*MemoryBackend)(nil)
	_ Resetter  = (*MemoryBackend)(nil)
)

// NewMemoryBackend creates a backend holding a copy of seed. Reset returns
// the document to seed.
func NewMemoryBackend(seed value.Value) *MemoryBackend {
	return &MemoryBackend{
		doc:  patch.NewDocument(seed),
		seed: value.Clone(seed),
		ids:  transform.UUIDv7Generator{},
	}
}

// Apply applies every operation of t as one unit.
func (m *MemoryBackend) Apply(_ context.Context, t *transform.Transform) (*transform.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inverse, err := m.doc.ApplyAll(t.Operations, true)
	if err != nil {
		return nil, err
	}
	return &transform.Result{
		Operations: slices.Clone(t.Operations),
		Inverse:    inverse,
	}, nil
}

// Retrieve returns a copy of the value at path.
func (m *MemoryBackend) Retrieve(path patch.Path) (value.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc.Get(path)
}

// Data returns a copy of the whole document.
func (m *MemoryBackend) Data() value.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc.Data()
}

// Query returns the value at the single queried path, or an Array of
// values when several paths are queried. Any unresolvable path fails with
// PATH_NOT_FOUND.
func (m *MemoryBackend) Query(_ context.Context, q Query) (value.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(value.Array, 0, len(q.Paths))
	for _, path := range q.Paths {
		v, ok := m.doc.Get(path)
		if !ok {
			return nil, syncerr.PathNotFound(path.String())
		}
		results = append(results, v)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// Pull describes the queried values as a single transform of add
// operations, one per path, so another source can load them.
func (m *MemoryBackend) Pull(_ context.Context, q Query) ([]*transform.Transform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make([]patch.Operation, 0, len(q.Paths))
	for _, path := range q.Paths {
		v, ok := m.doc.Get(path)
		if !ok {
			return nil, syncerr.PathNotFound(path.String())
		}
		ops = append(ops, patch.Add{Path: path.Clone(), Value: v})
	}
	return []*transform.Transform{transform.New(ops, transform.WithGenerator(m.ids))}, nil
}

// Reset restores the seed document.
func (m *MemoryBackend) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc.Reset(m.seed)
	return nil
}
