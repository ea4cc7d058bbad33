package source

import (
	"fmt"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// TransformLog records the ids of transforms a source has applied, in
// order. Contains is the admission check that makes re-application a
// no-op.
//
// The log is written only from its source's queue turn; reads are safe
// from any goroutine.
type TransformLog struct {
	mu      sync.RWMutex
	ids     mapset.Set[string]
	entries []string
}

// NewTransformLog creates an empty log.
func NewTransformLog() *TransformLog {
	return &TransformLog{ids: mapset.NewThreadUnsafeSet[string]()}
}

// Append records ids. Ids already present are ignored.
func (l *TransformLog) Append(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		if l.ids.Add(id) {
			l.entries = append(l.entries, id)
		}
	}
}

// Contains reports whether id has been logged.
func (l *TransformLog) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ids.Contains(id)
}

// ContainsAny reports whether any of ids has been logged.
func (l *TransformLog) ContainsAny(ids ...string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ids.ContainsAny(ids...)
}

// Head returns the most recent id, or "" when empty.
func (l *TransformLog) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1]
}

// Entries returns a copy of the ids in append order.
func (l *TransformLog) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}

// Len returns the number of logged ids.
func (l *TransformLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// After returns the ids logged after id.
func (l *TransformLog) After(id string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, err := l.indexOf(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(l.entries[idx+1:]), nil
}

// Before returns the ids logged before id.
func (l *TransformLog) Before(id string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, err := l.indexOf(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(l.entries[:idx]), nil
}

// Truncate drops every id logged before id. The id itself is kept.
func (l *TransformLog) Truncate(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, err := l.indexOf(id)
	if err != nil {
		return err
	}
	l.ids.RemoveAll(l.entries[:idx]...)
	l.entries = slices.Clone(l.entries[idx:])
	return nil
}

// Rollback drops every id logged after id.
func (l *TransformLog) Rollback(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, err := l.indexOf(id)
	if err != nil {
		return err
	}
	l.ids.RemoveAll(l.entries[idx+1:]...)
	l.entries = l.entries[:idx+1]
	return nil
}

// Clear empties the log.
func (l *TransformLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ids.Clear()
	l.entries = nil
}

func (l *TransformLog) indexOf(id string) (int, error) {
	if !l.ids.Contains(id) {
		return 0, fmt.Errorf("transform %s is not in the log", id)
	}
	return slices.Index(l.entries, id), nil
}
