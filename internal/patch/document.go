package patch

import (
	"fmt"
	"strconv"

	"github.com/roach88/patchsync/internal/syncerr"
	"github.com/roach88/patchsync/internal/value"
)

// Document is a single mutable value tree addressed by Path.
//
// Every mutating method takes an invert flag. When set, the returned
// operations, applied in the given order, restore the prior tree exactly
// (including the difference between an absent key and a key holding null).
// Values are deep-cloned on write so the document never aliases caller data.
//
// Each call is all-or-nothing: a failed operation leaves the tree untouched.
//
// Document is not safe for concurrent use; a Source serializes access
// through its action queue.
type Document struct {
	data value.Value
}

// NewDocument creates a document holding a copy of seed. A nil seed
// creates an empty document.
func NewDocument(seed value.Value) *Document {
	return &Document{data: value.Clone(seed)}
}

// Data returns a deep copy of the whole tree (nil if empty).
func (d *Document) Data() value.Value {
	return value.Clone(d.data)
}

// Reset replaces the whole tree with a copy of seed.
func (d *Document) Reset(seed value.Value) {
	d.data = value.Clone(seed)
}

// Get returns a copy of the value at path. It never fails; an unresolvable
// path reports ok=false.
func (d *Document) Get(path Path) (value.Value, bool) {
	v, ok := d.retrieve(path)
	if !ok {
		return nil, false
	}
	return value.Clone(v), true
}

// Contains reports whether path resolves.
func (d *Document) Contains(path Path) bool {
	_, ok := d.retrieve(path)
	return ok
}

func (d *Document) retrieve(path Path) (value.Value, bool) {
	node := d.data
	if node == nil {
		return nil, false
	}
	for _, seg := range path {
		switch n := node.(type) {
		case value.Object:
			child, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = child
		case value.Array:
			idx, ok := parseIndex(seg)
			if !ok || idx >= len(n) {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

// parentFunc mutates the container addressed by the parent of a path and
// returns the (possibly reallocated) container.
type parentFunc func(parent value.Value, key string) (value.Value, error)

// withParent descends to the parent of path and applies fn, writing any
// reallocated containers back up the chain. Nothing is written unless fn
// succeeds.
func (d *Document) withParent(path Path, fn parentFunc) error {
	root, err := rewrite(d.data, path, 0, fn)
	if err != nil {
		return err
	}
	d.data = root
	return nil
}

func rewrite(node value.Value, path Path, depth int, fn parentFunc) (value.Value, error) {
	if depth == len(path)-1 {
		return fn(node, path[depth])
	}

	seg := path[depth]
	switch n := node.(type) {
	case value.Object:
		child, ok := n[seg]
		if !ok {
			return nil, syncerr.PathNotFound(path.String())
		}
		updated, err := rewrite(child, path, depth+1, fn)
		if err != nil {
			return nil, err
		}
		n[seg] = updated
		return n, nil
	case value.Array:
		idx, ok := parseIndex(seg)
		if !ok || idx >= len(n) {
			return nil, syncerr.PathNotFound(path.String())
		}
		updated, err := rewrite(n[idx], path, depth+1, fn)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil
	default:
		return nil, syncerr.PathNotFound(path.String())
	}
}

// Add sets value at path. On an array parent, "-" appends and a numeric
// segment inserts (index == len appends); on an object parent the key is
// created or overwritten. The empty path replaces the whole document.
func (d *Document) Add(path Path, v value.Value, invert bool) ([]Operation, error) {
	if v == nil {
		return nil, fmt.Errorf("add %s: value is required", path)
	}
	v = value.Clone(v)

	if path.IsRoot() {
		var inverse []Operation
		if invert {
			inverse = []Operation{Replace{Path: Path{}, Value: d.data}}
		}
		d.data = v
		return inverse, nil
	}

	var inverse []Operation
	err := d.withParent(path, func(parent value.Value, key string) (value.Value, error) {
		switch p := parent.(type) {
		case value.Object:
			if p == nil {
				p = value.Object{}
			}
			if prev, had := p[key]; had {
				inverse = []Operation{Replace{Path: path.Clone(), Value: prev}}
			} else {
				inverse = []Operation{Remove{Path: path.Clone()}}
			}
			p[key] = v
			return p, nil
		case value.Array:
			if key == AppendSegment {
				inverse = []Operation{Remove{Path: path.Parent().Append(strconv.Itoa(len(p)))}}
				return append(p, v), nil
			}
			idx, ok := parseIndex(key)
			if !ok || idx > len(p) {
				return nil, syncerr.PathNotFound(path.String())
			}
			inverse = []Operation{Remove{Path: path.Clone()}}
			p = append(p, nil)
			copy(p[idx+1:], p[idx:])
			p[idx] = v
			return p, nil
		default:
			return nil, syncerr.PathNotFound(path.String())
		}
	})
	if err != nil {
		return nil, err
	}
	if !invert {
		return nil, nil
	}
	return inverse, nil
}

// Remove deletes the value at path. Array removal shifts later elements
// down; "-" pops the last element. The root cannot be removed.
func (d *Document) Remove(path Path, invert bool) ([]Operation, error) {
	if path.IsRoot() {
		return nil, syncerr.PathNotFound(path.String())
	}

	var inverse []Operation
	err := d.withParent(path, func(parent value.Value, key string) (value.Value, error) {
		switch p := parent.(type) {
		case value.Object:
			prev, had := p[key]
			if !had {
				return nil, syncerr.PathNotFound(path.String())
			}
			inverse = []Operation{Add{Path: path.Clone(), Value: prev}}
			delete(p, key)
			return p, nil
		case value.Array:
			if len(p) == 0 {
				return nil, syncerr.PathNotFound(path.String())
			}
			idx := len(p) - 1
			if key != AppendSegment {
				var ok bool
				idx, ok = parseIndex(key)
				if !ok || idx >= len(p) {
					return nil, syncerr.PathNotFound(path.String())
				}
			}
			inverse = []Operation{Add{Path: path.Parent().Append(strconv.Itoa(idx)), Value: p[idx]}}
			copy(p[idx:], p[idx+1:])
			p[len(p)-1] = nil
			return p[:len(p)-1], nil
		default:
			return nil, syncerr.PathNotFound(path.String())
		}
	})
	if err != nil {
		return nil, err
	}
	if !invert {
		return nil, nil
	}
	return inverse, nil
}

// Replace overwrites an existing value. The target must already exist,
// except at the root. On arrays "-" addresses the last element.
func (d *Document) Replace(path Path, v value.Value, invert bool) ([]Operation, error) {
	v = value.Clone(v)

	if path.IsRoot() {
		var inverse []Operation
		if invert {
			inverse = []Operation{Replace{Path: Path{}, Value: d.data}}
		}
		d.data = v
		return inverse, nil
	}
	if v == nil {
		return nil, fmt.Errorf("replace %s: value is required", path)
	}

	var inverse []Operation
	err := d.withParent(path, func(parent value.Value, key string) (value.Value, error) {
		switch p := parent.(type) {
		case value.Object:
			prev, had := p[key]
			if !had {
				return nil, syncerr.PathNotFound(path.String())
			}
			inverse = []Operation{Replace{Path: path.Clone(), Value: prev}}
			p[key] = v
			return p, nil
		case value.Array:
			if len(p) == 0 {
				return nil, syncerr.PathNotFound(path.String())
			}
			idx := len(p) - 1
			if key != AppendSegment {
				var ok bool
				idx, ok = parseIndex(key)
				if !ok || idx >= len(p) {
					return nil, syncerr.PathNotFound(path.String())
				}
			}
			inverse = []Operation{Replace{Path: path.Parent().Append(strconv.Itoa(idx)), Value: p[idx]}}
			p[idx] = v
			return p, nil
		default:
			return nil, syncerr.PathNotFound(path.String())
		}
	})
	if err != nil {
		return nil, err
	}
	if !invert {
		return nil, nil
	}
	return inverse, nil
}

// Move removes the value at from and adds it at to. Equal paths are a
// no-op. The inverse lists the add's inverse before the remove's inverse,
// which is the order that restores the tree.
func (d *Document) Move(from, to Path, invert bool) ([]Operation, error) {
	if from.Equal(to) {
		return noop(invert), nil
	}
	if from.IsRoot() || (to.HasPrefix(from) && len(to) > len(from)) {
		return nil, syncerr.PathNotFound(to.String())
	}

	moved, ok := d.retrieve(from)
	if !ok {
		return nil, syncerr.PathNotFound(from.String())
	}

	removeInverse, err := d.Remove(from, true)
	if err != nil {
		return nil, err
	}
	addInverse, err := d.Add(to, moved, true)
	if err != nil {
		// Restore the removed value so the move is all-or-nothing.
		if _, rbErr := d.ApplyAll(removeInverse, false); rbErr != nil {
			return nil, fmt.Errorf("move %s -> %s: rollback failed: %w", from, to, rbErr)
		}
		return nil, err
	}
	if !invert {
		return nil, nil
	}
	return append(addInverse, removeInverse...), nil
}

// Copy adds a copy of the value at from to to. Equal paths are a no-op.
func (d *Document) Copy(from, to Path, invert bool) ([]Operation, error) {
	if from.Equal(to) {
		return noop(invert), nil
	}
	src, ok := d.retrieve(from)
	if !ok {
		return nil, syncerr.PathNotFound(from.String())
	}
	return d.Add(to, src, invert)
}

// Test reports whether the value at path structurally equals v. A missing
// path equals only a nil v.
func (d *Document) Test(path Path, v value.Value) bool {
	cur, ok := d.retrieve(path)
	if !ok {
		return v == nil
	}
	return value.Equal(cur, v)
}

// noop is the single representation of a no-op: an empty, non-nil inverse
// when inversion was requested, nil otherwise.
func noop(invert bool) []Operation {
	if invert {
		return []Operation{}
	}
	return nil
}

// Apply dispatches one operation. A test that does not match fails with
// TEST_FAILED so it can guard a batch.
func (d *Document) Apply(op Operation, invert bool) ([]Operation, error) {
	switch o := op.(type) {
	case Add:
		return d.Add(o.Path, o.Value, invert)
	case Remove:
		return d.Remove(o.Path, invert)
	case Replace:
		return d.Replace(o.Path, o.Value, invert)
	case Move:
		return d.Move(o.From, o.Path, invert)
	case Copy:
		return d.Copy(o.From, o.Path, invert)
	case Test:
		if !d.Test(o.Path, o.Value) {
			return nil, syncerr.TestFailed(o.Path.String())
		}
		return noop(invert), nil
	default:
		return nil, fmt.Errorf("unsupported operation %T", op)
	}
}

// ApplyAll applies ops in order as one unit. If any operation fails, the
// ones already applied are undone and the error is returned. With invert,
// the result undoes the whole batch when applied in order.
func (d *Document) ApplyAll(ops []Operation, invert bool) ([]Operation, error) {
	var inverse []Operation
	for i, op := range ops {
		inv, err := d.Apply(op, true)
		if err != nil {
			if _, rbErr := d.applyUnchecked(inverse); rbErr != nil {
				return nil, fmt.Errorf("operation %d: %w (rollback failed: %v)", i, err, rbErr)
			}
			return nil, err
		}
		inverse = append(append([]Operation{}, inv...), inverse...)
	}
	if !invert {
		return nil, nil
	}
	if inverse == nil {
		inverse = []Operation{}
	}
	return inverse, nil
}

func (d *Document) applyUnchecked(ops []Operation) (int, error) {
	for i, op := range ops {
		if _, err := d.Apply(op, false); err != nil {
			return i, err
		}
	}
	return len(ops), nil
}
