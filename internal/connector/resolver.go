package connector

import (
	"fmt"

	"github.com/snorwin/jsonpatch"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/value"
)

// Resolver decides how an incoming value is written over a different
// value the target already holds at path.
type Resolver interface {
	Resolve(path patch.Path, current, incoming value.Value) ([]patch.Operation, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(path patch.Path, current, incoming value.Value) ([]patch.Operation, error)

func (f ResolverFunc) Resolve(path patch.Path, current, incoming value.Value) ([]patch.Operation, error) {
	return f(path, current, incoming)
}

// DiffResolver writes only what differs. Two objects are diffed structurally
// and the result is scoped under path; anything else is replaced whole.
// The diff is checked against a scratch copy of current and falls back to a
// whole replace if it does not reproduce incoming.
type DiffResolver struct{}

var _ Resolver = DiffResolver{}

func (DiffResolver) Resolve(path patch.Path, current, incoming value.Value) ([]patch.Operation, error) {
	replace := []patch.Operation{patch.Replace{Path: path.Clone(), Value: incoming}}

	cur, ok := current.(value.Object)
	if !ok {
		return replace, nil
	}
	in, ok := incoming.(value.Object)
	if !ok {
		return replace, nil
	}

	list, err := jsonpatch.CreateJSONPatch(value.ToNative(in), value.ToNative(cur))
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", path, err)
	}

	items := list.List()
	relative := make([]patch.Operation, 0, len(items))
	for _, item := range items {
		op, err := fromJSONPatch(item)
		if err != nil {
			return replace, nil
		}
		relative = append(relative, op)
	}

	scratch := patch.NewDocument(cur)
	if _, err := scratch.ApplyAll(relative, false); err != nil || !value.Equal(scratch.Data(), in) {
		return replace, nil
	}

	scoped := make([]patch.Operation, len(relative))
	for i, op := range relative {
		scoped[i] = prefix(path, op)
	}
	return scoped, nil
}

func fromJSONPatch(item jsonpatch.JSONPatch) (patch.Operation, error) {
	p, err := patch.ParsePointer(item.Path)
	if err != nil {
		return nil, err
	}
	switch item.Operation {
	case "add", "replace":
		v, err := value.FromNative(item.Value)
		if err != nil {
			return nil, err
		}
		if item.Operation == "add" {
			return patch.Add{Path: p, Value: v}, nil
		}
		return patch.Replace{Path: p, Value: v}, nil
	case "remove":
		return patch.Remove{Path: p}, nil
	default:
		return nil, fmt.Errorf("unexpected diff operation %q", item.Operation)
	}
}

// prefix re-roots op under base.
func prefix(base patch.Path, op patch.Operation) patch.Operation {
	under := func(p patch.Path) patch.Path {
		return base.Append(p...)
	}
	switch o := op.(type) {
	case patch.Add:
		return patch.Add{Path: under(o.Path), Value: o.Value}
	case patch.Remove:
		return patch.Remove{Path: under(o.Path)}
	case patch.Replace:
		return patch.Replace{Path: under(o.Path), Value: o.Value}
	case patch.Move:
		return patch.Move{From: under(o.From), Path: under(o.Path)}
	case patch.Copy:
		return patch.Copy{From: under(o.From), Path: under(o.Path)}
	case patch.Test:
		return patch.Test{Path: under(o.Path), Value: o.Value}
	default:
		return op
	}
}
