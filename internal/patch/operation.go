package patch

import (
	"fmt"

	"github.com/roach88/patchsync/internal/value"
)

// OpKind is the wire tag of an operation.
type OpKind string

const (
	OpAdd     OpKind = "add"
	OpRemove  OpKind = "remove"
	OpReplace OpKind = "replace"
	OpMove    OpKind = "move"
	OpCopy    OpKind = "copy"
	OpTest    OpKind = "test"
)

// Operation is a sealed sum type with one variant per JSON-Patch operation.
// Each variant carries exactly the fields its operation needs.
type Operation interface {
	// Kind returns the wire tag.
	Kind() OpKind

	// Target returns the path the operation writes (or tests).
	Target() Path

	operation()
}

// Add inserts or overwrites Value at Path.
type Add struct {
	Path  Path
	Value value.Value
}

// Remove deletes the value at Path.
type Remove struct {
	Path Path
}

// Replace overwrites an existing value at Path.
type Replace struct {
	Path  Path
	Value value.Value
}

// Move relocates the value at From to Path.
type Move struct {
	From Path
	Path Path
}

// Copy duplicates the value at From into Path.
type Copy struct {
	From Path
	Path Path
}

// Test compares the value at Path with Value. A nil Value matches absence.
type Test struct {
	Path  Path
	Value value.Value
}

func (Add) Kind() OpKind     { return OpAdd }
func (Remove) Kind() OpKind  { return OpRemove }
func (Replace) Kind() OpKind { return OpReplace }
func (Move) Kind() OpKind    { return OpMove }
func (Copy) Kind() OpKind    { return OpCopy }
func (Test) Kind() OpKind    { return OpTest }

func (o Add) Target() Path     { return o.Path }
func (o Remove) Target() Path  { return o.Path }
func (o Replace) Target() Path { return o.Path }
func (o Move) Target() Path    { return o.Path }
func (o Copy) Target() Path    { return o.Path }
func (o Test) Target() Path    { return o.Path }

func (Add) operation()     {}
func (Remove) operation()  {}
func (Replace) operation() {}
func (Move) operation()    {}
func (Copy) operation()    {}
func (Test) operation()    {}

// ValueOf returns the payload of add/replace/test, or nil.
func ValueOf(op Operation) value.Value {
	switch o := op.(type) {
	case Add:
		return o.Value
	case Replace:
		return o.Value
	case Test:
		return o.Value
	default:
		return nil
	}
}

// ToValue renders an operation in its wire shape
// ({"op", "path", "from"?, "value"?}) for encoding and digests.
func ToValue(op Operation) value.Object {
	obj := value.Object{
		"op":   value.String(op.Kind()),
		"path": value.String(op.Target().String()),
	}
	switch o := op.(type) {
	case Move:
		obj["from"] = value.String(o.From.String())
	case Copy:
		obj["from"] = value.String(o.From.String())
	}
	if v := ValueOf(op); v != nil {
		obj["value"] = v
	}
	return obj
}

// FromValue parses the wire shape produced by ToValue.
func FromValue(v value.Value) (Operation, error) {
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("operation must be an object, got %s", value.TypeName(v))
	}
	kind, ok := obj["op"].(value.String)
	if !ok {
		return nil, fmt.Errorf("operation is missing string field \"op\"")
	}
	path, err := pointerField(obj, "path")
	if err != nil {
		return nil, err
	}
	val := obj["value"]

	switch OpKind(kind) {
	case OpAdd:
		if val == nil {
			return nil, fmt.Errorf("add %s: missing value", path)
		}
		return Add{Path: path, Value: val}, nil
	case OpRemove:
		return Remove{Path: path}, nil
	case OpReplace:
		return Replace{Path: path, Value: val}, nil
	case OpMove, OpCopy:
		from, err := pointerField(obj, "from")
		if err != nil {
			return nil, err
		}
		if OpKind(kind) == OpMove {
			return Move{From: from, Path: path}, nil
		}
		return Copy{From: from, Path: path}, nil
	case OpTest:
		return Test{Path: path, Value: val}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", kind)
	}
}

func pointerField(obj value.Object, field string) (Path, error) {
	raw, ok := obj[field].(value.String)
	if !ok {
		return nil, fmt.Errorf("operation is missing string field %q", field)
	}
	return ParsePointer(string(raw))
}

// OperationsValue renders a list of operations as an Array.
func OperationsValue(ops []Operation) value.Array {
	arr := make(value.Array, len(ops))
	for i, op := range ops {
		arr[i] = ToValue(op)
	}
	return arr
}

// EncodeOperations encodes operations as a JSON array.
func EncodeOperations(ops []Operation) ([]byte, error) {
	return value.Marshal(OperationsValue(ops))
}

// DecodeOperations decodes a JSON array of operations. A single operation
// object is accepted as a one-element list.
func DecodeOperations(data []byte) ([]Operation, error) {
	v, err := value.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	return OperationsFromValue(v)
}

// OperationsFromValue converts an Array (or single Object) of wire-shaped
// operations.
func OperationsFromValue(v value.Value) ([]Operation, error) {
	var items value.Array
	switch val := v.(type) {
	case value.Array:
		items = val
	case value.Object:
		items = value.Array{val}
	default:
		return nil, fmt.Errorf("decode operations: expected array, got %s", value.TypeName(v))
	}

	ops := make([]Operation, 0, len(items))
	for i, item := range items {
		op, err := FromValue(item)
		if err != nil {
			return nil, fmt.Errorf("decode operations: [%d]: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
