package transform

import (
	"strconv"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/value"
)

// Builder constructs operations. Record helpers address a normalized record
// store laid out as /<type>/<id>, with attributes under
// /<type>/<id>/attributes/<name> and has-many relationships as arrays of ids
// under /<type>/<id>/relationships/<name>.
type Builder interface {
	Add(path patch.Path, v value.Value) patch.Operation
	Remove(path patch.Path) patch.Operation
	Replace(path patch.Path, v value.Value) patch.Operation
	Move(from, to patch.Path) patch.Operation
	Copy(from, to patch.Path) patch.Operation
	Test(path patch.Path, v value.Value) patch.Operation

	AddRecord(typ, id string, record value.Object) patch.Operation
	RemoveRecord(typ, id string) patch.Operation
	ReplaceAttribute(typ, id, attr string, v value.Value) patch.Operation
	AddToHasMany(typ, id, rel, relatedID string) patch.Operation
	RemoveFromHasMany(typ, id, rel string, index int) patch.Operation
}

// OperationBuilder is the default Builder.
type OperationBuilder struct{}

var _ Builder = OperationBuilder{}

func (OperationBuilder) Add(path patch.Path, v value.Value) patch.Operation {
	return patch.Add{Path: path, Value: v}
}

func (OperationBuilder) Remove(path patch.Path) patch.Operation {
	return patch.Remove{Path: path}
}

func (OperationBuilder) Replace(path patch.Path, v value.Value) patch.Operation {
	return patch.Replace{Path: path, Value: v}
}

func (OperationBuilder) Move(from, to patch.Path) patch.Operation {
	return patch.Move{From: from, Path: to}
}

func (OperationBuilder) Copy(from, to patch.Path) patch.Operation {
	return patch.Copy{From: from, Path: to}
}

func (OperationBuilder) Test(path patch.Path, v value.Value) patch.Operation {
	return patch.Test{Path: path, Value: v}
}

// AddRecord stores record at /<typ>/<id>. The record's "type" and "id"
// keys are set so the stored value is self-describing.
func (OperationBuilder) AddRecord(typ, id string, record value.Object) patch.Operation {
	rec, _ := value.Clone(record).(value.Object)
	if rec == nil {
		rec = value.Object{}
	}
	rec["type"] = value.String(typ)
	rec["id"] = value.String(id)
	return patch.Add{Path: patch.P(typ, id), Value: rec}
}

func (OperationBuilder) RemoveRecord(typ, id string) patch.Operation {
	return patch.Remove{Path: patch.P(typ, id)}
}

func (OperationBuilder) ReplaceAttribute(typ, id, attr string, v value.Value) patch.Operation {
	return patch.Replace{Path: patch.P(typ, id, "attributes", attr), Value: v}
}

func (OperationBuilder) AddToHasMany(typ, id, rel, relatedID string) patch.Operation {
	return patch.Add{
		Path:  patch.P(typ, id, "relationships", rel, patch.AppendSegment),
		Value: value.String(relatedID),
	}
}

func (OperationBuilder) RemoveFromHasMany(typ, id, rel string, index int) patch.Operation {
	return patch.Remove{Path: patch.P(typ, id, "relationships", rel, segment(index))}
}

// segment renders an array index; a negative index addresses the last
// element.
func segment(index int) string {
	if index < 0 {
		return patch.AppendSegment
	}
	return strconv.Itoa(index)
}
