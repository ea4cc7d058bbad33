package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/value"
)

// marshalOperations converts operations to canonical JSON TEXT for storage.
func marshalOperations(ops []patch.Operation) (string, error) {
	data, err := value.MarshalCanonical(patch.OperationsValue(ops))
	if err != nil {
		return "", fmt.Errorf("marshal operations: %w", err)
	}
	return string(data), nil
}

// unmarshalOperations parses operations stored by marshalOperations.
func unmarshalOperations(data string) ([]patch.Operation, error) {
	if data == "" || data == "[]" {
		return []patch.Operation{}, nil
	}
	ops, err := patch.DecodeOperations([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal operations: %w", err)
	}
	return ops, nil
}

// marshalAncestry stores ancestry as a JSON array of ids.
func marshalAncestry(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal ancestry: %w", err)
	}
	return string(data), nil
}

func unmarshalAncestry(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal ancestry: %w", err)
	}
	return ids, nil
}

// checksum digests a transform's identity and operations.
func checksum(id string, ops []patch.Operation) (string, error) {
	return value.Digest(value.DomainTransform, value.Object{
		"id":         value.String(id),
		"operations": patch.OperationsValue(ops),
	})
}
