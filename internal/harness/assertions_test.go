package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/source"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

func planetSource(t *testing.T) *source.Source {
	t.Helper()
	src := source.NewMemory("memory", value.MustParse(`{"planets":{"earth":{"moons":1}}}`),
		source.WithIDGenerator(transform.NewFixedGenerator("t-1")))
	_, err := src.Transform(context.Background(), []patch.Operation{
		patch.Add{Path: patch.MustParsePointer("/planets/mars"), Value: value.Int(2)},
	})
	require.NoError(t, err)
	return src
}

func TestAssertDocument(t *testing.T) {
	src := planetSource(t)

	err := assertDocument(src, Assertion{Path: "/planets/earth", Expect: map[string]any{"moons": 1}})
	assert.NoError(t, err)

	err = assertDocument(src, Assertion{Path: "/planets/mars", Expect: 3})
	require.Error(t, err)
	ae, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertDocument, ae.Type)
	assert.Equal(t, "memory/planets/mars = 3", ae.Expected)
	assert.Equal(t, "2", ae.Actual)

	err = assertDocument(src, Assertion{Path: "/planets/venus", Expect: 0})
	require.Error(t, err)
	assert.Equal(t, "path not found", err.(*AssertionError).Actual)
}

func TestAssertAbsent(t *testing.T) {
	src := planetSource(t)

	assert.NoError(t, assertAbsent(src, Assertion{Path: "/planets/venus"}))

	err := assertAbsent(src, Assertion{Path: "/planets/earth/moons"})
	require.Error(t, err)
	assert.Equal(t, "1", err.(*AssertionError).Actual)
}

func TestAssertLogContains(t *testing.T) {
	src := planetSource(t)

	assert.NoError(t, assertLogContains(src, Assertion{ID: "t-1"}, nil))

	err := assertLogContains(src, Assertion{ID: "t-9"}, nil)
	require.Error(t, err)
	assert.Equal(t, "log is [t-1]", err.(*AssertionError).Actual)
}

func TestAssertLogCount(t *testing.T) {
	src := planetSource(t)

	assert.NoError(t, assertLogCount(src, Assertion{Count: 1}, nil))

	err := assertLogCount(src, Assertion{Count: 0}, nil)
	require.Error(t, err)
	assert.Equal(t, "1 transforms", err.(*AssertionError).Actual)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertLogCount,
		Expected: "2 transforms in backup log",
		Actual:   "1 transforms",
		Trace: []TraceEvent{
			{Type: EventStep, Seq: 1, Source: "memory", Action: ActionTransform},
			{Type: EventTransform, Seq: 2, Source: "memory", TransformID: "t-1"},
			{Type: EventStep, Seq: 3, Source: "memory", Action: ActionTransform, Error: "PATH_NOT_FOUND"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: log_count")
	assert.Contains(t, msg, "Expected: 2 transforms in backup log")
	assert.Contains(t, msg, "Actual: 1 transforms")
	assert.Contains(t, msg, "[1] memory transform\n")
	assert.Contains(t, msg, "[2]   memory logged t-1")
	assert.Contains(t, msg, "[3] memory transform (PATH_NOT_FOUND)")
}

func TestAssertionError_NoTrace(t *testing.T) {
	err := &AssertionError{Type: AssertAbsent, Expected: "x", Actual: "y"}
	assert.NotContains(t, err.Error(), "Full trace")
}
