package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unknownSourceTopology = `
source: memory: {}

connector: mirror: {
	type: "transform"
	from: "memory"
	to:   "backup"
}
`

const blockingLoopTopology = `
source: a: {}
source: b: {}

connector: forward: {
	type:     "transform"
	from:     "a"
	to:       "b"
	blocking: true
}
connector: back: {
	type:     "transform"
	from:     "b"
	to:       "a"
	blocking: true
}
`

func TestValidate_ValidTopology(t *testing.T) {
	path := writeFile(t, t.TempDir(), "topology.cue", mirrorTopology)

	out, err := executeCommand(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Topology valid (2 sources, 1 connectors)")
}

func TestValidate_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "topology.cue", mirrorTopology)

	out, err := executeCommand(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Topology valid")
}

func TestValidate_ValidTopologyJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "topology.cue", mirrorTopology)

	out, err := executeCommand(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Sources)
	assert.Equal(t, 1, resp.Data.Connectors)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidate_UnknownSource(t *testing.T) {
	path := writeFile(t, t.TempDir(), "topology.cue", unknownSourceTopology)

	out, err := executeCommand(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ 1 validation error(s)")
	assert.Contains(t, out, "E202")
	assert.Contains(t, out, `undeclared source "backup"`)
}

func TestValidate_UnknownSourceJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "topology.cue", unknownSourceTopology)

	out, err := executeCommand(t, "--format", "json", "validate", path)
	require.Error(t, err)

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string           `json:"code"`
			Details ValidationResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	require.Len(t, resp.Error.Details.Errors, 1)
	assert.Equal(t, "connector.mirror.to", resp.Error.Details.Errors[0].Field)
}

func TestValidate_BlockingLoopWarns(t *testing.T) {
	path := writeFile(t, t.TempDir(), "topology.cue", blockingLoopTopology)

	out, err := executeCommand(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "⚠ blocking transform connectors loop: a → b → a")
	assert.Contains(t, out, "✓ Topology valid (2 sources, 2 connectors)")
}

func TestValidate_SchemaError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "topology.cue", `
source: memory: {}
connector: mirror: {
	type: "broadcast"
	from: "memory"
	to:   "memory"
}
`)

	out, err := executeCommand(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NotContains(t, out, "✓")
}

func TestValidate_NotFound(t *testing.T) {
	_, err := executeCommand(t, "validate", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "topology not found")
}
