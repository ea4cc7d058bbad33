package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Passes(t *testing.T) {
	path := writeMirrorScenario(t, t.TempDir(), mirrorScenario)

	out, err := executeCommand(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "memory transform")
	assert.Contains(t, out, "backup logged t-3")
	assert.Contains(t, out, "✓ mirror_earth passed")
}

func TestRun_JSON(t *testing.T) {
	path := writeMirrorScenario(t, t.TempDir(), mirrorScenario)

	out, err := executeCommand(t, "--format", "json", "run", path)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Scenario string `json:"scenario"`
			Pass     bool   `json:"pass"`
			Trace    []struct {
				Type        string   `json:"type"`
				Source      string   `json:"source"`
				TransformID string   `json:"transform_id"`
				Ancestry    []string `json:"ancestry"`
			} `json:"trace"`
			State map[string]any `json:"state"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "mirror_earth", resp.Data.Scenario)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t,
		map[string]any{"planets": map[string]any{"earth": map[string]any{"name": "Terra"}}},
		resp.Data.State["backup"])

	var transforms []string
	for _, ev := range resp.Data.Trace {
		if ev.Type == "transform" {
			transforms = append(transforms, ev.Source+":"+ev.TransformID)
		}
	}
	assert.Equal(t, []string{"memory:t-1", "backup:t-1", "memory:t-2", "backup:t-3"}, transforms)
}

func TestRun_FailingAssertion(t *testing.T) {
	failing := strings.Replace(mirrorScenario, "expect: Terra", "expect: Earth", 1)
	path := writeMirrorScenario(t, t.TempDir(), failing)

	out, err := executeCommand(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ mirror_earth failed")
	assert.Contains(t, out, "/planets/earth/name")
}

func TestRun_JournalsToDatabase(t *testing.T) {
	dir := t.TempDir()
	path := writeMirrorScenario(t, dir, mirrorScenario)
	db := filepath.Join(dir, "journal.db")

	_, err := executeCommand(t, "run", path, "--db", db)
	require.NoError(t, err)

	out, err := executeCommand(t, "log", "--db", db, "--source", "backup")
	require.NoError(t, err)
	assert.Contains(t, out, "t-1")
	assert.Contains(t, out, "t-3")
}

func TestRun_MissingScenario(t *testing.T) {
	_, err := executeCommand(t, "run", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRun_RequiresScenarioArg(t *testing.T) {
	_, err := executeCommand(t, "run")
	require.Error(t, err)
}
