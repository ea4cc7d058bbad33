package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchsync/internal/store"
)

func TestReplay_Text(t *testing.T) {
	db := journaledDatabase(t)

	out, err := executeCommand(t, "replay", "--db", db, "--source", "backup")
	require.NoError(t, err)
	assert.Contains(t, out, "backup: 2 transform(s)")
	assert.Contains(t, out, `{"planets":{"earth":{"name":"Terra"}}}`)
}

func TestReplay_JSON(t *testing.T) {
	db := journaledDatabase(t)

	out, err := executeCommand(t, "--format", "json", "replay", "--db", db, "--source", "memory")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Source   string         `json:"source"`
			Document map[string]any `json:"document"`
			Log      []string       `json:"log"`
			Undone   []string       `json:"undone"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory", resp.Data.Source)
	assert.Equal(t, []string{"t-1", "t-2"}, resp.Data.Log)
	assert.Empty(t, resp.Data.Undone)
	assert.Equal(t,
		map[string]any{"planets": map[string]any{"earth": map[string]any{"name": "Terra"}}},
		resp.Data.Document)
}

func TestReplay_RewindTo(t *testing.T) {
	db := journaledDatabase(t)

	out, err := executeCommand(t, "replay", "--db", db, "--source", "backup", "--to", "t-1")
	require.NoError(t, err)
	assert.Contains(t, out, "backup: 1 transform(s)")
	assert.Contains(t, out, "rewound: t-3")
	assert.Contains(t, out, `{"planets":{"earth":{"name":"Earth"}}}`)
}

func TestReplay_RewindUnknownTransform(t *testing.T) {
	db := journaledDatabase(t)

	_, err := executeCommand(t, "replay", "--db", db, "--source", "backup", "--to", "t-99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "not journaled")
}

func TestReplay_ChecksumMismatch(t *testing.T) {
	db := journaledDatabase(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE transforms SET operations = ? WHERE source = ? AND id = ?`,
		`[{"op":"add","path":"/tampered","value":true}]`, "backup", "t-3")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := executeCommand(t, "replay", "--db", db, "--source", "backup")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrChecksumMismatch)
	assert.Contains(t, out, "journal checksum mismatch")
}

func TestReplay_RequiresSourceFlag(t *testing.T) {
	db := journaledDatabase(t)

	_, err := executeCommand(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source")
}
