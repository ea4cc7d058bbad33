package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journaledDatabase runs the mirror scenario with a journal and returns
// the database path.
func journaledDatabase(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := writeMirrorScenario(t, dir, mirrorScenario)
	db := filepath.Join(dir, "journal.db")
	_, err := executeCommand(t, "run", path, "--db", db)
	require.NoError(t, err)
	return db
}

func TestLog_Text(t *testing.T) {
	db := journaledDatabase(t)

	out, err := executeCommand(t, "log", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "memory:\n")
	assert.Contains(t, out, "backup:\n")
	assert.Contains(t, out, "(from t-2)")
}

func TestLog_JSONSingleSource(t *testing.T) {
	db := journaledDatabase(t)

	out, err := executeCommand(t, "--format", "json", "log", "--db", db, "--source", "backup")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Sources []string `json:"sources"`
			Entries []struct {
				Source     string           `json:"source"`
				Seq        int64            `json:"seq"`
				ID         string           `json:"id"`
				Ancestry   []string         `json:"ancestry"`
				Operations []map[string]any `json:"operations"`
				Inverse    []map[string]any `json:"inverse"`
				Checksum   string           `json:"checksum"`
			} `json:"entries"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"backup"}, resp.Data.Sources)
	require.Len(t, resp.Data.Entries, 2)

	first, second := resp.Data.Entries[0], resp.Data.Entries[1]
	assert.Equal(t, "t-1", first.ID)
	assert.Empty(t, first.Ancestry)
	assert.Equal(t, "t-3", second.ID)
	assert.Equal(t, []string{"t-2"}, second.Ancestry)
	assert.Less(t, first.Seq, second.Seq)

	require.Len(t, second.Inverse, 1)
	assert.Equal(t, "replace", second.Inverse[0]["op"])
	assert.Equal(t, "Earth", second.Inverse[0]["value"])
	assert.NotEmpty(t, second.Checksum)
}

func TestLog_UnknownSourceIsEmpty(t *testing.T) {
	db := journaledDatabase(t)

	out, err := executeCommand(t, "log", "--db", db, "--source", "nowhere")
	require.NoError(t, err)
	assert.Contains(t, out, "No transforms journaled.")
}

func TestLog_MissingDatabase(t *testing.T) {
	_, err := executeCommand(t, "log", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestLog_RequiresDatabaseFlag(t *testing.T) {
	_, err := executeCommand(t, "log")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}
