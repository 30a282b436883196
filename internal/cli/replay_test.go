package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/matchfund/internal/store"
)

func TestReplayEmptyDatabase(t *testing.T) {
	c := newTestCLI(t)

	out := c.mustRun("replay")
	assert.Contains(t, out, "No calls found in database.")
}

func TestReplayDeterministic(t *testing.T) {
	c := newTestCLI(t)
	c.init()
	c.mustRun("contribute", "25", "--as", aliceHex)
	c.mustRun("advance", "10")
	c.mustRun("end-round", "--as", coordinatorHex)
	_, _, err := c.run("transfer", "--as", outsiderHex)
	require.Error(t, err)

	out := c.mustRun("replay")
	assert.Contains(t, out, "Replay Summary: 5 call(s), 7 notification(s)")
	assert.Contains(t, out, "✓ Log verified deterministic")
}

func TestReplayVerboseShowsStateHash(t *testing.T) {
	c := newTestCLI(t)
	c.init()

	out := c.mustRun("replay", "-v")
	assert.Contains(t, out, "State hash: ")
	assert.Contains(t, out, "Log schema: v2")
}

func TestReplayJSON(t *testing.T) {
	c := newTestCLI(t)
	c.init()

	out, _, err := c.run("--format", "json", "replay")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Calls)
	assert.Equal(t, 6, resp.Data.Notifications)
	assert.True(t, resp.Data.Deterministic)
	assert.NotEmpty(t, resp.Data.StateHash)
	assert.Equal(t, store.SchemaVersion, resp.Data.SchemaVersion)
	assert.Empty(t, resp.Data.Mismatches)
}

func TestReplayWithDifferentFactory(t *testing.T) {
	c := newTestCLI(t)
	c.init()

	// Round handles recorded with the sequential factory cannot be
	// reproduced by the default factory.
	c.opts.Factory = nil
	out, _, err := c.run("replay")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Determinism verification failed")
}

func TestReplayOutputJSONFailure(t *testing.T) {
	c := newTestCLI(t)
	c.init()
	c.opts.Factory = nil

	resp, err := c.json("replay")
	require.Error(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDeterminism, resp.Error.Code)
}
