package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: end_round_at_deadline
description: "A round ends once its deadline is reached"
flow_token: flow-cli-test
deployment:
  core: "0x0000000000000000000000000000000000000100"
  owner: "0x0000000000000000000000000000000000000201"
  coordinator: "0x0000000000000000000000000000000000000202"
  token: "0x0000000000000000000000000000000000000300"
  round_duration: 5
steps:
  - op: end-round
    caller: "@coordinator"
    expect:
      case: InvalidEndRoundConditions
  - advance: 5
  - op: end-round
    caller: "@coordinator"
    expect:
      case: Success
      result:
        round: "@round1"
        deadline: 10
assertions:
  - type: notification_count
    kind: RoundStarted
    count: 2
`

const failingScenario = `name: wrong_expectation
description: "Expects a round to end before its deadline"
deployment:
  core: "0x0000000000000000000000000000000000000100"
  owner: "0x0000000000000000000000000000000000000201"
  coordinator: "0x0000000000000000000000000000000000000202"
  token: "0x0000000000000000000000000000000000000300"
  round_duration: 5
steps:
  - op: end-round
    caller: "@coordinator"
`

// scenarioDir writes files into <tmp>/scenarios and returns that directory.
func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	dir := scenarioDir(t, nil)

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = runTestCommand(t, "json", dir)
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, float64(0), resp.Data.(map[string]any)["total"])
}

func TestTestCommandPassing(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"end_round.yaml": passingScenario})

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ end_round_at_deadline\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFailing(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"end_round.yaml": passingScenario,
		"wrong.yaml":     failingScenario,
	})

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_expectation")
	assert.Contains(t, out, `expected case "Success", got "InvalidEndRoundConditions"`)
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandFailingJSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"wrong.yaml": failingScenario})

	out, err := runTestCommand(t, "json", dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "wrong_expectation", resp.Data.Scenarios[0].Name)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"broken.yaml": "name: broken\nbogus: true\n"})

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"end_round.yaml": passingScenario,
		"wrong.yaml":     failingScenario,
	})

	out, err := runTestCommand(t, "text", dir, "--filter", "end_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
	assert.NotContains(t, out, "wrong_expectation")

	_, err = runTestCommand(t, "text", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandSingleFile(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"end_round.yaml": passingScenario,
		"wrong.yaml":     failingScenario,
	})

	out, err := runTestCommand(t, "text", filepath.Join(dir, "end_round.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandGoldenUpdate(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"end_round.yaml": passingScenario})
	goldenPath := filepath.Join(filepath.Dir(dir), "golden", "end_round_at_deadline.golden")

	out, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ end_round_at_deadline (golden)")

	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"flow_token":"flow-cli-test"`)
	assert.Contains(t, string(data), `"scenario_name":"end_round_at_deadline"`)

	out, err = runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ end_round_at_deadline (golden)")

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}"), 0o644))
	out, err = runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandRepositoryScenarios(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ fresh_deploy (golden)")
	assert.Contains(t, out, "0 failed")
}
