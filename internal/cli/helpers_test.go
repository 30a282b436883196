package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/matchfund/internal/testutil"
)

const (
	coreHex        = "0x0000000000000000000000000000000000000100"
	ownerHex       = "0x0000000000000000000000000000000000000201"
	coordinatorHex = "0x0000000000000000000000000000000000000202"
	witnessHex     = "0x0000000000000000000000000000000000000203"
	tokenHex       = "0x0000000000000000000000000000000000000300"
	aliceHex       = "0x0000000000000000000000000000000000000204"
	outsiderHex    = "0x0000000000000000000000000000000000000999"

	round0Hex = "0x0000000000000000000000000000000000001001"
	round1Hex = "0x0000000000000000000000000000000000001002"
)

// testCLI runs commands against one database with deterministic round
// handles and flow tokens.
type testCLI struct {
	t    *testing.T
	opts *RootOptions
	db   string
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	return &testCLI{
		t: t,
		opts: &RootOptions{
			FlowGenerator: testutil.NewFixedFlowGenerator("flow-cli"),
			Factory:       testutil.SequentialFactoryFunc,
		},
		db: filepath.Join(t.TempDir(), "matchfund.db"),
	}
}

// run executes the root command with args and the test database.
func (c *testCLI) run(args ...string) (stdout, stderr string, err error) {
	c.t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := newRootCommand(c.opts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--db", c.db}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// mustRun executes args and requires success.
func (c *testCLI) mustRun(args ...string) string {
	c.t.Helper()
	out, errOut, err := c.run(args...)
	require.NoError(c.t, err, "stdout: %s\nstderr: %s", out, errOut)
	return out
}

// init deploys testdata/deploy.cue.
func (c *testCLI) init() {
	c.t.Helper()
	c.mustRun("init", "--config", filepath.Join("testdata", "deploy.cue"))
}

// json executes args with --format json and decodes the response.
func (c *testCLI) json(args ...string) (CLIResponse, error) {
	c.t.Helper()
	out, _, err := c.run(append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(c.t, json.Unmarshal([]byte(out), &resp), "stdout: %s", out)
	return resp, err
}

// status returns the decoded data of status --format json.
func (c *testCLI) status() map[string]any {
	c.t.Helper()
	resp, err := c.json("status")
	require.NoError(c.t, err)
	return resp.Data.(map[string]any)
}
