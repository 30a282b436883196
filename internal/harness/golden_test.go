package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/matchfund/internal/ir"
)

// Regenerate with: go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_FreshDeploy(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/fresh_deploy.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalTrace_FieldsPerType(t *testing.T) {
	trace := []TraceEvent{
		{Type: EventCall, Seq: 1, Op: "end-round", Caller: "0xA1", Args: ir.IRObject{}, Block: 10},
		{Type: EventNotification, Seq: 2, Kind: "RoundStarted", Round: "0x1001", Block: 10,
			Attrs: ir.IRObject{"deadline": ir.IRString("20")}},
		{Type: EventOutcome, Seq: 3, Case: "Success"},
		{Type: EventOutcome, Seq: 5, Case: "Unauthorized", Code: 2},
	}

	data, err := MarshalTrace("fields", "", trace)
	require.NoError(t, err)

	want := `{"scenario_name":"fields","trace":[` +
		`{"args":{},"block":10,"caller":"0xA1","op":"end-round","seq":1,"type":"call"},` +
		`{"attrs":{"deadline":"20"},"block":10,"kind":"RoundStarted","round":"0x1001","seq":2,"type":"notification"},` +
		`{"case":"Success","result":{},"seq":3,"type":"outcome"},` +
		`{"case":"Unauthorized","code":2,"result":{},"seq":5,"type":"outcome"}]}`
	assert.Equal(t, want, string(data))
}

func TestCanonicalJSONDeterminism(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/finalize_previous_round.yaml")
	require.NoError(t, err)

	var outputs []string
	for i := 0; i < 3; i++ {
		result, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		data, err := MarshalTrace(scenario.Name, scenario.FlowToken, result.Trace)
		require.NoError(t, err)
		outputs = append(outputs, string(data))
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[1], outputs[2])
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/fresh_deploy.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, scenario, result))
}
