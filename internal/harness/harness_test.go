package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/matchfund/internal/ir"
	"github.com/roach88/matchfund/internal/testutil"
)

func mustParse(t *testing.T, body string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(body), "")
	require.NoError(t, err)
	return scenario
}

func TestRun_ExampleScenarios(t *testing.T) {
	paths, err := Discover("testdata/scenarios")
	require.NoError(t, err)

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
			assert.NotEmpty(t, result.Trace)
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := mustParse(t, "name: minimal\ndescription: d\n"+inlineDeployment)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)

	// deploy call, six notifications, outcome
	require.Len(t, result.Trace, 8)
	assert.Equal(t, EventCall, result.Trace[0].Type)
	assert.Equal(t, "deploy", result.Trace[0].Op)
	assert.Equal(t, EventOutcome, result.Trace[7].Type)
	assert.Equal(t, ir.CaseSuccess, result.Trace[7].Case)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}

	assert.Equal(t, testutil.RoundHandle(0).Hex(), result.State["current"])
	assert.Equal(t, 1, result.State["rounds"])
}

func TestRun_MatchingFundsDeposited(t *testing.T) {
	scenario := mustParse(t, "name: funded\ndescription: d\n"+inlineDeployment+`  matching_funds: "500"
`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	var ops []string
	for _, ev := range result.Trace {
		if ev.Type == EventCall {
			ops = append(ops, ev.Op)
		}
	}
	assert.Equal(t, []string{"deploy", "fund"}, ops)
	assert.Equal(t, "500", result.State["matching_funds"])
}

func TestRun_StartBlock(t *testing.T) {
	scenario := mustParse(t, "name: late\ndescription: d\n"+inlineDeployment+`  start_block: 40
`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass)
	assert.Equal(t, uint64(40), result.Trace[0].Block)
	assert.Equal(t, uint64(50), result.State["deadline"])
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/coordinator_replaced.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, scenario.FlowToken, first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, scenario.FlowToken, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_WrongCaseReported(t *testing.T) {
	scenario := mustParse(t, "name: wrong\ndescription: d\n"+inlineDeployment+`
steps:
  - op: end-round
    caller: "@coordinator"
    expect:
      case: Success
`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `steps[0] end-round: expected case "Success", got "InvalidEndRoundConditions"`)
}

func TestRun_StepWithoutExpectMustSucceed(t *testing.T) {
	scenario := mustParse(t, "name: implicit\ndescription: d\n"+inlineDeployment+`
steps:
  - op: set-duration
    caller: "@witness"
    args:
      duration: 5
`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `got "Unauthorized"`)
}

func TestRun_ResultMismatchReported(t *testing.T) {
	scenario := mustParse(t, "name: result\ndescription: d\n"+inlineDeployment+`
steps:
  - advance: 10
  - op: end-round
    caller: "@coordinator"
    expect:
      case: Success
      result:
        round: "@round5"
        deadline: 20
        missing: x
`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `result field "missing" missing`)
	assert.Contains(t, result.Errors[1], `result field "round"`)
}

func TestRun_AssertionFailuresReported(t *testing.T) {
	scenario := mustParse(t, "name: assertions\ndescription: d\n"+inlineDeployment+`
assertions:
  - type: notification_count
    kind: RoundStarted
    count: 2
  - type: notification_contains
    kind: RoundFinalized
  - type: notification_order
    kinds: [RoundStarted, OwnershipTransferred]
  - type: final_state
    expect:
      rounds: 1
      deadline: 11
`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected 2 RoundStarted notifications, got 1")
	assert.Contains(t, result.Errors[1], "no RoundFinalized notification")
	assert.Contains(t, result.Errors[2], "OwnershipTransferred not found after RoundStarted")
	assert.Contains(t, result.Errors[3], "deadline: expected 11, got 10")
}

func TestRun_UnknownActor(t *testing.T) {
	scenario := mustParse(t, "name: nobody\ndescription: d\n"+inlineDeployment+`
steps:
  - op: end-round
    caller: "@nobody"
`)

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown actor "@nobody"`)
}

func TestRun_ClockRegression(t *testing.T) {
	scenario := mustParse(t, "name: backwards\ndescription: d\n"+inlineDeployment+`
steps:
  - advance: 10
  - at_block: 5
`)

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[1]")
}

func TestRun_NotLoaded(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{Name: "raw"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "was not loaded")
}

func TestActors_Lookup(t *testing.T) {
	scenario := mustParse(t, "name: n\ndescription: d\n"+inlineDeployment+`
actors:
  alice: "0x0000000000000000000000000000000000000204"
`)
	people, err := newActors(scenario)
	require.NoError(t, err)

	tests := []struct {
		ref  string
		want string
	}{
		{"@owner", "0x0000000000000000000000000000000000000201"},
		{"owner", "0x0000000000000000000000000000000000000201"},
		{"@alice", "0x0000000000000000000000000000000000000204"},
		{"@round0", "0x0000000000000000000000000000000000001001"},
		{"@round3", "0x0000000000000000000000000000000000001004"},
		{"0x0000000000000000000000000000000000000999", "0x0000000000000000000000000000000000000999"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			addr, err := people.address(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr.Hex())
		})
	}

	_, err = people.address("@round-1")
	assert.Error(t, err)
	_, err = people.address("carol")
	assert.Error(t, err)
}

func TestActors_Value(t *testing.T) {
	people := actors{"alice": testutil.Addr(0x204)}

	tests := []struct {
		name    string
		input   any
		want    ir.IRValue
		wantErr bool
	}{
		{"string", "cid-1", ir.IRString("cid-1"), false},
		{"actor", "@alice", ir.IRString(testutil.Addr(0x204).Hex()), false},
		{"int", 25, ir.IRString("25"), false},
		{"uint64", uint64(18446744073709551615), ir.IRString("18446744073709551615"), false},
		{"bool", true, ir.IRBool(true), false},
		{"whole_float", float64(3), ir.IRString("3"), false},
		{"negative", -1, nil, true},
		{"fraction", 1.5, nil, true},
		{"null", nil, nil, true},
		{"unknown_actor", "@bob", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := people.value(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActors_Match(t *testing.T) {
	alice := testutil.Addr(0xA4)
	people := actors{"alice": alice}

	assert.True(t, people.match("@alice", ir.IRString(alice.Hex())))
	assert.True(t, people.match("0x00000000000000000000000000000000000000a4", ir.IRString(alice.Hex())))
	assert.False(t, people.match("@bob", ir.IRString(alice.Hex())))
	assert.True(t, people.match(1000, ir.IRString("1000")))
	assert.True(t, people.match(true, ir.IRBool(true)))
	assert.False(t, people.match(false, ir.IRBool(true)))
	assert.False(t, people.match("cid-1", ir.IRString("cid-2")))
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("test error")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"test error"}, result.Errors)
}
