// Package harness runs YAML scenarios against a real engine.
//
// A scenario deploys one core, drives it through a sequence of operations
// and asserts on the recorded log and the final state. Every run ends by
// replaying the log, so each scenario also checks determinism.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	flow_token: optional-fixed-token
//	config: deploy.cue            # or an inline deployment:
//	deployment:
//	  core: "0x..."
//	  owner: "0x..."
//	  coordinator: "0x..."
//	  witness: "0x..."
//	  token: "0x..."
//	  round_duration: 10
//	  matching_funds: "1000"
//	actors:
//	  alice: "0x..."
//	steps:
//	  - op: contribute
//	    caller: "@alice"
//	    args: { amount: 25 }
//	  - advance: 10
//	  - op: end-round
//	    caller: "@coordinator"
//	    expect:
//	      case: Success
//	      result: { round: "@round1" }
//	assertions:
//	  - type: notification_contains
//	    kind: RoundStarted
//	    round: "@round1"
//	  - type: final_state
//	    expect: { previous: "@round0" }
//	    balances: { "@core": "1000" }
//
// The deployment roles are actors named core, owner, coordinator, witness
// and token. "@roundN" names the N-th deployed round; the round started by
// deploy is round0. A step without expect must succeed.
//
// # Assertion Types
//
//   - notification_contains: a notification of the kind exists, optionally
//     for a round and with matching attrs
//   - notification_order: kinds appear in this relative order
//   - notification_count: a kind appears exactly N times
//   - final_state: fields of the flat state view and token balances
//
// # Deterministic Testing
//
// Scenarios run on a private in-memory SQLite log with a fixed flow token
// and a sequential round factory, so round handles and seqs are identical
// across runs and traces can be compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/finalize.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
