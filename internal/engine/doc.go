// Package engine serializes every operation on a matching-funds core.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// One goroutine (Run), or one mutex holder (Execute), applies calls in FIFO
// order. This gives:
//   - one total order over calls, notifications and outcomes
//   - a log that replays to the same IDs
//   - no interleaving inside a round operation
//
// Call Flow:
//  1. Submit enqueues a Request; Run dequeues it
//  2. Execute stamps the Call with seq, ledger height and flow token
//  3. The dispatch table (ops.go) runs the round operation
//  4. The call, outcome, notifications and snapshot are appended in one
//     SQLite transaction
//  5. If the append fails, the core is rolled back to before the call
//
// Rejected operations (Unauthorized, InvalidEndRoundConditions, ...) are
// recorded like any other call. Engine failures are RuntimeErrors and are
// never recorded.
//
// Ledger height is an engine input. Advance moves it and persists it in the
// meta table; every call records the height it ran at.
package engine
