// Package round implements the matching-funds round coordinator.
//
// A Controller is the custodial core of one matching-funds program. It owns:
//
//   - the role registry (owner, coordinator, witness)
//   - the round ledger (current and previous round handles, per-round
//     computation identifiers)
//   - the end-round policy that deploys new round instances
//   - the finalization state machine that decides whether matching funds
//     are released, redone, or refused
//
// Every operation takes the authenticated caller first, runs under one mutex,
// and either commits all of its changes or none of them. Successful
// operations return the notifications they emitted; failures wrap one of the
// registered errors in errors.go.
//
// The Controller never reads wall-clock time. Deadlines are expressed in
// ledger-clock units supplied by a chain.LedgerClock.
package round
