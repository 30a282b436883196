// Package chain models the ledger-side collaborators of the round core.
//
// None of these types know anything about rounds, roles or flags. They are the
// interface boundary the core talks to:
//
//   - Address: a 20-byte identity. The zero address is the null identity.
//   - LedgerClock: a monotonic, non-decreasing block height.
//   - Token / TokenResolver: a funding token the core can query and move.
//   - RoundFactory: deploys a new round instance and returns its handle.
//
// The in-memory implementations (ManualClock, MemoryLedger, CreateFactory) are
// what the engine, CLI and harness run against. Their state can be exported and
// restored so a persisted snapshot reproduces the exact ledger view.
package chain
