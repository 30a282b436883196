// Package store provides the SQLite-backed append-only log of a core.
//
// Tables:
//   - calls: every requested operation, stamped with seq and ledger block
//   - outcomes: exactly one per call (UNIQUE call_id)
//   - notifications: what each committed call emitted, in emission order
//   - snapshots: controller state and token balances after each committed call
//   - meta: deployment record and ledger height
//
// A call, its outcome, its notifications and its snapshot are written in one
// transaction by AppendCall, so the log never holds half a call.
//
// All reads order by seq ASC, id COLLATE BINARY ASC so results are identical
// across replays. Args, results and attrs are stored as RFC 8785 canonical JSON.
package store
