package engine

// # Replay
//
// The log is the source of truth. Replay re-executes every recorded call
// against a fresh machine, with the seq, block and caller the call was
// recorded with, and checks that it produces the same content-addressed
// outcome and notification IDs. Execute and Replay share machine.run and
// record, so there is no separate replay code path to drift.
//
// Determinism rests on three things:
//   - seqs come from the logical clock, never from wall time
//   - ledger height is an input recorded on each call
//   - round handles come from a FactoryFunc of the rounds deployed so far

import (
	"context"
	"fmt"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
	"github.com/roach88/matchfund/internal/store"
)

// Mismatch is one divergence between the log and its re-execution.
type Mismatch struct {
	Seq    int64
	CallID string
	Field  string
	Want   string
	Got    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("seq %d call %s: %s: want %s, got %s", m.Seq, m.CallID, m.Field, m.Want, m.Got)
}

// ReplayReport summarizes a replay.
type ReplayReport struct {
	Calls         int
	Notifications int
	StateHash     string // Hash of the re-executed final state, empty if never deployed
	Mismatches    []Mismatch
}

// OK reports whether the replay reproduced the log exactly.
func (r ReplayReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Replay re-executes the log in s. It never writes to s.
// Options select the factory and logger, which must match the ones the log
// was recorded with.
func Replay(ctx context.Context, s *store.Store, opts ...Option) (ReplayReport, error) {
	cfg := newEngine(s, opts)
	m := newMachine(0, cfg.factory, cfg.logger)

	entries, err := s.ReadHistory(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	report := ReplayReport{Mismatches: []Mismatch{}}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Calls++
		report.Notifications += len(entry.Notifications)

		mm := replayCall(m, entry)
		report.Mismatches = append(report.Mismatches, mm...)
		if len(mm) > 0 && mm[0].Field == "call" {
			// The machine cannot follow a call it could not run
			break
		}
	}

	if m.deployed() {
		snap, err := m.snapshot(0, "")
		if err != nil {
			return report, fmt.Errorf("replay: %w", err)
		}
		report.StateHash = snap.Hash

		stored, ok, err := s.LatestSnapshot(ctx)
		if err != nil {
			return report, fmt.Errorf("replay: %w", err)
		}
		if ok && stored.Hash != snap.Hash {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Seq:    stored.Seq,
				CallID: stored.CallID,
				Field:  "state_hash",
				Want:   stored.Hash,
				Got:    snap.Hash,
			})
		}
	}
	return report, nil
}

// replayCall re-executes one entry. A mismatch with Field "call" means the
// call itself could not be run.
func replayCall(m *machine, entry store.Entry) []Mismatch {
	call := entry.Call
	fail := func(field, want, got string) []Mismatch {
		return []Mismatch{{Seq: call.Seq, CallID: call.ID, Field: field, Want: want, Got: got}}
	}

	if err := ir.CheckVersion(call.IRVersion); err != nil {
		return fail("ir_version", ir.IRVersion, call.IRVersion)
	}
	id, err := ir.CallID(call.FlowToken, call.Op, call.Caller, call.Args, call.Block, call.Seq)
	if err != nil {
		return fail("call", "hashable call", err.Error())
	}
	if id != call.ID {
		return fail("call", call.ID, id)
	}
	spec, ok := ops[call.Op]
	if !ok {
		return fail("call", "known op", call.Op)
	}
	if (call.Op == OpDeploy) == m.deployed() {
		return fail("call", "deploy exactly once, first", fmt.Sprintf("%s with deployed=%t", call.Op, m.deployed()))
	}
	caller, err := chain.ParseAddress(call.Caller)
	if err != nil {
		return fail("call", "hex caller", call.Caller)
	}
	if err := m.height.Set(call.Block); err != nil {
		return fail("call", "non-decreasing block", fmt.Sprintf("%d after %d", call.Block, m.height.BlockNumber()))
	}

	result, notes, opErr := m.run(spec, caller, call.Args)
	rec, err := record(call, result, notes, opErr)
	if err != nil {
		return fail("call", "recordable outcome", err.Error())
	}

	var out []Mismatch
	if rec.Outcome.ID != entry.Outcome.ID {
		out = append(out, Mismatch{
			Seq:    call.Seq,
			CallID: call.ID,
			Field:  "outcome",
			Want:   fmt.Sprintf("%s (%s)", entry.Outcome.Case, entry.Outcome.ID),
			Got:    fmt.Sprintf("%s (%s)", rec.Outcome.Case, rec.Outcome.ID),
		})
	}
	if len(rec.Notifications) != len(entry.Notifications) {
		out = append(out, Mismatch{
			Seq:    call.Seq,
			CallID: call.ID,
			Field:  "notifications",
			Want:   fmt.Sprintf("%d", len(entry.Notifications)),
			Got:    fmt.Sprintf("%d", len(rec.Notifications)),
		})
		return out
	}
	for i, n := range rec.Notifications {
		if n.ID != entry.Notifications[i].ID {
			out = append(out, Mismatch{
				Seq:    n.Seq,
				CallID: call.ID,
				Field:  fmt.Sprintf("notification[%d]", i),
				Want:   entry.Notifications[i].Kind,
				Got:    n.Kind,
			})
		}
	}
	return out
}
