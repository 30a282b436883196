package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/matchfund/internal/ir"
)

const testCaller = "0x00000000000000000000000000000000000000a1"

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testRecord builds a committed call at seq with n RoundStarted notifications.
// It uses seq, seq+1..seq+n for notifications and seq+n+1 for the outcome.
func testRecord(t *testing.T, op string, seq int64, block uint64, n int) Record {
	t.Helper()
	call := ir.Call{
		FlowToken:     "flow-1",
		Op:            op,
		Caller:        testCaller,
		Args:          ir.IRObject{"duration": ir.IRString("100")},
		Block:         block,
		Seq:           seq,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	call.ID = ir.MustCallID(call.FlowToken, call.Op, call.Caller, call.Args, call.Block, call.Seq)

	var notes []ir.NotificationRecord
	for i := 0; i < n; i++ {
		rec := ir.NotificationRecord{
			CallID: call.ID,
			Index:  i,
			Kind:   "RoundStarted",
			Round:  "0x0000000000000000000000000000000000001001",
			Block:  block,
			Attrs:  ir.IRObject{"deadline": ir.IRString("100")},
			Seq:    seq + int64(i) + 1,
		}
		id, err := ir.NotificationID(rec.CallID, rec.Index, rec.Kind, rec.Round, rec.Block, rec.Attrs, rec.Seq)
		if err != nil {
			t.Fatalf("NotificationID: %v", err)
		}
		rec.ID = id
		notes = append(notes, rec)
	}

	outcome := ir.Outcome{
		CallID: call.ID,
		Case:   ir.CaseSuccess,
		Result: ir.IRObject{},
		Seq:    seq + int64(n) + 1,
	}
	id, err := ir.OutcomeID(outcome.CallID, outcome.Case, outcome.Code, outcome.Result, outcome.Seq)
	if err != nil {
		t.Fatalf("OutcomeID: %v", err)
	}
	outcome.ID = id

	return Record{
		Call:          call,
		Outcome:       outcome,
		Notifications: notes,
		Snapshot: &Snapshot{
			Seq:      outcome.Seq,
			CallID:   call.ID,
			State:    []byte(`{"current":"0x01"}`),
			Balances: []byte(`{}`),
			Hash:     ir.StateHash([]byte(`{"current":"0x01"}`)),
		},
	}
}

func mustAppend(t *testing.T, s *Store, rec Record) {
	t.Helper()
	if err := s.AppendCall(context.Background(), rec); err != nil {
		t.Fatalf("AppendCall() failed: %v", err)
	}
}
