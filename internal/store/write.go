package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/matchfund/internal/ir"
)

// ErrSeqConflict is returned when a different call already holds the seq.
var ErrSeqConflict = errors.New("seq already recorded by another call")

// Snapshot is the controller state and token balances after a committed call.
// State and Balances are opaque JSON owned by the engine.
type Snapshot struct {
	Seq      int64
	CallID   string
	State    []byte
	Balances []byte
	Hash     string
}

// Record is everything one call produced. Snapshot is nil for rejected calls.
type Record struct {
	Call          ir.Call
	Outcome       ir.Outcome
	Notifications []ir.NotificationRecord
	Snapshot      *Snapshot
}

// AppendCall writes a record in a single transaction.
//
// Writing the same record twice is a no-op: the call insert uses
// ON CONFLICT(id) DO NOTHING and the rest of the record is skipped when the
// call was already present.
func (s *Store) AppendCall(ctx context.Context, rec Record) error {
	if rec.Outcome.CallID != rec.Call.ID {
		return fmt.Errorf("append call: outcome references %s, call is %s", rec.Outcome.CallID, rec.Call.ID)
	}

	argsJSON, err := marshalObject("args", rec.Call.Args)
	if err != nil {
		return fmt.Errorf("append call: %w", err)
	}
	resultJSON, err := marshalObject("result", rec.Outcome.Result)
	if err != nil {
		return fmt.Errorf("append call: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append call: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO calls
		(id, flow_token, op, caller, args, block, seq, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.Call.ID,
		rec.Call.FlowToken,
		rec.Call.Op,
		rec.Call.Caller,
		argsJSON,
		formatBlock(rec.Call.Block),
		rec.Call.Seq,
		rec.Call.EngineVersion,
		rec.Call.IRVersion,
	)
	if err != nil {
		var existing string
		if qerr := tx.QueryRowContext(ctx, `SELECT id FROM calls WHERE seq = ?`, rec.Call.Seq).Scan(&existing); qerr == nil && existing != rec.Call.ID {
			return fmt.Errorf("append call %s at seq %d: %w", rec.Call.ID, rec.Call.Seq, ErrSeqConflict)
		}
		return fmt.Errorf("append call: insert call: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append call: rows affected: %w", err)
	}
	if inserted == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO outcomes
		(id, call_id, outcome_case, code, message, result, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Outcome.ID,
		rec.Outcome.CallID,
		rec.Outcome.Case,
		rec.Outcome.Code,
		rec.Outcome.Message,
		resultJSON,
		rec.Outcome.Seq,
	); err != nil {
		return fmt.Errorf("append call: insert outcome: %w", err)
	}

	for _, n := range rec.Notifications {
		if err := insertNotification(ctx, tx, n); err != nil {
			return fmt.Errorf("append call: %w", err)
		}
	}

	if rec.Snapshot != nil {
		snap := rec.Snapshot
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (seq, call_id, state, balances, state_hash)
			VALUES (?, ?, ?, ?, ?)
		`, snap.Seq, snap.CallID, string(snap.State), string(snap.Balances), snap.Hash); err != nil {
			return fmt.Errorf("append call: insert snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append call: commit: %w", err)
	}
	return nil
}

func insertNotification(ctx context.Context, tx *sql.Tx, n ir.NotificationRecord) error {
	attrsJSON, err := marshalObject("attrs", n.Attrs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications
		(id, call_id, idx, kind, round, block, attrs, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID,
		n.CallID,
		n.Index,
		n.Kind,
		n.Round,
		formatBlock(n.Block),
		attrsJSON,
		n.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert notification %s: %w", n.Kind, err)
	}
	return nil
}

// SetMeta stores value under key, replacing any previous value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

// SetLedgerHeight persists the ledger height the CLI's clock resumes from.
func (s *Store) SetLedgerHeight(ctx context.Context, height uint64) error {
	return s.SetMeta(ctx, MetaLedgerHeight, formatBlock(height))
}
