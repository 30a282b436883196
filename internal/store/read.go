package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/matchfund/internal/ir"
)

// Meta keys.
const (
	MetaDeployment   = "deployment"
	MetaLedgerHeight = "ledger_height"
)

type scanner interface {
	Scan(dest ...any) error
}

const callColumns = `id, flow_token, op, caller, args, block, seq, engine_version, ir_version`

func scanCall(row scanner) (ir.Call, error) {
	var c ir.Call
	var argsJSON, block string
	if err := row.Scan(&c.ID, &c.FlowToken, &c.Op, &c.Caller, &argsJSON, &block,
		&c.Seq, &c.EngineVersion, &c.IRVersion); err != nil {
		return ir.Call{}, err
	}
	args, err := unmarshalObject("args", argsJSON)
	if err != nil {
		return ir.Call{}, err
	}
	c.Args = args
	if c.Block, err = parseBlock(block); err != nil {
		return ir.Call{}, err
	}
	return c, nil
}

const outcomeColumns = `id, call_id, outcome_case, code, message, result, seq`

func scanOutcome(row scanner) (ir.Outcome, error) {
	var o ir.Outcome
	var resultJSON string
	if err := row.Scan(&o.ID, &o.CallID, &o.Case, &o.Code, &o.Message, &resultJSON, &o.Seq); err != nil {
		return ir.Outcome{}, err
	}
	result, err := unmarshalObject("result", resultJSON)
	if err != nil {
		return ir.Outcome{}, err
	}
	o.Result = result
	return o, nil
}

const notificationColumns = `id, call_id, idx, kind, round, block, attrs, seq`

func scanNotification(row scanner) (ir.NotificationRecord, error) {
	var n ir.NotificationRecord
	var attrsJSON, block string
	if err := row.Scan(&n.ID, &n.CallID, &n.Index, &n.Kind, &n.Round, &block, &attrsJSON, &n.Seq); err != nil {
		return ir.NotificationRecord{}, err
	}
	attrs, err := unmarshalObject("attrs", attrsJSON)
	if err != nil {
		return ir.NotificationRecord{}, err
	}
	n.Attrs = attrs
	if n.Block, err = parseBlock(block); err != nil {
		return ir.NotificationRecord{}, err
	}
	return n, nil
}

// ReadCall retrieves a call by ID. Returns sql.ErrNoRows if not found.
func (s *Store) ReadCall(ctx context.Context, id string) (ir.Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = ?`, id)
	return scanCall(row)
}

// ReadOutcome retrieves the outcome of a call. Returns sql.ErrNoRows if not found.
func (s *Store) ReadOutcome(ctx context.Context, callID string) (ir.Outcome, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE call_id = ?`, callID)
	return scanOutcome(row)
}

// ReadCalls returns every call in seq order.
// Returns an empty slice (not nil) for an empty log.
func (s *Store) ReadCalls(ctx context.Context) ([]ir.Call, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+callColumns+`
		FROM calls
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []ir.Call{}
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// NotificationFilter narrows ReadNotifications. Zero values match everything.
type NotificationFilter struct {
	Kind     string
	Round    string // Hex address, compared case-insensitively
	AfterSeq int64
	Limit    int
}

// ReadNotifications returns notifications in emission order.
func (s *Store) ReadNotifications(ctx context.Context, f NotificationFilter) ([]ir.NotificationRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Round != "" {
		where = append(where, "lower(round) = lower(?)")
		args = append(args, f.Round)
	}
	if f.AfterSeq > 0 {
		where = append(where, "seq > ?")
		args = append(args, f.AfterSeq)
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC, id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []ir.NotificationRecord{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// LatestSnapshot returns the snapshot with the highest seq.
// ok is false when no call has committed yet.
func (s *Store) LatestSnapshot(ctx context.Context) (snap Snapshot, ok bool, err error) {
	var state, balances string
	err = s.db.QueryRowContext(ctx, `
		SELECT seq, call_id, state, balances, state_hash
		FROM snapshots
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&snap.Seq, &snap.CallID, &state, &balances, &snap.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.State = []byte(state)
	snap.Balances = []byte(balances)
	return snap, true, nil
}

// LastSeq returns the highest seq used by any record, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM calls
			UNION ALL SELECT seq FROM outcomes
			UNION ALL SELECT seq FROM notifications
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// GetMeta returns the value stored under key.
func (s *Store) GetMeta(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %q: %w", key, err)
	}
	return value, true, nil
}

// LedgerHeight returns the persisted ledger height, 0 if never set.
func (s *Store) LedgerHeight(ctx context.Context) (uint64, error) {
	v, ok, err := s.GetMeta(ctx, MetaLedgerHeight)
	if err != nil || !ok {
		return 0, err
	}
	return parseBlock(v)
}
