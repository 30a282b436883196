package store

import (
	"context"
	"fmt"

	"github.com/roach88/matchfund/internal/ir"
)

// Entry is a recorded call with everything it produced, as read back for
// replay and for the harness trace.
type Entry struct {
	Call          ir.Call
	Outcome       ir.Outcome
	Notifications []ir.NotificationRecord
}

// ReadHistory returns every call with its outcome and notifications, in seq order.
// A call without an outcome means the log is corrupt and is reported as an error.
func (s *Store) ReadHistory(ctx context.Context) ([]Entry, error) {
	calls, err := s.ReadCalls(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	outcomes, err := s.readOutcomesByCall(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	notes, err := s.ReadNotifications(ctx, NotificationFilter{})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	byCall := make(map[string][]ir.NotificationRecord)
	for _, n := range notes {
		byCall[n.CallID] = append(byCall[n.CallID], n)
	}

	entries := make([]Entry, 0, len(calls))
	for _, c := range calls {
		o, ok := outcomes[c.ID]
		if !ok {
			return nil, fmt.Errorf("read history: call %s (seq %d) has no outcome", c.ID, c.Seq)
		}
		n := byCall[c.ID]
		if n == nil {
			n = []ir.NotificationRecord{}
		}
		entries = append(entries, Entry{Call: c, Outcome: o, Notifications: n})
	}
	return entries, nil
}

func (s *Store) readOutcomesByCall(ctx context.Context) (map[string]ir.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+outcomeColumns+`
		FROM outcomes
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ir.Outcome)
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out[o.CallID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}
