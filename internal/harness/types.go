package harness

import "github.com/roach88/matchfund/internal/ir"

// Trace event types.
const (
	EventCall         = "call"
	EventNotification = "notification"
	EventOutcome      = "outcome"
)

// TraceEvent is one row of the recorded log, in seq order.
// Content hashes are left out so traces stay readable in golden files.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Call fields.
	Op     string      `json:"op,omitempty"`
	Caller string      `json:"caller,omitempty"`
	Args   ir.IRObject `json:"args,omitempty"`

	// Call and notification field.
	Block uint64 `json:"block"`

	// Notification fields.
	Kind  string      `json:"kind,omitempty"`
	Round string      `json:"round,omitempty"`
	Attrs ir.IRObject `json:"attrs,omitempty"`

	// Outcome fields.
	Case   string      `json:"case,omitempty"`
	Code   uint32      `json:"code,omitempty"`
	Result ir.IRObject `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace is the recorded log of the run.
	Trace []TraceEvent `json:"trace"`

	// Errors contains the failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the flat view of the final core state used by final_state.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Notifications returns the notification events of the trace.
func (r *Result) Notifications() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventNotification {
			out = append(out, ev)
		}
	}
	return out
}
