package ir

// Call is one requested operation on the core, as recorded in the log.
type Call struct {
	ID            string   `json:"id"` // Content-addressed
	FlowToken     string   `json:"flow_token"`
	Op            string   `json:"op"`
	Caller        string   `json:"caller"` // Hex address of the authenticated caller
	Args          IRObject `json:"args"`
	Block         uint64   `json:"block"` // Ledger height the call executed at
	Seq           int64    `json:"seq"`   // Logical clock
	EngineVersion string   `json:"engine_version"`
	IRVersion     string   `json:"ir_version"`
}

// Outcome is the result of a Call. Case is "Success" or a round reason.
type Outcome struct {
	ID      string   `json:"id"` // Content-addressed
	CallID  string   `json:"call_id"`
	Case    string   `json:"case"`
	Code    uint32   `json:"code"`
	Message string   `json:"message,omitempty"`
	Result  IRObject `json:"result"`
	Seq     int64    `json:"seq"`
}

// Succeeded reports whether the call committed.
func (o Outcome) Succeeded() bool {
	return o.Case == CaseSuccess
}

// CaseSuccess is the outcome case of a committed call.
const CaseSuccess = "Success"

// NotificationRecord is a persisted notification. Index is its position
// among the notifications emitted by CallID.
type NotificationRecord struct {
	ID     string   `json:"id"` // Content-addressed
	CallID string   `json:"call_id"`
	Index  int      `json:"index"`
	Kind   string   `json:"kind"`
	Round  string   `json:"round"`
	Block  uint64   `json:"block"`
	Attrs  IRObject `json:"attrs"`
	Seq    int64    `json:"seq"`
}
