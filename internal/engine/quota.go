package engine

import "fmt"

// DefaultMaxCallsPerFlow bounds how many calls one flow token may issue.
// Scenario and CLI flows issue a handful; a runaway client hits this first.
const DefaultMaxCallsPerFlow = 10000

// QuotaEnforcer counts calls per flow token.
// Not safe for concurrent use; owned by the engine's writer.
type QuotaEnforcer struct {
	maxCalls int
	calls    map[string]int
}

// NewQuotaEnforcer creates an enforcer allowing maxCalls per flow.
// maxCalls <= 0 disables the quota.
func NewQuotaEnforcer(maxCalls int) *QuotaEnforcer {
	return &QuotaEnforcer{
		maxCalls: maxCalls,
		calls:    make(map[string]int),
	}
}

// Check counts one call for flowToken and fails once the quota is exceeded.
// A rejected call is not counted.
func (q *QuotaEnforcer) Check(flowToken string) error {
	if q.maxCalls <= 0 {
		return nil
	}
	n := q.calls[flowToken] + 1
	if n > q.maxCalls {
		return &CallsExceededError{FlowToken: flowToken, Calls: n, Limit: q.maxCalls}
	}
	q.calls[flowToken] = n
	return nil
}

// Release uncounts one call, for calls that were not recorded.
func (q *QuotaEnforcer) Release(flowToken string) {
	if n := q.calls[flowToken]; n > 1 {
		q.calls[flowToken] = n - 1
	} else {
		delete(q.calls, flowToken)
	}
}

// Calls returns how many calls flowToken has issued.
func (q *QuotaEnforcer) Calls(flowToken string) int {
	return q.calls[flowToken]
}

// MaxCalls returns the per-flow limit.
func (q *QuotaEnforcer) MaxCalls() int {
	return q.maxCalls
}

// CallsExceededError is returned when a flow issues too many calls.
type CallsExceededError struct {
	FlowToken string
	Calls     int
	Limit     int
}

func (e *CallsExceededError) Error() string {
	return fmt.Sprintf("flow %s exceeded max calls quota: %d calls > %d limit",
		e.FlowToken, e.Calls, e.Limit)
}
