package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a failure of the engine itself, as opposed to a rejected
// round operation. Rejected operations are recorded as outcomes; a
// RuntimeError means nothing was recorded for the request.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// FlowToken identifies the affected flow.
	FlowToken string

	// Op is the requested operation.
	Op string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownOp indicates the operation name is not in the dispatch table.
	ErrCodeUnknownOp RuntimeErrorCode = "UNKNOWN_OP"

	// ErrCodeNotDeployed indicates an operation arrived before a successful deploy.
	ErrCodeNotDeployed RuntimeErrorCode = "NOT_DEPLOYED"

	// ErrCodeAlreadyDeployed indicates a second deploy.
	ErrCodeAlreadyDeployed RuntimeErrorCode = "ALREADY_DEPLOYED"

	// ErrCodeQuotaExceeded indicates the flow exceeded its call quota.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeStoreFailure indicates the record could not be persisted.
	// In-memory state has been rolled back to before the call.
	ErrCodeStoreFailure RuntimeErrorCode = "STORE_FAILURE"

	// ErrCodeStopped indicates the engine stopped before serving the request.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg += fmt.Sprintf(" (op=%s)", e.Op)
	}
	if e.FlowToken != "" {
		msg += fmt.Sprintf(" (flow=%s)", e.FlowToken)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownOpError reports whether err is an unknown-operation error.
func IsUnknownOpError(err error) bool { return hasCode(err, ErrCodeUnknownOp) }

// IsNotDeployedError reports whether err is a not-deployed error.
func IsNotDeployedError(err error) bool { return hasCode(err, ErrCodeNotDeployed) }

// IsAlreadyDeployedError reports whether err is an already-deployed error.
func IsAlreadyDeployedError(err error) bool { return hasCode(err, ErrCodeAlreadyDeployed) }

// IsQuotaError reports whether err is a quota error, either a RuntimeError
// or a bare CallsExceededError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var ce *CallsExceededError
	return errors.As(err, &ce)
}

// IsStoreError reports whether err is a store failure.
func IsStoreError(err error) bool { return hasCode(err, ErrCodeStoreFailure) }

// IsStoppedError reports whether err means the engine stopped.
func IsStoppedError(err error) bool { return hasCode(err, ErrCodeStopped) }

// NewUnknownOpError creates a RuntimeError for an unknown operation.
func NewUnknownOpError(flowToken, op string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeUnknownOp,
		Message:   fmt.Sprintf("unknown operation %q", op),
		FlowToken: flowToken,
		Op:        op,
	}
}

// NewNotDeployedError creates a RuntimeError for an operation on an empty log.
func NewNotDeployedError(flowToken, op string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeNotDeployed,
		Message:   "no core deployed, run deploy first",
		FlowToken: flowToken,
		Op:        op,
	}
}

// NewAlreadyDeployedError creates a RuntimeError for a second deploy.
func NewAlreadyDeployedError(flowToken, core string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeAlreadyDeployed,
		Message:   "core already deployed",
		FlowToken: flowToken,
		Op:        OpDeploy,
		Details:   map[string]string{"core": core},
	}
}

// NewQuotaError wraps a CallsExceededError.
func NewQuotaError(flowToken, op string, calls, limit int) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeQuotaExceeded,
		Message:   fmt.Sprintf("flow exceeded max calls (%d > %d)", calls, limit),
		FlowToken: flowToken,
		Op:        op,
		Details: map[string]string{
			"calls":     fmt.Sprintf("%d", calls),
			"max_calls": fmt.Sprintf("%d", limit),
		},
		Err: &CallsExceededError{FlowToken: flowToken, Calls: calls, Limit: limit},
	}
}

// NewStoreError creates a RuntimeError for a failed append.
func NewStoreError(flowToken, op, callID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeStoreFailure,
		Message:   "record not persisted, call rolled back",
		FlowToken: flowToken,
		Op:        op,
		Details:   map[string]string{"call_id": callID},
		Err:       err,
	}
}

var errStopped = &RuntimeError{Code: ErrCodeStopped, Message: "engine stopped"}
