package round

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace namespaces the round error codes.
const Codespace = "round"

// Error taxonomy. Every failure of a Controller operation wraps exactly one of
// these, so callers can recover the unmet condition with errors.Is or Reason.
var (
	ErrUnauthorized              = errorsmod.Register(Codespace, 2, "unauthorized")
	ErrInvalidEndRoundConditions = errorsmod.Register(Codespace, 3, "invalid end round conditions")
	ErrNoCoordinator             = errorsmod.Register(Codespace, 4, "no coordinator")
	ErrInvalidTransferConditions = errorsmod.Register(Codespace, 5, "invalid transfer conditions")
	ErrOverflow                  = errorsmod.Register(Codespace, 6, "overflow")
	ErrFundsTransfer             = errorsmod.Register(Codespace, 7, "matching funds transfer failed")
	ErrInvalidArgument           = errorsmod.Register(Codespace, 8, "invalid argument")
	ErrDeployFailed              = errorsmod.Register(Codespace, 9, "round deployment failed")
)

// Reason strings, one per error above. These are the outcome cases recorded
// in the event log and printed by the CLI.
const (
	ReasonSuccess                   = "Success"
	ReasonUnauthorized              = "Unauthorized"
	ReasonInvalidEndRoundConditions = "InvalidEndRoundConditions"
	ReasonNoCoordinator             = "NoCoordinator"
	ReasonInvalidTransferConditions = "InvalidTransferConditions"
	ReasonOverflow                  = "Overflow"
	ReasonFundsTransfer             = "FundsTransferFailed"
	ReasonInvalidArgument           = "InvalidArgument"
	ReasonDeployFailed              = "DeployFailed"
	ReasonInternal                  = "Internal"
)

var reasons = []struct {
	err    *errorsmod.Error
	reason string
}{
	{ErrUnauthorized, ReasonUnauthorized},
	{ErrInvalidEndRoundConditions, ReasonInvalidEndRoundConditions},
	{ErrNoCoordinator, ReasonNoCoordinator},
	{ErrInvalidTransferConditions, ReasonInvalidTransferConditions},
	{ErrOverflow, ReasonOverflow},
	{ErrFundsTransfer, ReasonFundsTransfer},
	{ErrInvalidArgument, ReasonInvalidArgument},
	{ErrDeployFailed, ReasonDeployFailed},
}

// Reason maps err to its reason string.
// Returns ReasonSuccess for nil and ReasonInternal for errors outside the taxonomy.
func Reason(err error) string {
	if err == nil {
		return ReasonSuccess
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}

// Code returns the registered numeric code of err, or 1 for errors outside the taxonomy.
func Code(err error) uint32 {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.err.ABCICode()
		}
	}
	return 1
}

// IsReason reports whether s names an error of the taxonomy.
func IsReason(s string) bool {
	for _, r := range reasons {
		if r.reason == s {
			return true
		}
	}
	return false
}
