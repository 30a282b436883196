package round

import (
	"strconv"

	"github.com/holiman/uint256"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
)

// Kind names a notification emitted by the Controller.
type Kind string

const (
	KindOwnershipTransferred     Kind = "OwnershipTransferred"
	KindTokenChanged             Kind = "TokenChanged"
	KindRoundDurationChanged     Kind = "RoundDurationChanged"
	KindCoordinatorTransferred   Kind = "CoordinatorTransferred"
	KindWitnessTransferred       Kind = "WitnessTransferred"
	KindRoundStarted             Kind = "RoundStarted"
	KindComputationIdentifierSet Kind = "ComputationIdentifierSet"
	KindPreviousRoundValiditySet Kind = "PreviousRoundValiditySet"
	KindRedoRequired             Kind = "RedoRequired"
	KindRoundFinalized           Kind = "RoundFinalized"
	KindFinalizedWithRound       Kind = "FinalizedWithRound"
	KindMatchingFundsTransferred Kind = "MatchingFundsTransferred"
)

// Kinds lists every notification kind in declaration order.
var Kinds = []Kind{
	KindOwnershipTransferred,
	KindTokenChanged,
	KindRoundDurationChanged,
	KindCoordinatorTransferred,
	KindWitnessTransferred,
	KindRoundStarted,
	KindComputationIdentifierSet,
	KindPreviousRoundValiditySet,
	KindRedoRequired,
	KindRoundFinalized,
	KindFinalizedWithRound,
	KindMatchingFundsTransferred,
}

// ValidKind reports whether k is a known notification kind.
func ValidKind(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Notification is an observable record of a committed state change.
// Round is the zero address for notifications that are not round-scoped.
type Notification struct {
	Kind  Kind          `json:"kind"`
	Round chain.Address `json:"round"`
	Block uint64        `json:"block"`
	Attrs ir.IRObject   `json:"attrs"`
}

// Payload encodes the notification as an IR object for hashing and storage.
func (n Notification) Payload() ir.IRObject {
	attrs := n.Attrs
	if attrs == nil {
		attrs = ir.IRObject{}
	}
	return ir.IRObject{
		"kind":  ir.IRString(n.Kind),
		"round": addrValue(n.Round),
		"block": u64Value(n.Block),
		"attrs": attrs,
	}
}

// Block numbers, durations and amounts can exceed int64, so they travel as
// decimal strings.
func u64Value(v uint64) ir.IRString {
	return ir.IRString(strconv.FormatUint(v, 10))
}

func amountValue(v *uint256.Int) ir.IRString {
	if v == nil {
		return "0"
	}
	return ir.IRString(v.Dec())
}

func addrValue(a chain.Address) ir.IRString {
	return ir.IRString(a.Hex())
}
