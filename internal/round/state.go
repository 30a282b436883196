package round

import (
	"slices"

	"github.com/roach88/matchfund/internal/chain"
)

// Flags are the three finalization flags.
// CoordinatorJustChanged dominates: while set, TransferMatchingFunds redoes
// the round regardless of the other two.
type Flags struct {
	NewComputationAttested bool `json:"new_computation_attested"`
	PreviousRoundValid     bool `json:"previous_round_valid"`
	CoordinatorJustChanged bool `json:"coordinator_just_changed"`
}

// Roles holds one address per role. The zero address means vacated.
type Roles struct {
	Owner       chain.Address `json:"owner"`
	Coordinator chain.Address `json:"coordinator"`
	Witness     chain.Address `json:"witness"`
}

// Round is one deployed round instance.
// Identifiers is append-only; the last entry is the round's current identifier.
type Round struct {
	Handle      chain.Address `json:"handle"`
	Token       chain.Address `json:"token"`
	StartBlock  uint64        `json:"start_block"`
	Deadline    uint64        `json:"deadline"`
	Identifiers []string      `json:"identifiers"`
}

// State is the complete mutable state of a Controller.
// Rounds is in deployment order; Current is always the last element once the
// bootstrap round has been deployed.
type State struct {
	Roles    Roles         `json:"roles"`
	Flags    Flags         `json:"flags"`
	Token    chain.Address `json:"token"`
	Duration uint64        `json:"duration"`
	Deadline uint64        `json:"deadline"`
	Current  chain.Address `json:"current"`
	Previous chain.Address `json:"previous"`

	// Interrupted is the round that was current when the pending coordinator
	// change was first made. It and every later round except Current hold the
	// funds a redo forwards. Zero when no redo is pending.
	Interrupted chain.Address `json:"interrupted"`

	// ComputationIdentifier is the most recently attested identifier.
	ComputationIdentifier string `json:"computation_identifier"`

	Rounds []Round `json:"rounds"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Rounds = make([]Round, len(s.Rounds))
	for i, r := range s.Rounds {
		r.Identifiers = slices.Clone(r.Identifiers)
		out.Rounds[i] = r
	}
	return out
}

// round returns the index of handle in Rounds, or -1.
func (s *State) round(handle chain.Address) int {
	if chain.IsZero(handle) {
		return -1
	}
	for i := len(s.Rounds) - 1; i >= 0; i-- {
		if s.Rounds[i].Handle == handle {
			return i
		}
	}
	return -1
}

// Lookup returns the round with the given handle.
func (s State) Lookup(handle chain.Address) (Round, bool) {
	i := s.round(handle)
	if i < 0 {
		return Round{}, false
	}
	r := s.Rounds[i]
	r.Identifiers = slices.Clone(r.Identifiers)
	return r, true
}
