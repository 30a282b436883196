package round

import (
	"math"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
)

// EndRound ends the current round and deploys the next one. Anyone may call it.
//
// It fails with ErrInvalidEndRoundConditions while the ledger clock is before
// the deadline, the coordinator has not just changed, and a coordinator is set.
func (c *Controller) EndRound(caller chain.Address) ([]Notification, error) {
	return c.apply("end-round", func(tx *txn) error {
		return tx.endRound()
	})
}

// SetToken changes the funding token. Owner-only.
// Rounds already deployed keep the token they were bound to.
func (c *Controller) SetToken(caller, token chain.Address) ([]Notification, error) {
	return c.apply("set-token", func(tx *txn) error {
		if err := tx.requireOwner(caller, "set the funding token"); err != nil {
			return err
		}
		if chain.IsZero(token) {
			return ErrInvalidArgument.Wrap("funding token is the zero address")
		}
		prev := tx.state.Token
		tx.state.Token = token
		tx.emit(KindTokenChanged, chain.ZeroAddress, ir.IRObject{
			"previous_token": addrValue(prev),
			"token":          addrValue(token),
		})
		return nil
	})
}

// SetRoundDuration changes the duration of rounds started afterwards. Owner-only.
// A zero duration lets every round end immediately.
func (c *Controller) SetRoundDuration(caller chain.Address, duration uint64) ([]Notification, error) {
	return c.apply("set-duration", func(tx *txn) error {
		if err := tx.requireOwner(caller, "set the round duration"); err != nil {
			return err
		}
		prev := tx.state.Duration
		tx.state.Duration = duration
		tx.emit(KindRoundDurationChanged, chain.ZeroAddress, ir.IRObject{
			"previous_duration": u64Value(prev),
			"duration":          u64Value(duration),
		})
		return nil
	})
}

// CanEndRound reports whether EndRound would pass its policy check at the
// current ledger height.
func (c *Controller) CanEndRound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return endRoundAllowed(&c.state, c.deps.Clock.BlockNumber())
}

func endRoundAllowed(st *State, now uint64) bool {
	return now >= st.Deadline ||
		st.Flags.CoordinatorJustChanged ||
		chain.IsZero(st.Roles.Coordinator)
}

// endRound checks the policy, computes the next deadline and deploys the next
// round. The deployment is the only external effect and happens last.
func (tx *txn) endRound() error {
	st := &tx.state
	now := tx.block
	if !endRoundAllowed(st, now) {
		return ErrInvalidEndRoundConditions.Wrapf(
			"block %d is before deadline %d and coordinator %s has not changed",
			now, st.Deadline, st.Roles.Coordinator.Hex())
	}
	if st.Duration > math.MaxUint64-now {
		return ErrOverflow.Wrapf("deadline %d + %d exceeds the ledger clock range", now, st.Duration)
	}
	deadline := now + st.Duration

	handle, err := tx.c.deps.Factory.Deploy(tx.c.core, st.Token)
	if err != nil {
		return ErrDeployFailed.Wrapf("deploy round for token %s: %s", st.Token.Hex(), err)
	}

	prev := st.Current
	st.Previous = prev
	st.Current = handle
	st.Deadline = deadline
	st.Rounds = append(st.Rounds, Round{
		Handle:     handle,
		Token:      st.Token,
		StartBlock: now,
		Deadline:   deadline,
	})
	tx.emit(KindRoundStarted, handle, ir.IRObject{
		"round":          addrValue(handle),
		"previous_round": addrValue(prev),
		"deadline":       u64Value(deadline),
		"token":          addrValue(st.Token),
	})
	return nil
}
