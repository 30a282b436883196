package round

import (
	"github.com/holiman/uint256"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
)

// Finalization is the result of TransferMatchingFunds.
//
// When Finalized is true, Round is the finalized (previous) round and Amount
// is the matching funds released to it. Otherwise the redo branch ran, Round
// is the current round and Amount is the stale balance recovered into it.
type Finalization struct {
	Finalized bool          `json:"finalized"`
	Round     chain.Address `json:"round"`
	Amount    *uint256.Int  `json:"amount"`
}

// TransferMatchingFunds is the custodial gate. Owner-only.
//
// Exactly one branch runs:
//   - redo, when the coordinator just changed: all flags reset, the balances
//     of the interrupted round and of any round started after it are
//     forwarded to the current round
//   - finalize, when a new computation is attested and the previous round is
//     valid: the core's matching funds move to the previous round
//   - reject, otherwise, with ErrInvalidTransferConditions
func (c *Controller) TransferMatchingFunds(caller chain.Address) (Finalization, []Notification, error) {
	var result Finalization
	notes, err := c.apply("transfer", func(tx *txn) error {
		if err := tx.requireOwner(caller, "transfer matching funds"); err != nil {
			return err
		}
		st := &tx.state
		if chain.IsZero(st.Roles.Coordinator) {
			return ErrNoCoordinator.Wrap("matching funds cannot move while the coordinator is vacated")
		}

		switch {
		case st.Flags.CoordinatorJustChanged:
			r, err := tx.redo()
			result = r
			return err
		case st.Flags.NewComputationAttested && st.Flags.PreviousRoundValid:
			r, err := tx.finalize()
			result = r
			return err
		default:
			return ErrInvalidTransferConditions.Wrapf(
				"new computation attested=%t, previous round valid=%t",
				st.Flags.NewComputationAttested, st.Flags.PreviousRoundValid)
		}
	})
	if err != nil {
		return Finalization{}, nil, err
	}
	return result, notes, nil
}

// redo forwards the balance of every round cut short since the coordinator
// changed into the current round, in each round's own token.
func (tx *txn) redo() (Finalization, error) {
	st := &tx.state
	interrupted := st.Interrupted
	if chain.IsZero(interrupted) {
		interrupted = st.Previous
	}
	current := st.Current
	st.Flags = Flags{}
	st.Interrupted = chain.ZeroAddress

	type moved struct {
		from, token chain.Address
		amount      *uint256.Int
	}
	var transfers []moved
	recovered := new(uint256.Int)
	if start := st.round(interrupted); start >= 0 {
		for _, r := range st.Rounds[start:] {
			if r.Handle == current {
				continue
			}
			amount, err := tx.transfer(r.Token, r.Handle, current)
			if err != nil {
				return Finalization{}, err
			}
			if amount.IsZero() {
				continue
			}
			if _, overflow := recovered.AddOverflow(recovered, amount); overflow {
				return Finalization{}, ErrOverflow.Wrap("recovered amount exceeds 256 bits")
			}
			transfers = append(transfers, moved{from: r.Handle, token: r.Token, amount: amount})
		}
	}

	tx.emit(KindRedoRequired, current, ir.IRObject{
		"interrupted_round": addrValue(interrupted),
		"current_round":     addrValue(current),
		"recovered_amount":  amountValue(recovered),
	})
	for _, m := range transfers {
		tx.emitTransfer(m.from, current, m.amount, m.token)
	}
	return Finalization{Finalized: false, Round: current, Amount: recovered}, nil
}

func (tx *txn) finalize() (Finalization, error) {
	st := &tx.state
	target := st.Previous
	i := st.round(target)
	if i < 0 {
		return Finalization{}, ErrInvalidTransferConditions.Wrap("there is no previous round to finalize")
	}
	token := st.Rounds[i].Token
	st.Flags.NewComputationAttested = false

	amount, err := tx.transfer(token, tx.c.core, target)
	if err != nil {
		return Finalization{}, err
	}
	if amount.IsZero() && token != st.Token {
		// The pool moved to a newer token; the attestation stays unspent.
		held, err := tx.balance(st.Token, tx.c.core)
		if err != nil {
			return Finalization{}, err
		}
		if !held.IsZero() {
			return Finalization{}, ErrInvalidTransferConditions.Wrapf(
				"matching funds are held in %s but round %s is bound to %s",
				st.Token.Hex(), target.Hex(), token.Hex())
		}
	}

	tx.emit(KindRoundFinalized, target, ir.IRObject{
		"round": addrValue(target),
	})
	tx.emit(KindFinalizedWithRound, target, ir.IRObject{
		"round":      addrValue(target),
		"identifier": ir.IRString(st.ComputationIdentifier),
		"amount":     amountValue(amount),
	})
	if !amount.IsZero() {
		tx.emitTransfer(tx.c.core, target, amount, token)
	}
	return Finalization{Finalized: true, Round: target, Amount: amount}, nil
}

func (tx *txn) emitTransfer(from, to chain.Address, amount *uint256.Int, token chain.Address) {
	tx.emit(KindMatchingFundsTransferred, to, ir.IRObject{
		"from":   addrValue(from),
		"to":     addrValue(to),
		"amount": amountValue(amount),
		"token":  addrValue(token),
	})
}
