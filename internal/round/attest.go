package round

import (
	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
)

// SetComputationIdentifier records the identifier of the external computation
// against the current round and marks a new computation as attested.
// Witness-only. The identifier is not validated.
func (c *Controller) SetComputationIdentifier(caller chain.Address, identifier string) ([]Notification, error) {
	return c.apply("attest", func(tx *txn) error {
		if err := tx.requireWitness(caller, "set the computation identifier"); err != nil {
			return err
		}
		st := &tx.state
		i := st.round(st.Current)
		if i < 0 {
			return ErrInvalidArgument.Wrapf("current round %s is not in the ledger", st.Current.Hex())
		}
		st.ComputationIdentifier = identifier
		st.Rounds[i].Identifiers = append(st.Rounds[i].Identifiers, identifier)
		st.Flags.NewComputationAttested = true
		tx.emit(KindComputationIdentifierSet, st.Current, ir.IRObject{
			"round":      addrValue(st.Current),
			"identifier": ir.IRString(identifier),
		})
		return nil
	})
}

// SetPreviousRoundValid records the owner's off-core judgment of whether the
// previous round's computation is valid. Owner-only.
func (c *Controller) SetPreviousRoundValid(caller chain.Address, valid bool) ([]Notification, error) {
	return c.apply("confirm-previous", func(tx *txn) error {
		if err := tx.requireOwner(caller, "set previous round validity"); err != nil {
			return err
		}
		st := &tx.state
		st.Flags.PreviousRoundValid = valid
		tx.emit(KindPreviousRoundValiditySet, st.Previous, ir.IRObject{
			"round": addrValue(st.Previous),
			"valid": ir.IRBool(valid),
		})
		return nil
	})
}
