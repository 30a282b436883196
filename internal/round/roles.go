package round

import (
	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
)

// SetCoordinator replaces the coordinator, marks the coordinator as just
// changed and ends the current round. Owner-only.
//
// The end-round attempt cannot fail on policy grounds here, so any failure
// (Overflow, DeployFailed) aborts the whole call.
func (c *Controller) SetCoordinator(caller, coordinator chain.Address) ([]Notification, error) {
	return c.apply("set-coordinator", func(tx *txn) error {
		if err := tx.requireOwner(caller, "set the coordinator"); err != nil {
			return err
		}
		prev := tx.state.Roles.Coordinator
		tx.state.Roles.Coordinator = coordinator
		if !tx.state.Flags.CoordinatorJustChanged {
			tx.state.Interrupted = tx.state.Current
		}
		tx.state.Flags.CoordinatorJustChanged = true
		tx.emit(KindCoordinatorTransferred, chain.ZeroAddress, ir.IRObject{
			"previous_coordinator": addrValue(prev),
			"new_coordinator":      addrValue(coordinator),
		})
		return tx.endRound()
	})
}

// CoordinatorQuit vacates the coordinator role and ends the current round.
// Coordinator-only.
func (c *Controller) CoordinatorQuit(caller chain.Address) ([]Notification, error) {
	return c.apply("coordinator-quit", func(tx *txn) error {
		if err := tx.requireCoordinator(caller, "quit as coordinator"); err != nil {
			return err
		}
		prev := tx.state.Roles.Coordinator
		tx.state.Roles.Coordinator = chain.ZeroAddress
		tx.emit(KindCoordinatorTransferred, chain.ZeroAddress, ir.IRObject{
			"previous_coordinator": addrValue(prev),
			"new_coordinator":      addrValue(chain.ZeroAddress),
		})
		return tx.endRound()
	})
}

// SetWitness replaces the witness. Owner-only.
func (c *Controller) SetWitness(caller, witness chain.Address) ([]Notification, error) {
	return c.apply("set-witness", func(tx *txn) error {
		if err := tx.requireOwner(caller, "set the witness"); err != nil {
			return err
		}
		prev := tx.state.Roles.Witness
		tx.state.Roles.Witness = witness
		tx.emit(KindWitnessTransferred, chain.ZeroAddress, ir.IRObject{
			"previous_witness": addrValue(prev),
			"new_witness":      addrValue(witness),
		})
		return nil
	})
}

// WitnessQuit vacates the witness role and voids any pending attestation.
// Witness-only.
func (c *Controller) WitnessQuit(caller chain.Address) ([]Notification, error) {
	return c.apply("witness-quit", func(tx *txn) error {
		if err := tx.requireWitness(caller, "quit as witness"); err != nil {
			return err
		}
		prev := tx.state.Roles.Witness
		tx.state.Roles.Witness = chain.ZeroAddress
		tx.state.Flags.NewComputationAttested = false
		tx.emit(KindWitnessTransferred, chain.ZeroAddress, ir.IRObject{
			"previous_witness": addrValue(prev),
			"new_witness":      addrValue(chain.ZeroAddress),
		})
		return nil
	})
}

// TransferOwnership hands the owner role to newOwner. Owner-only.
// Use RenounceOwnership to vacate the role.
func (c *Controller) TransferOwnership(caller, newOwner chain.Address) ([]Notification, error) {
	return c.apply("transfer-ownership", func(tx *txn) error {
		if err := tx.requireOwner(caller, "transfer ownership"); err != nil {
			return err
		}
		if chain.IsZero(newOwner) {
			return ErrInvalidArgument.Wrap("new owner is the zero address")
		}
		return tx.setOwner(newOwner)
	})
}

// RenounceOwnership vacates the owner role. Owner-only and irreversible:
// every owner-only operation fails afterwards.
func (c *Controller) RenounceOwnership(caller chain.Address) ([]Notification, error) {
	return c.apply("renounce-ownership", func(tx *txn) error {
		if err := tx.requireOwner(caller, "renounce ownership"); err != nil {
			return err
		}
		return tx.setOwner(chain.ZeroAddress)
	})
}

func (tx *txn) setOwner(owner chain.Address) error {
	prev := tx.state.Roles.Owner
	tx.state.Roles.Owner = owner
	tx.emit(KindOwnershipTransferred, chain.ZeroAddress, ir.IRObject{
		"previous_owner": addrValue(prev),
		"new_owner":      addrValue(owner),
	})
	return nil
}
