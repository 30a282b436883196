package round

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
	"github.com/roach88/matchfund/internal/testutil"
)

// attestAndClose attests on the first round, ends it, and confirms it valid.
func attestAndClose(t *testing.T, f *fixture, identifier string) chain.Address {
	t.Helper()
	first := f.ctrl.Current()
	_, err := f.ctrl.SetComputationIdentifier(witness, identifier)
	require.NoError(t, err)
	f.advance(t, f.ctrl.Deadline()-f.clock.BlockNumber())
	_, err = f.ctrl.EndRound(outsider)
	require.NoError(t, err)
	_, err = f.ctrl.SetPreviousRoundValid(owner, true)
	require.NoError(t, err)
	require.Equal(t, first, f.ctrl.Previous())
	return first
}

func TestTransferMatchingFunds_Finalize(t *testing.T) {
	f := newFixture(t, 10)
	f.mint(t, core, 1000)
	r1 := attestAndClose(t, f, "X")

	res, notes, err := f.ctrl.TransferMatchingFunds(owner)
	require.NoError(t, err)

	assert.True(t, res.Finalized)
	assert.Equal(t, r1, res.Round)
	assert.Equal(t, uint64(1000), res.Amount.Uint64())

	assert.Equal(t, []Kind{
		KindRoundFinalized,
		KindFinalizedWithRound,
		KindMatchingFundsTransferred,
	}, kinds(notes))
	for _, n := range notes {
		assert.Equal(t, r1, n.Round)
	}
	assert.Equal(t, ir.IRString("X"), notes[1].Attrs["identifier"])
	assert.Equal(t, ir.IRString("1000"), notes[1].Attrs["amount"])

	assert.Equal(t, uint64(0), f.balance(t, core))
	assert.Equal(t, uint64(1000), f.balance(t, r1))

	flags := f.ctrl.Flags()
	assert.False(t, flags.NewComputationAttested)
	assert.True(t, flags.PreviousRoundValid)
	assert.False(t, flags.CoordinatorJustChanged)

	// The attestation is spent, so a second attempt is rejected.
	_, _, err = f.ctrl.TransferMatchingFunds(owner)
	assert.ErrorIs(t, err, ErrInvalidTransferConditions)
}

func TestTransferMatchingFunds_FinalizeWithEmptyPool(t *testing.T) {
	f := newFixture(t, 10)
	r1 := attestAndClose(t, f, "X")

	res, notes, err := f.ctrl.TransferMatchingFunds(owner)
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.True(t, res.Amount.IsZero())
	assert.Equal(t, []Kind{KindRoundFinalized, KindFinalizedWithRound}, kinds(notes))
	assert.Equal(t, r1, notes[0].Round)
}

func TestTransferMatchingFunds_BranchTable(t *testing.T) {
	tests := []struct {
		name        string
		flags       Flags
		wantBranch  string
		wantFlags   Flags
		wantReason  string
		finalizable bool
	}{
		{"nothing set", Flags{}, "reject", Flags{}, ReasonInvalidTransferConditions, false},
		{"attested only", Flags{NewComputationAttested: true}, "reject",
			Flags{NewComputationAttested: true}, ReasonInvalidTransferConditions, false},
		{"valid only", Flags{PreviousRoundValid: true}, "reject",
			Flags{PreviousRoundValid: true}, ReasonInvalidTransferConditions, false},
		{"attested and valid", Flags{NewComputationAttested: true, PreviousRoundValid: true}, "finalize",
			Flags{PreviousRoundValid: true}, ReasonSuccess, true},
		{"changed only", Flags{CoordinatorJustChanged: true}, "redo", Flags{}, ReasonSuccess, false},
		{"changed and attested", Flags{CoordinatorJustChanged: true, NewComputationAttested: true}, "redo",
			Flags{}, ReasonSuccess, false},
		{"changed and valid", Flags{CoordinatorJustChanged: true, PreviousRoundValid: true}, "redo",
			Flags{}, ReasonSuccess, false},
		{"all set", Flags{true, true, true}, "redo", Flags{}, ReasonSuccess, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			_, err := f.ctrl.EndRound(outsider)
			require.NoError(t, err)

			st := f.ctrl.Snapshot()
			st.Flags = tt.flags
			ctrl, err := Restore(core, st, Deps{
				Clock:   f.clock,
				Factory: testutil.NewSequentialFactory(len(st.Rounds)),
				Tokens:  f.ledger,
			}, WithLogger(quietLogger()))
			require.NoError(t, err)

			res, notes, err := ctrl.TransferMatchingFunds(owner)
			assert.Equal(t, tt.wantReason, Reason(err))
			assert.Equal(t, tt.wantFlags, ctrl.Flags())

			switch tt.wantBranch {
			case "reject":
				assert.Nil(t, notes)
			case "finalize":
				require.NoError(t, err)
				assert.True(t, res.Finalized)
				assert.Equal(t, KindRoundFinalized, notes[0].Kind)
			case "redo":
				require.NoError(t, err)
				assert.False(t, res.Finalized)
				assert.Equal(t, KindRedoRequired, notes[0].Kind)
			}
			assert.Equal(t, tt.finalizable, res.Finalized)
		})
	}
}

func TestTransferMatchingFunds_RedoAfterCoordinatorChange(t *testing.T) {
	f := newFixture(t, 100)
	f.mint(t, core, 500)
	_, err := f.ctrl.SetComputationIdentifier(witness, "stale")
	require.NoError(t, err)
	_, err = f.ctrl.SetPreviousRoundValid(owner, true)
	require.NoError(t, err)

	f.advance(t, 30)
	interrupted := f.ctrl.Current()
	_, err = f.ctrl.SetCoordinator(owner, testutil.Addr(0xB2))
	require.NoError(t, err)
	require.Equal(t, interrupted, f.ctrl.Previous())

	// Contributions stranded in the interrupted round.
	f.mint(t, interrupted, 42)

	res, notes, err := f.ctrl.TransferMatchingFunds(owner)
	require.NoError(t, err)

	assert.False(t, res.Finalized)
	assert.Equal(t, f.ctrl.Current(), res.Round)
	assert.Equal(t, uint64(42), res.Amount.Uint64())
	assert.Equal(t, Flags{}, f.ctrl.Flags())

	assert.Equal(t, []Kind{KindRedoRequired, KindMatchingFundsTransferred}, kinds(notes))
	assert.Equal(t, ir.IRString(interrupted.Hex()), notes[0].Attrs["interrupted_round"])
	assert.Equal(t, ir.IRString("42"), notes[0].Attrs["recovered_amount"])

	assert.Equal(t, uint64(0), f.balance(t, interrupted))
	assert.Equal(t, uint64(42), f.balance(t, f.ctrl.Current()))
	assert.Equal(t, uint64(500), f.balance(t, core), "matching funds are never released on redo")
}

func TestTransferMatchingFunds_NoCoordinatorCheckedFirst(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.ctrl.CoordinatorQuit(coordinator)
	require.NoError(t, err)

	_, _, err = f.ctrl.TransferMatchingFunds(owner)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCoordinator)
	assert.Equal(t, ReasonNoCoordinator, Reason(err))
}

func TestTransferMatchingFunds_FinalizeNeedsPreviousRound(t *testing.T) {
	f := newFixture(t, 100)
	_, err := f.ctrl.SetComputationIdentifier(witness, "X")
	require.NoError(t, err)
	_, err = f.ctrl.SetPreviousRoundValid(owner, true)
	require.NoError(t, err)

	_, _, err = f.ctrl.TransferMatchingFunds(owner)
	assert.ErrorIs(t, err, ErrInvalidTransferConditions)
	assert.True(t, f.ctrl.Flags().NewComputationAttested)
}

func TestTransferMatchingFunds_FailedTransferRollsBack(t *testing.T) {
	ledger := chain.NewMemoryLedger()
	clock := chain.NewManualClock(0)
	ctrl, _, err := New(defaultParams(0), Deps{
		Clock:   clock,
		Factory: testutil.NewSequentialFactory(0),
		Tokens:  pausedTokens{ledger},
	}, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, ledger.Mint(token, core, uint256From(t, 10)))

	_, err = ctrl.SetComputationIdentifier(witness, "X")
	require.NoError(t, err)
	_, err = ctrl.EndRound(outsider)
	require.NoError(t, err)
	_, err = ctrl.SetPreviousRoundValid(owner, true)
	require.NoError(t, err)
	before := ctrl.Snapshot()

	_, notes, err := ctrl.TransferMatchingFunds(owner)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFundsTransfer)
	assert.Nil(t, notes)
	assert.Equal(t, before, ctrl.Snapshot())
	assert.True(t, ctrl.Flags().NewComputationAttested)
}

func TestTransferMatchingFunds_UsesRoundToken(t *testing.T) {
	f := newFixture(t, 0)
	other := testutil.Addr(0x71)
	f.mint(t, core, 300)

	_, err := f.ctrl.SetComputationIdentifier(witness, "X")
	require.NoError(t, err)
	_, err = f.ctrl.SetToken(owner, other)
	require.NoError(t, err)
	_, err = f.ctrl.EndRound(outsider)
	require.NoError(t, err)
	_, err = f.ctrl.SetPreviousRoundValid(owner, true)
	require.NoError(t, err)

	// The finalized round was bound to the original token.
	res, _, err := f.ctrl.TransferMatchingFunds(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), res.Amount.Uint64())
	assert.Equal(t, uint64(300), f.balance(t, res.Round))
}

func TestTransferMatchingFunds_RedoAfterFurtherEndRound(t *testing.T) {
	f := newFixture(t, 100)
	f.advance(t, 10)
	interrupted := f.ctrl.Current()
	f.mint(t, interrupted, 42)

	_, err := f.ctrl.SetCoordinator(owner, testutil.Addr(0xB2))
	require.NoError(t, err)

	// Anyone may end the round while the coordinator change is pending,
	// pushing the interrupted round out of previous.
	_, err = f.ctrl.EndRound(outsider)
	require.NoError(t, err)
	require.NotEqual(t, interrupted, f.ctrl.Previous())
	skipped := f.ctrl.Previous()
	f.mint(t, skipped, 5)
	assert.Equal(t, interrupted, f.ctrl.Snapshot().Interrupted)

	res, notes, err := f.ctrl.TransferMatchingFunds(owner)
	require.NoError(t, err)

	assert.False(t, res.Finalized)
	assert.Equal(t, uint64(47), res.Amount.Uint64())
	assert.Equal(t, []Kind{KindRedoRequired, KindMatchingFundsTransferred, KindMatchingFundsTransferred}, kinds(notes))
	assert.Equal(t, ir.IRString(interrupted.Hex()), notes[0].Attrs["interrupted_round"])
	assert.Equal(t, ir.IRString("47"), notes[0].Attrs["recovered_amount"])
	assert.Equal(t, ir.IRString(interrupted.Hex()), notes[1].Attrs["from"])
	assert.Equal(t, ir.IRString(skipped.Hex()), notes[2].Attrs["from"])

	assert.Equal(t, uint64(0), f.balance(t, interrupted))
	assert.Equal(t, uint64(0), f.balance(t, skipped))
	assert.Equal(t, uint64(47), f.balance(t, f.ctrl.Current()))
	assert.True(t, chain.IsZero(f.ctrl.Snapshot().Interrupted))
}

func TestTransferMatchingFunds_RedoAfterRepeatedCoordinatorChange(t *testing.T) {
	f := newFixture(t, 100)
	interrupted := f.ctrl.Current()
	f.mint(t, interrupted, 42)

	_, err := f.ctrl.SetCoordinator(owner, testutil.Addr(0xB2))
	require.NoError(t, err)
	_, err = f.ctrl.SetCoordinator(owner, testutil.Addr(0xB3))
	require.NoError(t, err)
	assert.Equal(t, interrupted, f.ctrl.Snapshot().Interrupted, "the first change marks the interrupted round")

	res, _, err := f.ctrl.TransferMatchingFunds(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res.Amount.Uint64())
	assert.Equal(t, uint64(42), f.balance(t, f.ctrl.Current()))
}

func TestTransferMatchingFunds_FundsInNewTokenKeepAttestation(t *testing.T) {
	f := newFixture(t, 0)
	other := testutil.Addr(0x71)

	_, err := f.ctrl.SetComputationIdentifier(witness, "X")
	require.NoError(t, err)
	_, err = f.ctrl.SetToken(owner, other)
	require.NoError(t, err)
	_, err = f.ctrl.EndRound(outsider)
	require.NoError(t, err)
	_, err = f.ctrl.SetPreviousRoundValid(owner, true)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Mint(other, core, uint256From(t, 300)))

	_, _, err = f.ctrl.TransferMatchingFunds(owner)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransferConditions)
	assert.Contains(t, err.Error(), "matching funds are held in")
	assert.True(t, f.ctrl.Flags().NewComputationAttested)

	// Funding the round's own token releases it.
	f.mint(t, core, 120)
	res, _, err := f.ctrl.TransferMatchingFunds(owner)
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.Equal(t, uint64(120), res.Amount.Uint64())
}
