package engine

import (
	"errors"
	"slices"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
	"github.com/roach88/matchfund/internal/round"
)

// Operation names accepted by the engine.
const (
	OpDeploy            = "deploy"
	OpFund              = "fund"
	OpContribute        = "contribute"
	OpSetCoordinator    = "set-coordinator"
	OpCoordinatorQuit   = "coordinator-quit"
	OpSetWitness        = "set-witness"
	OpWitnessQuit       = "witness-quit"
	OpTransferOwnership = "transfer-ownership"
	OpRenounceOwnership = "renounce-ownership"
	OpSetToken          = "set-token"
	OpSetDuration       = "set-duration"
	OpConfirmPrevious   = "confirm-previous"
	OpEndRound          = "end-round"
	OpAttest            = "attest"
	OpTransfer          = "transfer"
)

type opFunc func(m *machine, caller chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error)

// opSpec declares the argument keys an operation accepts.
type opSpec struct {
	args []string
	run  opFunc
}

func (s opSpec) checkArgs(args ir.IRObject) error {
	for _, k := range args.SortedKeys() {
		if !slices.Contains(s.args, k) {
			return round.ErrInvalidArgument.Wrapf("unexpected argument %q", k)
		}
	}
	return nil
}

var ops = map[string]opSpec{
	OpDeploy:     {args: []string{"core", "owner", "coordinator", "witness", "token", "duration"}, run: opDeploy},
	OpFund:       {args: []string{"amount", "token"}, run: opFund},
	OpContribute: {args: []string{"amount", "token"}, run: opContribute},

	OpSetCoordinator: {args: []string{"coordinator"}, run: func(m *machine, caller chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
		coordinator, err := addrArg(args, "coordinator")
		if err != nil {
			return nil, nil, err
		}
		notes, err := m.ctrl.SetCoordinator(caller, coordinator)
		return m.position(), notes, err
	}},
	OpCoordinatorQuit: {run: func(m *machine, caller chain.Address, _ ir.IRObject) (ir.IRObject, []round.Notification, error) {
		notes, err := m.ctrl.CoordinatorQuit(caller)
		return m.position(), notes, err
	}},
	OpSetWitness: {args: []string{"witness"}, run: func(m *machine, caller chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
		witness, err := addrArg(args, "witness")
		if err != nil {
			return nil, nil, err
		}
		notes, err := m.ctrl.SetWitness(caller, witness)
		return nil, notes, err
	}},
	OpWitnessQuit: {run: func(m *machine, caller chain.Address, _ ir.IRObject) (ir.IRObject, []round.Notification, error) {
		notes, err := m.ctrl.WitnessQuit(caller)
		return nil, notes, err
	}},
	OpTransferOwnership: {args: []string{"new_owner"}, run: func(m *machine, caller chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
		owner, err := addrArg(args, "new_owner")
		if err != nil {
			return nil, nil, err
		}
		notes, err := m.ctrl.TransferOwnership(caller, owner)
		return nil, notes, err
	}},
	OpRenounceOwnership: {run: func(m *machine, caller chain.Address, _ ir.IRObject) (ir.IRObject, []round.Notification, error) {
		notes, err := m.ctrl.RenounceOwnership(caller)
		return nil, notes, err
	}},
	OpSetToken: {args: []string{"token"}, run: func(m *machine, caller chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
		token, err := addrArg(args, "token")
		if err != nil {
			return nil, nil, err
		}
		notes, err := m.ctrl.SetToken(caller, token)
		return nil, notes, err
	}},
	OpSetDuration: {args: []string{"duration"}, run: func(m *machine, caller chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
		duration, err := args.Uint64("duration")
		if err != nil {
			return nil, nil, round.ErrInvalidArgument.Wrap(err.Error())
		}
		notes, err := m.ctrl.SetRoundDuration(caller, duration)
		return nil, notes, err
	}},
	OpConfirmPrevious: {args: []string{"valid"}, run: func(m *machine, caller chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
		valid, ok := args.Bool("valid")
		if !ok {
			return nil, nil, round.ErrInvalidArgument.Wrap("valid: expected bool")
		}
		notes, err := m.ctrl.SetPreviousRoundValid(caller, valid)
		return nil, notes, err
	}},
	OpEndRound: {run: func(m *machine, caller chain.Address, _ ir.IRObject) (ir.IRObject, []round.Notification, error) {
		notes, err := m.ctrl.EndRound(caller)
		return m.position(), notes, err
	}},
	OpAttest: {args: []string{"identifier"}, run: func(m *machine, caller chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
		identifier, ok := args.String("identifier")
		if !ok {
			return nil, nil, round.ErrInvalidArgument.Wrap("identifier: expected string")
		}
		notes, err := m.ctrl.SetComputationIdentifier(caller, identifier)
		return nil, notes, err
	}},
	OpTransfer: {run: func(m *machine, caller chain.Address, _ ir.IRObject) (ir.IRObject, []round.Notification, error) {
		res, notes, err := m.ctrl.TransferMatchingFunds(caller)
		if err != nil {
			return nil, nil, err
		}
		return ir.IRObject{
			"finalized": ir.IRBool(res.Finalized),
			"round":     ir.IRString(res.Round.Hex()),
			"amount":    ir.IRString(amountString(res.Amount)),
		}, notes, nil
	}},
}

// Ops returns the accepted operation names in sorted order.
func Ops() []string {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// KnownOp reports whether op is in the dispatch table.
func KnownOp(op string) bool {
	_, ok := ops[op]
	return ok
}

func opDeploy(m *machine, _ chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
	var (
		params round.Params
		err    error
	)
	for _, a := range []struct {
		key      string
		dst      *chain.Address
		optional bool
	}{
		{"core", &params.Core, false},
		{"owner", &params.Owner, false},
		{"coordinator", &params.Coordinator, true},
		{"witness", &params.Witness, true},
		{"token", &params.Token, false},
	} {
		if _, present := args[a.key]; !present && a.optional {
			continue
		}
		if *a.dst, err = addrArg(args, a.key); err != nil {
			return nil, nil, err
		}
	}
	if params.Duration, err = args.Uint64("duration"); err != nil {
		return nil, nil, round.ErrInvalidArgument.Wrap(err.Error())
	}

	ctrl, notes, err := round.New(params, m.deps(0), round.WithLogger(m.logger))
	if err != nil {
		return nil, nil, err
	}
	m.core = params.Core
	m.ctrl = ctrl

	result := m.position()
	result["core"] = ir.IRString(params.Core.Hex())
	return result, notes, nil
}

// opFund deposits matching funds into the core.
func opFund(m *machine, _ chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
	token := m.ctrl.Snapshot().Token
	return m.mint(args, token, m.core)
}

// opContribute deposits contributions into the current round, in the
// round's bound token unless another is named.
func opContribute(m *machine, _ chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
	st := m.ctrl.Snapshot()
	r, ok := st.Lookup(st.Current)
	if !ok {
		return nil, nil, round.ErrInvalidTransferConditions.Wrap("no current round")
	}
	result, notes, err := m.mint(args, r.Token, r.Handle)
	if err == nil {
		result["round"] = ir.IRString(r.Handle.Hex())
	}
	return result, notes, err
}

func (m *machine) mint(args ir.IRObject, token, holder chain.Address) (ir.IRObject, []round.Notification, error) {
	amount, err := amountArg(args, "amount")
	if err != nil {
		return nil, nil, err
	}
	if _, present := args["token"]; present {
		if token, err = addrArg(args, "token"); err != nil {
			return nil, nil, err
		}
	}
	if err := m.ledger.Mint(token, holder, amount); err != nil {
		switch {
		case errors.Is(err, chain.ErrBalanceOverflow):
			return nil, nil, round.ErrOverflow.Wrap(err.Error())
		case errors.Is(err, chain.ErrNoToken), errors.Is(err, chain.ErrZeroRecipient):
			return nil, nil, round.ErrInvalidArgument.Wrap(err.Error())
		default:
			return nil, nil, round.ErrFundsTransfer.Wrap(err.Error())
		}
	}
	t, err := m.ledger.Token(token)
	if err != nil {
		return nil, nil, round.ErrFundsTransfer.Wrap(err.Error())
	}
	m.logger.Debug("minted",
		"token", token.Hex(),
		"holder", holder.Hex(),
		"amount", amount.Dec())
	return ir.IRObject{
		"token":   ir.IRString(token.Hex()),
		"balance": ir.IRString(t.BalanceOf(holder).Dec()),
	}, nil, nil
}

// position reports the round the core is in after an operation.
func (m *machine) position() ir.IRObject {
	return ir.IRObject{
		"round":    ir.IRString(m.ctrl.Current().Hex()),
		"deadline": ir.IRString(uint64String(m.ctrl.Deadline())),
	}
}

func addrArg(args ir.IRObject, key string) (chain.Address, error) {
	s, ok := args.String(key)
	if !ok {
		return chain.ZeroAddress, round.ErrInvalidArgument.Wrapf("%s: expected hex address", key)
	}
	addr, err := chain.ParseAddress(s)
	if err != nil {
		return chain.ZeroAddress, round.ErrInvalidArgument.Wrapf("%s: %v", key, err)
	}
	return addr, nil
}

func amountArg(args ir.IRObject, key string) (*uint256.Int, error) {
	s, ok := args.String(key)
	if !ok {
		return nil, round.ErrInvalidArgument.Wrapf("%s: expected decimal string", key)
	}
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, round.ErrInvalidArgument.Wrapf("%s: %v", key, err)
	}
	if amount.IsZero() {
		return nil, round.ErrInvalidArgument.Wrapf("%s: must be positive", key)
	}
	return amount, nil
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func uint64String(v uint64) string {
	return strconv.FormatUint(v, 10)
}
