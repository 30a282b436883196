package cli

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/engine"
	"github.com/roach88/matchfund/internal/ir"
)

// opCommand declares a command that submits one engine operation.
type opCommand struct {
	op    string
	use   string
	short string
	long  string

	// arg is the operation argument filled from the positional argument.
	// Empty for operations without arguments.
	arg   string
	parse func(string) (ir.IRValue, error)

	// token adds a --token flag for deposits in another token.
	token bool
}

var opCommands = []opCommand{
	{
		op: engine.OpSetCoordinator, use: "set-coordinator <address>", arg: "coordinator", parse: parseAddress,
		short: "Replace the coordinator and end the current round (owner)",
		long: `Replace the coordinator. The coordinator is marked as just changed and the
current round ends immediately, so the next transfer runs the redo branch.`,
	},
	{
		op: engine.OpCoordinatorQuit, use: "coordinator-quit",
		short: "Vacate the coordinator role and end the current round (coordinator)",
	},
	{
		op: engine.OpSetWitness, use: "set-witness <address>", arg: "witness", parse: parseAddress,
		short: "Replace the witness (owner)",
	},
	{
		op: engine.OpWitnessQuit, use: "witness-quit",
		short: "Vacate the witness role (witness)",
	},
	{
		op: engine.OpTransferOwnership, use: "transfer-ownership <address>", arg: "new_owner", parse: parseAddress,
		short: "Hand ownership to another address (owner)",
	},
	{
		op: engine.OpRenounceOwnership, use: "renounce-ownership",
		short: "Give up ownership; owner-only operations fail afterwards (owner)",
	},
	{
		op: engine.OpSetToken, use: "set-token <address>", arg: "token", parse: parseAddress,
		short: "Change the funding token for rounds deployed afterwards (owner)",
	},
	{
		op: engine.OpSetDuration, use: "set-duration <blocks>", arg: "duration", parse: parseUint,
		short: "Change the round duration for rounds deployed afterwards (owner)",
	},
	{
		op: engine.OpConfirmPrevious, use: "confirm-previous <true|false>", arg: "valid", parse: parseBool,
		short: "Record whether the previous round's computation is valid (owner)",
	},
	{
		op: engine.OpEndRound, use: "end-round",
		short: "End the current round and start the next one (anyone)",
		long: `End the current round and start the next one. Anyone may call it.

Rejected with InvalidEndRoundConditions while the ledger is before the
deadline, the coordinator has not just changed and a coordinator is set.`,
	},
	{
		op: engine.OpAttest, use: "attest <identifier>", arg: "identifier", parse: parseString,
		short: "Record the computation identifier of the current round (witness)",
	},
	{
		op: engine.OpTransfer, use: "transfer",
		short: "Release matching funds to the previous round, or recover an interrupted one (owner)",
		long: `Run the custodial gate. Exactly one branch runs:

  redo      the coordinator just changed: flags reset and the interrupted
            round's balance moves to the current round
  finalize  a computation is attested and the previous round is valid:
            the core's matching funds move to the previous round

Otherwise the call is rejected with InvalidTransferConditions.`,
	},
	{
		op: engine.OpFund, use: "fund <amount>", arg: "amount", parse: parseAmount, token: true,
		short: "Deposit matching funds into the core",
	},
	{
		op: engine.OpContribute, use: "contribute <amount>", arg: "amount", parse: parseAmount, token: true,
		short: "Deposit contributions into the current round",
	},
}

// OpOptions holds flags shared by operation commands.
type OpOptions struct {
	*RootOptions
	As        string
	FlowToken string
	Token     string
}

func newOpCommand(rootOpts *RootOptions, spec opCommand) *cobra.Command {
	opts := &OpOptions{RootOptions: rootOpts}

	nargs := cobra.NoArgs
	if spec.arg != "" {
		nargs = cobra.ExactArgs(1)
	}
	long := spec.long
	if long == "" {
		long = spec.short + "."
	}

	cmd := &cobra.Command{
		Use:           spec.use,
		Short:         spec.short,
		Long:          long,
		Args:          nargs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(opts, spec, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "caller address (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token (default: generated)")
	if spec.token {
		cmd.Flags().StringVar(&opts.Token, "token", "", "token address (default: funding token)")
	}

	return cmd
}

func runOp(opts *OpOptions, spec opCommand, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	caller, err := chain.ParseAddress(opts.As)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --as", err)
	}

	callArgs := ir.IRObject{}
	if spec.arg != "" {
		v, err := spec.parse(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s", spec.arg), err)
		}
		callArgs[spec.arg] = v
	}
	if opts.Token != "" {
		v, err := parseAddress(opts.Token)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --token", err)
		}
		callArgs["token"] = v
	}

	s, err := openSession(ctx, opts.RootOptions, cmd, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireDeployed(); err != nil {
		return err
	}

	_, err = s.execute(ctx, opts.formatter(cmd), engine.Request{
		FlowToken: opts.FlowToken,
		Op:        spec.op,
		Caller:    caller,
		Args:      callArgs,
	})
	return err
}

func parseAddress(s string) (ir.IRValue, error) {
	addr, err := chain.ParseAddress(s)
	if err != nil {
		return nil, err
	}
	return ir.IRString(addr.Hex()), nil
}

func parseUint(s string) (ir.IRValue, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return ir.IRString(strconv.FormatUint(n, 10)), nil
}

func parseAmount(s string) (ir.IRValue, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	if v.IsZero() {
		return nil, fmt.Errorf("amount must be positive")
	}
	return ir.IRString(v.Dec()), nil
}

func parseBool(s string) (ir.IRValue, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return ir.IRBool(b), nil
}

func parseString(s string) (ir.IRValue, error) {
	return ir.IRString(s), nil
}
