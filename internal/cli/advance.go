package cli

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
)

// AdvanceOptions holds flags for the advance command.
type AdvanceOptions struct {
	*RootOptions
	To    uint64
	toSet bool
}

// AdvanceOutput reports the ledger height change.
type AdvanceOutput struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

func (o AdvanceOutput) String() string {
	return fmt.Sprintf("ledger height %d -> %d", o.From, o.To)
}

// NewAdvanceCommand creates the advance command.
func NewAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdvanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "advance [blocks]",
		Short: "Move the simulated ledger height forward",
		Long: `Move the simulated ledger height forward, by a number of blocks or to an
absolute height with --to. The height never moves backwards.

Examples:
  matchfund advance        # one block
  matchfund advance 10
  matchfund advance --to 120`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.toSet = cmd.Flags().Changed("to")
			return runAdvance(opts, args, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.To, "to", 0, "absolute target height")

	return cmd
}

func runAdvance(opts *AdvanceOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	if opts.toSet && len(args) > 0 {
		return NewExitError(ExitCommandError, "blocks and --to are mutually exclusive")
	}
	blocks := uint64(1)
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid blocks", err)
		}
		blocks = n
	}

	s, err := openSession(ctx, opts.RootOptions, cmd, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer s.Close()

	out := AdvanceOutput{From: s.engine.Height()}
	if opts.toSet {
		out.To, err = s.engine.AdvanceTo(ctx, opts.To)
	} else {
		out.To, err = s.engine.Advance(ctx, blocks)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "advance failed", err)
	}

	return opts.formatter(cmd).Success(out)
}
