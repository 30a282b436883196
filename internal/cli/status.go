package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/engine"
)

// StatusOutput is the state of the core and its rounds.
type StatusOutput struct {
	Core        string `json:"core"`
	Owner       string `json:"owner"`
	Coordinator string `json:"coordinator"`
	Witness     string `json:"witness"`
	Token       string `json:"token"`
	Duration    uint64 `json:"duration"`
	Deadline    uint64 `json:"deadline"`
	Current     string `json:"current"`
	Previous    string `json:"previous"`

	ComputationIdentifier  string `json:"computation_identifier"`
	NewComputationAttested bool   `json:"new_computation_attested"`
	PreviousRoundValid     bool   `json:"previous_round_valid"`
	CoordinatorJustChanged bool   `json:"coordinator_just_changed"`

	MatchingFunds string        `json:"matching_funds"`
	Height        uint64        `json:"height"`
	Seq           int64         `json:"seq"`
	CanEndRound   bool          `json:"can_end_round"`
	Rounds        []RoundStatus `json:"rounds"`
}

// RoundStatus is one deployed round.
type RoundStatus struct {
	Handle      string   `json:"handle"`
	Token       string   `json:"token"`
	StartBlock  uint64   `json:"start_block"`
	Deadline    uint64   `json:"deadline"`
	Balance     string   `json:"balance"`
	Identifiers []string `json:"identifiers"`
}

func (s StatusOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Core:        %s\n", s.Core)
	fmt.Fprintf(&b, "Owner:       %s\n", roleString(s.Owner))
	fmt.Fprintf(&b, "Coordinator: %s\n", roleString(s.Coordinator))
	fmt.Fprintf(&b, "Witness:     %s\n", roleString(s.Witness))
	fmt.Fprintf(&b, "Token:       %s\n", s.Token)
	fmt.Fprintf(&b, "Duration:    %d blocks\n", s.Duration)
	fmt.Fprintf(&b, "Height:      %d (deadline %d, can end round: %v)\n", s.Height, s.Deadline, s.CanEndRound)
	fmt.Fprintf(&b, "Current:     %s\n", s.Current)
	fmt.Fprintf(&b, "Previous:    %s\n", s.Previous)
	fmt.Fprintf(&b, "Flags:       attested=%v previous_valid=%v coordinator_just_changed=%v\n",
		s.NewComputationAttested, s.PreviousRoundValid, s.CoordinatorJustChanged)
	if s.ComputationIdentifier != "" {
		fmt.Fprintf(&b, "Computation: %s\n", s.ComputationIdentifier)
	}
	fmt.Fprintf(&b, "Funds:       %s\n", s.MatchingFunds)
	fmt.Fprintf(&b, "Rounds:      %d (last seq %d)", len(s.Rounds), s.Seq)
	for i, r := range s.Rounds {
		fmt.Fprintf(&b, "\n  #%d %s start=%d deadline=%d balance=%s", i, r.Handle, r.StartBlock, r.Deadline, r.Balance)
		if len(r.Identifiers) > 0 {
			fmt.Fprintf(&b, " identifiers=%s", strings.Join(r.Identifiers, ","))
		}
	}
	return b.String()
}

func roleString(hex string) string {
	if hex == chain.ZeroAddress.Hex() {
		return "(vacant)"
	}
	return hex
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the core state, matching funds and rounds",
		Long: `Show the core state rebuilt from the log: roles, flags, the current and
previous rounds, the matching funds held by the core and every deployed
round with its balance.

Examples:
  matchfund status
  matchfund status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, opts, cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireDeployed(); err != nil {
		return err
	}
	out, err := buildStatus(s.engine)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read state", err)
	}
	return opts.formatter(cmd).Success(out)
}

func buildStatus(e *engine.Engine) (StatusOutput, error) {
	c := e.Controller()
	st := c.Snapshot()
	funds, err := c.MatchingFunds()
	if err != nil {
		return StatusOutput{}, err
	}

	out := StatusOutput{
		Core:                   c.Core().Hex(),
		Owner:                  st.Roles.Owner.Hex(),
		Coordinator:            st.Roles.Coordinator.Hex(),
		Witness:                st.Roles.Witness.Hex(),
		Token:                  st.Token.Hex(),
		Duration:               st.Duration,
		Deadline:               st.Deadline,
		Current:                st.Current.Hex(),
		Previous:               st.Previous.Hex(),
		ComputationIdentifier:  st.ComputationIdentifier,
		NewComputationAttested: st.Flags.NewComputationAttested,
		PreviousRoundValid:     st.Flags.PreviousRoundValid,
		CoordinatorJustChanged: st.Flags.CoordinatorJustChanged,
		MatchingFunds:          funds.Dec(),
		Height:                 e.Height(),
		Seq:                    e.Seq(),
		CanEndRound:            c.CanEndRound(),
		Rounds:                 make([]RoundStatus, 0, len(st.Rounds)),
	}
	for _, r := range st.Rounds {
		tok, err := e.Ledger().Token(r.Token)
		if err != nil {
			return StatusOutput{}, fmt.Errorf("round %s: %w", r.Handle.Hex(), err)
		}
		ids := r.Identifiers
		if ids == nil {
			ids = []string{}
		}
		out.Rounds = append(out.Rounds, RoundStatus{
			Handle:      r.Handle.Hex(),
			Token:       r.Token.Hex(),
			StartBlock:  r.StartBlock,
			Deadline:    r.Deadline,
			Balance:     tok.BalanceOf(r.Handle).Dec(),
			Identifiers: ids,
		})
	}
	return out, nil
}
