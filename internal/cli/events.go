package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/round"
	"github.com/roach88/matchfund/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Kind  string
	Round string
	After int64
	Limit int
}

// EventsOutput lists notifications in emission order.
type EventsOutput struct {
	Notifications []NotificationOutput `json:"notifications"`
}

func (o EventsOutput) String() string {
	if len(o.Notifications) == 0 {
		return "No notifications found."
	}
	lines := make([]string, len(o.Notifications))
	for i, n := range o.Notifications {
		lines[i] = fmt.Sprintf("block %-6d round %s  %s", n.Block, n.Round, n.String())
	}
	return strings.Join(lines, "\n")
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded notifications",
		Long: `List the notifications recorded in the log, in emission order.
Core-level notifications carry the zero address as their round.

Examples:
  matchfund events
  matchfund events --kind RoundStarted
  matchfund events --round 0x0000000000000000000000000000000000001001
  matchfund events --after 12 --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only notifications of this kind")
	cmd.Flags().StringVar(&opts.Round, "round", "", "only notifications scoped to this round")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only notifications after this seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of notifications (0 = all)")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	filter := store.NotificationFilter{AfterSeq: opts.After, Limit: opts.Limit}
	if opts.Kind != "" {
		if !round.ValidKind(round.Kind(opts.Kind)) {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown notification kind %q", opts.Kind))
		}
		filter.Kind = opts.Kind
	}
	if opts.Round != "" {
		addr, err := chain.ParseAddress(opts.Round)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --round", err)
		}
		filter.Round = addr.Hex()
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must be non-negative")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st, opts.logger(cmd, slog.LevelWarn))

	notes, err := st.ReadNotifications(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read notifications", err)
	}

	out := EventsOutput{Notifications: make([]NotificationOutput, 0, len(notes))}
	for _, n := range notes {
		out.Notifications = append(out.Notifications, newNotificationOutput(n))
	}
	return opts.formatter(cmd).Success(out)
}
