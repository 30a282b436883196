package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/matchfund/internal/engine"
)

// DefaultDatabase is the log used when --db is not given.
const DefaultDatabase = "matchfund.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string

	// FlowGenerator overrides the flow token generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	FlowGenerator engine.FlowTokenGenerator

	// Factory overrides the round factory (for testing).
	// If nil, round handles are derived from the core address.
	Factory engine.FactoryFunc
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the matchfund CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matchfund",
		Short: "matchfund - matching-funds round coordinator",
		Long: `Coordinate successive funding rounds of a matching-funds program.

One core holds the owner, coordinator and witness roles, tracks the current
and previous rounds, and releases matching funds only once a computation has
been attested and the previous round confirmed valid. Every operation is
recorded in an append-only SQLite log that can be replayed.`,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", DefaultDatabase, "path to SQLite database")

	cmd.AddCommand(NewInitCommand(opts))
	for _, spec := range opCommands {
		cmd.AddCommand(newOpCommand(opts, spec))
	}
	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// logger returns the command logger: text on stderr, debug with --verbose.
func (o *RootOptions) logger(cmd *cobra.Command, level slog.Level) *slog.Logger {
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// formatter returns an OutputFormatter bound to the command's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// engineOptions returns the engine options every command shares.
func (o *RootOptions) engineOptions(logger *slog.Logger) []engine.Option {
	opts := []engine.Option{engine.WithLogger(logger)}
	if o.FlowGenerator != nil {
		opts = append(opts, engine.WithFlowGenerator(o.FlowGenerator))
	}
	if o.Factory != nil {
		opts = append(opts, engine.WithFactory(o.Factory))
	}
	return opts
}
