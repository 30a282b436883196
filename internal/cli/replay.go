package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/matchfund/internal/engine"
	"github.com/roach88/matchfund/internal/store"
)

// ReplayResult holds the replay report.
type ReplayResult struct {
	Calls         int      `json:"calls"`
	Notifications int      `json:"notifications"`
	StateHash     string   `json:"state_hash"`
	SchemaVersion int      `json:"schema_version"`
	Deterministic bool     `json:"deterministic"`
	Mismatches    []string `json:"mismatches"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the log and verify determinism",
		Long: `Re-execute every recorded call against a fresh core and compare the
outcomes, notifications and state hashes with the log. The log is never
written to.

Exit codes:
  0 - The log reproduced itself exactly
  1 - Determinism verification failed (mismatches detected)
  2 - Command error (database not found, etc.)

Examples:
  matchfund replay --db ./matchfund.db
  matchfund replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd)
		},
	}
	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := opts.logger(cmd, slog.LevelWarn)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st, logger)

	report, err := engine.Replay(ctx, st, opts.engineOptions(logger)...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay log", err)
	}

	version, err := st.Version(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log schema", err)
	}

	result := ReplayResult{
		Calls:         report.Calls,
		Notifications: report.Notifications,
		StateHash:     report.StateHash,
		SchemaVersion: version,
		Deterministic: report.OK(),
		Mismatches:    make([]string, 0, len(report.Mismatches)),
	}
	for _, m := range report.Mismatches {
		result.Mismatches = append(result.Mismatches, m.String())
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeDeterminism,
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.Calls == 0 {
		fmt.Fprintln(w, "No calls found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d call(s), %d notification(s)\n", result.Calls, result.Notifications)
	if verbose {
		fmt.Fprintf(w, "  Log schema: v%d\n", result.SchemaVersion)
		if result.StateHash != "" {
			fmt.Fprintf(w, "  State hash: %s\n", result.StateHash)
		}
	}
	for _, m := range result.Mismatches {
		fmt.Fprintf(w, "  ✗ %s\n", m)
	}
	fmt.Fprintln(w)

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Log verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
