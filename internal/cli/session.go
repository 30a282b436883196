package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/matchfund/internal/config"
	"github.com/roach88/matchfund/internal/engine"
	"github.com/roach88/matchfund/internal/ir"
	"github.com/roach88/matchfund/internal/store"
)

// session is an open log with the engine in front of it.
type session struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, level slog.Level, extra ...engine.Option) (*session, error) {
	logger := opts.logger(cmd, level)

	logger.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	engineOpts := opts.engineOptions(logger)
	cfg, err := storedConfig(ctx, st)
	if err != nil {
		closeStore(st, logger)
		return nil, WrapExitError(ExitCommandError, "failed to read deployment", err)
	}
	if cfg != nil {
		engineOpts = append(engineOpts, engine.WithMaxCallsPerFlow(cfg.Engine.MaxCallsPerFlow))
	}

	e, err := engine.Open(ctx, st, append(engineOpts, extra...)...)
	if err != nil {
		closeStore(st, logger)
		return nil, WrapExitError(ExitCommandError, "failed to open engine", err)
	}
	return &session{store: st, engine: e, logger: logger}, nil
}

// storedConfig returns the configuration init recorded, or nil before init.
func storedConfig(ctx context.Context, st *store.Store) (*config.Config, error) {
	raw, ok, err := st.GetMeta(ctx, store.MetaDeployment)
	if err != nil || !ok {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", store.MetaDeployment, err)
	}
	return &cfg, nil
}

// saveConfig records cfg so later sessions run with the same engine settings.
func (s *session) saveConfig(ctx context.Context, cfg *config.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.store.SetMeta(ctx, store.MetaDeployment, string(data))
}

func (s *session) Close() {
	closeStore(s.store, s.logger)
}

func closeStore(st *store.Store, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
}

// requireDeployed fails with a command error until init has run.
func (s *session) requireDeployed() error {
	if !s.engine.Deployed() {
		return NewExitError(ExitCommandError, "core not deployed: run 'matchfund init' first")
	}
	return nil
}

// execute runs one call and reports it. A rejected outcome is printed and
// returned as an ExitFailure; engine errors are command errors.
func (s *session) execute(ctx context.Context, f *OutputFormatter, req engine.Request) (engine.Result, error) {
	res, err := s.engine.Execute(ctx, req)
	if err != nil {
		return res, WrapExitError(ExitCommandError, fmt.Sprintf("%s failed", req.Op), err)
	}
	out := newCallOutput(res)
	if !res.Outcome.Succeeded() {
		if err := f.Error(res.Outcome.Case, res.Outcome.Message, out); err != nil {
			return res, err
		}
		return res, NewExitError(ExitFailure, fmt.Sprintf("%s rejected: %s", req.Op, res.Outcome.Case))
	}
	return res, f.Success(out)
}

// CallOutput is the printed form of a recorded call.
type CallOutput struct {
	Seq           int64                `json:"seq"`
	FlowToken     string               `json:"flow_token"`
	Op            string               `json:"op"`
	Caller        string               `json:"caller"`
	Block         uint64               `json:"block"`
	Case          string               `json:"case"`
	Code          uint32               `json:"code,omitempty"`
	Result        map[string]any       `json:"result"`
	Notifications []NotificationOutput `json:"notifications"`
}

// Flow returns the flow the call ran under.
func (o CallOutput) Flow() string { return o.FlowToken }

// NotificationOutput is the printed form of a notification.
type NotificationOutput struct {
	Seq   int64          `json:"seq"`
	Kind  string         `json:"kind"`
	Round string         `json:"round"`
	Block uint64         `json:"block"`
	Attrs map[string]any `json:"attrs"`
}

func newCallOutput(res engine.Result) CallOutput {
	out := CallOutput{
		Seq:           res.Call.Seq,
		FlowToken:     res.Call.FlowToken,
		Op:            res.Call.Op,
		Caller:        res.Call.Caller,
		Block:         res.Call.Block,
		Case:          res.Outcome.Case,
		Code:          res.Outcome.Code,
		Result:        objectToGo(res.Outcome.Result),
		Notifications: make([]NotificationOutput, 0, len(res.Notifications)),
	}
	for _, n := range res.Notifications {
		out.Notifications = append(out.Notifications, newNotificationOutput(n))
	}
	return out
}

func newNotificationOutput(n ir.NotificationRecord) NotificationOutput {
	return NotificationOutput{
		Seq:   n.Seq,
		Kind:  n.Kind,
		Round: n.Round,
		Block: n.Block,
		Attrs: objectToGo(n.Attrs),
	}
}

func (c CallOutput) String() string {
	var b strings.Builder
	mark := "✓"
	if c.Case != ir.CaseSuccess {
		mark = "✗"
	}
	fmt.Fprintf(&b, "%s %s %s (seq %d, block %d)", mark, c.Op, c.Case, c.Seq, c.Block)
	for _, k := range sortedKeys(c.Result) {
		fmt.Fprintf(&b, "\n  %s: %v", k, c.Result[k])
	}
	for _, n := range c.Notifications {
		b.WriteString("\n  ")
		b.WriteString(n.String())
	}
	return b.String()
}

func (n NotificationOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", n.Seq, n.Kind)
	for _, k := range sortedKeys(n.Attrs) {
		fmt.Fprintf(&b, " %s=%v", k, n.Attrs[k])
	}
	return b.String()
}

func objectToGo(obj ir.IRObject) map[string]any {
	if obj == nil {
		return map[string]any{}
	}
	return ir.ToGo(obj).(map[string]any)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
