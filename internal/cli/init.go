package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/matchfund/internal/config"
	"github.com/roach88/matchfund/internal/engine"
	"github.com/roach88/matchfund/internal/ir"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	ConfigPath string
	FlowToken  string
}

// InitOutput reports the deployment.
type InitOutput struct {
	Deploy CallOutput  `json:"deploy"`
	Fund   *CallOutput `json:"fund,omitempty"`
}

// Flow returns the flow the deployment ran under.
func (o InitOutput) Flow() string { return o.Deploy.FlowToken }

func (o InitOutput) String() string {
	s := o.Deploy.String()
	if o.Fund != nil {
		s += "\n" + o.Fund.String()
	}
	return s
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Deploy the core from a CUE deployment file",
		Long: `Deploy the core described by a CUE deployment file into the log.

The ledger is moved forward to the configured start block, the core is deployed by
its owner, and the initial matching funds are deposited into the core.
A log can be initialized only once. Moving the ledger is not a call: if the
deploy is rejected the ledger stays at the start block, and a retry deploys there.

Examples:
  matchfund init --config deploy.cue
  matchfund init --config deploy.cue --db ./rounds.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to CUE deployment file (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token (default: generated)")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	d := cfg.Deployment

	s, err := openSession(ctx, opts.RootOptions, cmd, d.Level(),
		engine.WithMaxCallsPerFlow(cfg.Engine.MaxCallsPerFlow))
	if err != nil {
		return err
	}
	defer s.Close()

	if s.engine.Deployed() {
		return NewExitError(ExitCommandError, "core already deployed in "+opts.Database)
	}
	// A ledger already past the start block deploys at its current height.
	if d.StartBlock > s.engine.Height() {
		if _, err := s.engine.AdvanceTo(ctx, d.StartBlock); err != nil {
			return WrapExitError(ExitCommandError, "failed to move ledger to start block", err)
		}
	}

	f := opts.formatter(cmd)
	owner := d.OwnerAddress()
	deploy, err := s.engine.Execute(ctx, engine.Request{
		FlowToken: opts.FlowToken,
		Op:        engine.OpDeploy,
		Caller:    owner,
		Args:      d.DeployArgs(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "deploy failed", err)
	}
	out := InitOutput{Deploy: newCallOutput(deploy)}
	if !deploy.Outcome.Succeeded() {
		if err := f.Error(deploy.Outcome.Case, deploy.Outcome.Message, out); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "deploy rejected: "+deploy.Outcome.Case)
	}
	if err := s.saveConfig(ctx, cfg); err != nil {
		return WrapExitError(ExitCommandError, "failed to record deployment", err)
	}
	s.logger.Info("core deployed", "core", d.Core, "round", deploy.Outcome.Result["round"])

	if funds := d.Funds(); !funds.IsZero() {
		fund, err := s.engine.Execute(ctx, engine.Request{
			FlowToken: deploy.Call.FlowToken,
			Op:        engine.OpFund,
			Caller:    owner,
			Args:      ir.IRObject{"amount": ir.IRString(funds.Dec())},
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "fund failed", err)
		}
		fo := newCallOutput(fund)
		out.Fund = &fo
		if !fund.Outcome.Succeeded() {
			if err := f.Error(fund.Outcome.Case, fund.Outcome.Message, out); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "fund rejected: "+fund.Outcome.Case)
		}
	}

	return f.Success(out)
}
