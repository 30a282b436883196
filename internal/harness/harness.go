package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/engine"
	"github.com/roach88/matchfund/internal/ir"
	"github.com/roach88/matchfund/internal/store"
	"github.com/roach88/matchfund/internal/testutil"
)

// Run executes a scenario against a fresh in-memory engine.
//
//  1. Move the ledger to the deployment's start block
//  2. Deploy the core as its owner and deposit the initial matching funds
//  3. Run every step, checking its expectation
//  4. Read the trace back from the log and evaluate assertions
//  5. Replay the log and require it to reproduce itself
//
// Failed expectations are reported in Result.Errors. An error is returned
// only when the scenario could not be executed at all.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	if s.cfg == nil {
		return nil, fmt.Errorf("scenario %q was not loaded", s.Name)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := engine.Open(ctx, st,
		engine.WithLogger(logger),
		engine.WithFactory(testutil.SequentialFactoryFunc),
		engine.WithFlowGenerator(testutil.NewFixedFlowGenerator(s.FlowToken)),
		engine.WithMaxCallsPerFlow(s.cfg.Engine.MaxCallsPerFlow),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	people, err := newActors(s)
	if err != nil {
		return nil, err
	}

	if err := deploy(ctx, e, s); err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range s.Steps {
		if err := runStep(ctx, e, s, people, i, step, result); err != nil {
			return nil, err
		}
	}

	history, err := st.ReadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	result.Trace = buildTrace(history)

	if result.State, err = stateView(e); err != nil {
		return nil, err
	}
	for i, a := range s.Assertions {
		if err := evaluateAssertion(e, people, a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}

	report, err := engine.Replay(ctx, st,
		engine.WithLogger(logger),
		engine.WithFactory(testutil.SequentialFactoryFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("replay failed: %w", err)
	}
	for _, m := range report.Mismatches {
		result.AddError("replay: " + m.String())
	}

	return result, nil
}

func deploy(ctx context.Context, e *engine.Engine, s *Scenario) error {
	d := s.cfg.Deployment
	if _, err := e.AdvanceTo(ctx, d.StartBlock); err != nil {
		return fmt.Errorf("deploy: %w", err)
	}

	owner := d.OwnerAddress()
	calls := []engine.Request{{FlowToken: s.FlowToken, Op: engine.OpDeploy, Caller: owner, Args: d.DeployArgs()}}
	if funds := d.Funds(); !funds.IsZero() {
		calls = append(calls, engine.Request{
			FlowToken: s.FlowToken,
			Op:        engine.OpFund,
			Caller:    owner,
			Args:      ir.IRObject{"amount": ir.IRString(funds.Dec())},
		})
	}

	for _, req := range calls {
		res, err := e.Execute(ctx, req)
		if err != nil {
			return fmt.Errorf("%s: %w", req.Op, err)
		}
		if !res.Outcome.Succeeded() {
			return fmt.Errorf("%s rejected: %s", req.Op, res.Outcome.Message)
		}
	}
	return nil
}

func runStep(ctx context.Context, e *engine.Engine, s *Scenario, people actors, i int, step Step, result *Result) error {
	label := fmt.Sprintf("steps[%d]", i)

	if step.AtBlock != nil {
		if _, err := e.AdvanceTo(ctx, *step.AtBlock); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
	}
	if step.Advance > 0 {
		if _, err := e.Advance(ctx, step.Advance); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
	}
	if step.Op == "" {
		return nil
	}
	label += " " + step.Op

	caller, err := people.address(step.Caller)
	if err != nil {
		return fmt.Errorf("%s: caller: %w", label, err)
	}
	args, err := people.args(step.Args)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}

	res, err := e.Execute(ctx, engine.Request{
		FlowToken: s.FlowToken,
		Op:        step.Op,
		Caller:    caller,
		Args:      args,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}

	expect := step.Expect
	if expect == nil {
		expect = &Expect{Case: ir.CaseSuccess}
	}
	if res.Outcome.Case != expect.Case {
		msg := fmt.Sprintf("%s: expected case %q, got %q", label, expect.Case, res.Outcome.Case)
		if res.Outcome.Message != "" {
			msg += " (" + res.Outcome.Message + ")"
		}
		result.AddError(msg)
		return nil
	}
	for _, key := range sortedKeys(expect.Result) {
		got, ok := res.Outcome.Result[key]
		if !ok {
			result.AddError(fmt.Sprintf("%s: result field %q missing", label, key))
			continue
		}
		if !people.match(expect.Result[key], got) {
			result.AddError(fmt.Sprintf("%s: result field %q: expected %v, got %v",
				label, key, expect.Result[key], ir.ToGo(got)))
		}
	}
	return nil
}

// buildTrace flattens the log into events ordered by seq.
func buildTrace(history []store.Entry) []TraceEvent {
	trace := make([]TraceEvent, 0, len(history)*2)
	for _, entry := range history {
		c := entry.Call
		trace = append(trace, TraceEvent{
			Type:   EventCall,
			Seq:    c.Seq,
			Op:     c.Op,
			Caller: c.Caller,
			Args:   c.Args,
			Block:  c.Block,
		})
		for _, n := range entry.Notifications {
			trace = append(trace, TraceEvent{
				Type:  EventNotification,
				Seq:   n.Seq,
				Kind:  n.Kind,
				Round: n.Round,
				Block: n.Block,
				Attrs: n.Attrs,
			})
		}
		o := entry.Outcome
		trace = append(trace, TraceEvent{
			Type:   EventOutcome,
			Seq:    o.Seq,
			Case:   o.Case,
			Code:   o.Code,
			Result: o.Result,
		})
	}
	return trace
}

// actors resolves "@name" references.
type actors map[string]chain.Address

func newActors(s *Scenario) (actors, error) {
	d := s.cfg.Deployment
	people := actors{}
	for name, hex := range map[string]string{
		"core":        d.Core,
		"owner":       d.Owner,
		"coordinator": d.Coordinator,
		"witness":     d.Witness,
		"token":       d.Token,
	} {
		if hex == "" {
			continue
		}
		addr, err := chain.ParseAddress(hex)
		if err != nil {
			return nil, fmt.Errorf("deployment.%s: %w", name, err)
		}
		people[name] = addr
	}
	for name, hex := range s.Actors {
		addr, err := chain.ParseAddress(hex)
		if err != nil {
			return nil, fmt.Errorf("actors.%s: %w", name, err)
		}
		people[name] = addr
	}
	return people, nil
}

// lookup resolves a reference with or without its "@". "roundN" names the
// N-th round deployed, counting the bootstrap round as round0.
func (a actors) lookup(ref string) (chain.Address, bool) {
	name := strings.TrimPrefix(ref, "@")
	if addr, ok := a[name]; ok {
		return addr, true
	}
	if rest, ok := strings.CutPrefix(name, "round"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 {
			return testutil.RoundHandle(n), true
		}
	}
	return chain.ZeroAddress, false
}

// address resolves a hex address or an actor name, with or without its "@".
func (a actors) address(ref string) (chain.Address, error) {
	if !strings.HasPrefix(ref, "@") {
		if addr, err := chain.ParseAddress(ref); err == nil {
			return addr, nil
		}
	}
	addr, ok := a.lookup(ref)
	if !ok {
		return chain.ZeroAddress, fmt.Errorf("unknown actor %q", ref)
	}
	return addr, nil
}

func (a actors) args(in map[string]any) (ir.IRObject, error) {
	out := make(ir.IRObject, len(in))
	for k, v := range in {
		val, err := a.value(v)
		if err != nil {
			return nil, fmt.Errorf("args[%q]: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// value converts a decoded YAML value into an argument. Numbers travel as
// decimal strings, like every other amount or block the engine accepts.
func (a actors) value(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "@") {
			addr, err := a.address(val)
			if err != nil {
				return nil, err
			}
			return ir.IRString(addr.Hex()), nil
		}
		return ir.IRString(val), nil
	case int:
		if val < 0 {
			return nil, fmt.Errorf("negative number %d", val)
		}
		return ir.IRString(strconv.Itoa(val)), nil
	case uint64:
		return ir.IRString(strconv.FormatUint(val, 10)), nil
	default:
		return convertToIRValue(v)
	}
}

// match compares an expected YAML value with a recorded one. Addresses
// compare case-insensitively; everything else by its printed form.
func (a actors) match(want any, got ir.IRValue) bool {
	g := fmt.Sprint(ir.ToGo(got))
	w := fmt.Sprint(want)
	if s, ok := want.(string); ok && strings.HasPrefix(s, "@") {
		addr, ok := a.lookup(s)
		if !ok {
			return false
		}
		w = addr.Hex()
	}
	if wa, err := chain.ParseAddress(w); err == nil {
		ga, err := chain.ParseAddress(g)
		return err == nil && wa == ga
	}
	return w == g
}

// convertToIRValue converts YAML-decoded values to IR values. Floats and
// nulls are rejected.
func convertToIRValue(v any) (ir.IRValue, error) {
	if v == nil {
		return nil, fmt.Errorf("null values are not allowed")
	}
	if f, ok := v.(float64); ok {
		if f != float64(int64(f)) {
			return nil, fmt.Errorf("float values are not allowed: %v", f)
		}
		if f < 0 {
			return nil, fmt.Errorf("negative number %v", f)
		}
		return ir.IRString(strconv.FormatInt(int64(f), 10)), nil
	}
	return ir.FromGo(v)
}
