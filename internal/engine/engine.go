package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
	"github.com/roach88/matchfund/internal/round"
	"github.com/roach88/matchfund/internal/store"
)

// Request is one operation submitted to the engine.
type Request struct {
	// FlowToken correlates the calls of one client session.
	// Empty means the engine generates one.
	FlowToken string
	Op        string
	Caller    chain.Address
	Args      ir.IRObject
}

// Result is what a recorded call produced.
type Result struct {
	Call          ir.Call
	Outcome       ir.Outcome
	Notifications []ir.NotificationRecord
}

// Engine is the single writer in front of one core.
//
// Every request becomes a Call stamped with the next seq and the current
// ledger height, runs against the core, and is appended to the store with
// its outcome, notifications and (if it committed) the resulting snapshot
// in one transaction.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine, served by Run
//   - Run(): must be called from exactly one goroutine
//   - Execute(), Advance(): serialized by a mutex; callers that do not run
//     the loop (CLI, harness) use them directly
//
// A rejected operation is still a recorded call. Only engine failures
// (RuntimeError) leave no trace in the log.
type Engine struct {
	mu      sync.Mutex
	store   *store.Store
	clock   *Clock
	m       *machine
	queue   *callQueue
	flowGen FlowTokenGenerator
	quota   *QuotaEnforcer

	factory  FactoryFunc
	maxCalls int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFlowGenerator sets the generator used for requests without a flow
// token. Defaults to UUIDv7Generator.
func WithFlowGenerator(gen FlowTokenGenerator) Option {
	return func(e *Engine) {
		e.flowGen = gen
	}
}

// WithFactory sets how round handles are derived. Defaults to CreateFactoryFunc.
func WithFactory(f FactoryFunc) Option {
	return func(e *Engine) {
		e.factory = f
	}
}

// WithMaxCallsPerFlow sets the per-flow call quota. 0 disables it.
// Default: DefaultMaxCallsPerFlow.
func WithMaxCallsPerFlow(n int) Option {
	return func(e *Engine) {
		e.maxCalls = n
	}
}

func newEngine(s *store.Store, opts []Option) *Engine {
	e := &Engine{
		store:    s,
		queue:    newCallQueue(),
		flowGen:  UUIDv7Generator{},
		factory:  CreateFactoryFunc,
		maxCalls: DefaultMaxCallsPerFlow,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.quota = NewQuotaEnforcer(e.maxCalls)
	return e
}

// Open creates an Engine over s and resumes from its contents: the seq
// clock continues after the last recorded seq, the ledger height comes from
// the meta table and the core from the latest snapshot.
func Open(ctx context.Context, s *store.Store, opts ...Option) (*Engine, error) {
	e := newEngine(s, opts)

	seq, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	height, err := s.LedgerHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	e.clock = NewClockAt(seq)
	e.m = newMachine(height, e.factory, e.logger)

	snap, ok, err := s.LatestSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	if ok {
		if err := e.m.restore(snap); err != nil {
			return nil, fmt.Errorf("open engine: %w", err)
		}
	}

	e.logger.Info("engine opened",
		"seq", seq,
		"height", height,
		"deployed", e.m.deployed(),
		"core", e.m.core.Hex())
	return e, nil
}

// Run serves submitted requests until ctx is cancelled or Stop is called.
// Requests still queued when ctx is cancelled fail with ENGINE_STOPPED.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		p, ok := e.queue.TryDequeue()
		if ok {
			res, err := e.Execute(ctx, p.req)
			if err != nil {
				// Log and continue: the caller gets the error, the loop keeps serving
				e.logger.Error("request failed",
					"op", p.req.Op,
					"flow_token", p.req.FlowToken,
					"error", err)
			}
			p.reply <- reply{res: res, err: err}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.drain()
			return ctx.Err()

		case <-e.queue.Wait():
			// A stale signal can arrive after its request was dequeued, so
			// only a closed queue ends the loop
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) drain() {
	for {
		p, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		p.reply <- reply{err: errStopped}
	}
}

// Stop closes the queue; Run returns once it has served what is queued.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Submit queues req for the Run loop and waits for its result.
// If ctx ends first, Submit returns ctx.Err() but the request may still run.
func (e *Engine) Submit(ctx context.Context, req Request) (Result, error) {
	p := pending{req: req, reply: make(chan reply, 1)}
	if !e.queue.Enqueue(p) {
		return Result{}, errStopped
	}
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-p.reply:
		return r.res, r.err
	}
}

// Execute runs req and records it.
//
// Seq layout of one call: the call takes seq N, its k notifications take
// N+1..N+k and the outcome takes N+k+1.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	flow := e.flowToken(req)

	spec, ok := ops[req.Op]
	if !ok {
		return Result{}, NewUnknownOpError(flow, req.Op)
	}
	if req.Op == OpDeploy && e.m.deployed() {
		return Result{}, NewAlreadyDeployedError(flow, e.m.core.Hex())
	}
	if req.Op != OpDeploy && !e.m.deployed() {
		return Result{}, NewNotDeployedError(flow, req.Op)
	}
	if err := e.quota.Check(flow); err != nil {
		return Result{}, NewQuotaError(flow, req.Op, e.quota.Calls(flow)+1, e.quota.MaxCalls())
	}

	args := req.Args
	if args == nil {
		args = ir.IRObject{}
	}
	call := ir.Call{
		FlowToken:     flow,
		Op:            req.Op,
		Caller:        req.Caller.Hex(),
		Args:          args,
		Block:         e.m.height.BlockNumber(),
		Seq:           e.clock.Next(),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	id, err := ir.CallID(call.FlowToken, call.Op, call.Caller, call.Args, call.Block, call.Seq)
	if err != nil {
		e.quota.Release(flow)
		return Result{}, fmt.Errorf("execute %s: %w", req.Op, err)
	}
	call.ID = id

	cp := e.m.capture()
	result, notes, opErr := e.m.run(spec, req.Caller, args)
	e.clock.Claim(len(notes) + 1)

	rec, err := record(call, result, notes, opErr)
	if err == nil && opErr == nil {
		var snap store.Snapshot
		snap, err = e.m.snapshot(rec.Outcome.Seq, call.ID)
		rec.Snapshot = &snap
	}
	if err == nil {
		err = e.store.AppendCall(ctx, rec)
	}
	if err != nil {
		e.quota.Release(flow)
		if rerr := e.m.rollback(cp); rerr != nil {
			// The machine no longer matches the log; only a reopen recovers
			e.logger.Error("rollback failed", "call_id", call.ID, "error", rerr)
			err = fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
		return Result{}, NewStoreError(flow, req.Op, call.ID, err)
	}

	e.logger.Info("call recorded",
		"op", call.Op,
		"seq", call.Seq,
		"block", call.Block,
		"caller", call.Caller,
		"case", rec.Outcome.Case,
		"notifications", len(rec.Notifications))

	return Result{Call: call, Outcome: rec.Outcome, Notifications: rec.Notifications}, nil
}

// Advance moves the ledger height forward by n blocks and persists it.
func (e *Engine) Advance(ctx context.Context, n uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.m.height.BlockNumber()
	if n > math.MaxUint64-cur {
		return cur, fmt.Errorf("advance %d from %d: %w", n, cur, chain.ErrClockOverflow)
	}
	next := cur + n
	if err := e.store.SetLedgerHeight(ctx, next); err != nil {
		return cur, fmt.Errorf("advance: %w", err)
	}
	if err := e.m.height.Set(next); err != nil {
		return cur, fmt.Errorf("advance: %w", err)
	}
	e.logger.Debug("ledger advanced", "from", cur, "to", next)
	return next, nil
}

// AdvanceTo moves the ledger height to h. Moving backwards is an error.
func (e *Engine) AdvanceTo(ctx context.Context, h uint64) (uint64, error) {
	cur := e.Height()
	if h < cur {
		return cur, fmt.Errorf("advance to %d from %d: %w", h, cur, chain.ErrClockRegression)
	}
	return e.Advance(ctx, h-cur)
}

// Height returns the current ledger height.
func (e *Engine) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.height.BlockNumber()
}

// Seq returns the last seq handed out.
func (e *Engine) Seq() int64 {
	return e.clock.Current()
}

// Deployed reports whether a core has been deployed.
func (e *Engine) Deployed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.deployed()
}

// Controller returns the deployed core, or nil before deploy.
// The controller is replaced after a rolled-back call, so callers should
// not hold on to it across Execute.
func (e *Engine) Controller() *round.Controller {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.ctrl
}

// Ledger returns the token ledger.
func (e *Engine) Ledger() *chain.MemoryLedger {
	return e.m.ledger
}
