package round

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
)

// Params configures a new deployment.
type Params struct {
	Core        chain.Address
	Owner       chain.Address
	Coordinator chain.Address
	Witness     chain.Address
	Token       chain.Address
	Duration    uint64
}

// Deps are the external interfaces the Controller talks to.
type Deps struct {
	Clock   chain.LedgerClock
	Factory chain.RoundFactory
	Tokens  chain.TokenResolver
}

func (d Deps) validate() error {
	var missing []string
	if d.Clock == nil {
		missing = append(missing, "clock")
	}
	if d.Factory == nil {
		missing = append(missing, "factory")
	}
	if d.Tokens == nil {
		missing = append(missing, "tokens")
	}
	if len(missing) > 0 {
		return fmt.Errorf("round: missing dependencies %v", missing)
	}
	return nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller is the custodial core of a matching-funds program.
// All exported methods are safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	core   chain.Address
	state  State
	deps   Deps
	logger *slog.Logger
}

// New deploys a core and runs its bootstrap.
//
// Bootstrap assigns the roles directly, binds the funding token and duration,
// and ends the zeroth (empty) round so that a first round instance exists.
// The returned notifications describe the bootstrap in emission order.
func New(params Params, deps Deps, opts ...Option) (*Controller, []Notification, error) {
	if err := deps.validate(); err != nil {
		return nil, nil, err
	}
	if chain.IsZero(params.Core) {
		return nil, nil, ErrInvalidArgument.Wrap("core address must be non-zero")
	}
	if chain.IsZero(params.Owner) {
		return nil, nil, ErrInvalidArgument.Wrap("owner must be non-zero")
	}
	if chain.IsZero(params.Token) {
		return nil, nil, ErrInvalidArgument.Wrap("funding token must be non-zero")
	}

	c := newController(params.Core, State{}, deps, opts)

	notes, err := c.apply("deploy", func(tx *txn) error {
		st := &tx.state
		st.Roles.Owner = params.Owner
		tx.emit(KindOwnershipTransferred, chain.ZeroAddress, ir.IRObject{
			"previous_owner": addrValue(chain.ZeroAddress),
			"new_owner":      addrValue(params.Owner),
		})
		st.Token = params.Token
		tx.emit(KindTokenChanged, chain.ZeroAddress, ir.IRObject{
			"previous_token": addrValue(chain.ZeroAddress),
			"token":          addrValue(params.Token),
		})
		st.Duration = params.Duration
		tx.emit(KindRoundDurationChanged, chain.ZeroAddress, ir.IRObject{
			"previous_duration": u64Value(0),
			"duration":          u64Value(params.Duration),
		})
		if !chain.IsZero(params.Coordinator) {
			st.Roles.Coordinator = params.Coordinator
			tx.emit(KindCoordinatorTransferred, chain.ZeroAddress, ir.IRObject{
				"previous_coordinator": addrValue(chain.ZeroAddress),
				"new_coordinator":      addrValue(params.Coordinator),
			})
		}
		if !chain.IsZero(params.Witness) {
			st.Roles.Witness = params.Witness
			tx.emit(KindWitnessTransferred, chain.ZeroAddress, ir.IRObject{
				"previous_witness": addrValue(chain.ZeroAddress),
				"new_witness":      addrValue(params.Witness),
			})
		}
		// Deadline of the zeroth round is 0, so this always meets the policy.
		return tx.endRound()
	})
	if err != nil {
		return nil, nil, err
	}
	return c, notes, nil
}

// Restore rebuilds a Controller from a previously captured State.
// The factory in deps must continue the deployment sequence of st.
func Restore(core chain.Address, st State, deps Deps, opts ...Option) (*Controller, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if chain.IsZero(core) {
		return nil, ErrInvalidArgument.Wrap("core address must be non-zero")
	}
	return newController(core, st.Clone(), deps, opts), nil
}

func newController(core chain.Address, st State, deps Deps, opts []Option) *Controller {
	c := &Controller{
		core:   core,
		state:  st,
		deps:   deps,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// txn is the working copy of one operation. Changes become visible only when
// the operation function returns nil.
type txn struct {
	c       *Controller
	state   State
	block   uint64
	emitted []Notification
}

func (tx *txn) emit(kind Kind, round chain.Address, attrs ir.IRObject) {
	tx.emitted = append(tx.emitted, Notification{
		Kind:  kind,
		Round: round,
		Block: tx.block,
		Attrs: attrs,
	})
}

// apply runs fn against a copy of the state and commits the copy on success.
// External effects (deployments, token transfers) must be the last thing fn
// does so that a failure before them leaves nothing behind.
func (c *Controller) apply(op string, fn func(tx *txn) error) ([]Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &txn{
		c:     c,
		state: c.state.Clone(),
		block: c.deps.Clock.BlockNumber(),
	}
	if err := fn(tx); err != nil {
		c.logger.Debug("round operation rejected",
			"op", op,
			"reason", Reason(err),
			"error", err)
		return nil, err
	}
	c.state = tx.state
	for _, n := range tx.emitted {
		c.logger.Info("round notification",
			"op", op,
			"kind", string(n.Kind),
			"round", n.Round.Hex(),
			"block", n.Block)
	}
	return tx.emitted, nil
}

// requireOwner and friends implement the capability checks.
func (tx *txn) requireOwner(caller chain.Address, action string) error {
	return requireRole(caller, tx.state.Roles.Owner, "owner", action)
}

func (tx *txn) requireCoordinator(caller chain.Address, action string) error {
	return requireRole(caller, tx.state.Roles.Coordinator, "coordinator", action)
}

func (tx *txn) requireWitness(caller chain.Address, action string) error {
	return requireRole(caller, tx.state.Roles.Witness, "witness", action)
}

func requireRole(caller, holder chain.Address, role, action string) error {
	// A vacated role has no holder, and the zero address never authenticates.
	if chain.IsZero(holder) || caller != holder {
		return ErrUnauthorized.Wrapf("%s is not allowed to %s, expected %s %s",
			caller.Hex(), action, role, holder.Hex())
	}
	return nil
}

// transfer moves the full balance of token held by from to to and returns the
// amount moved. A zero balance moves nothing.
func (tx *txn) balance(tokenAddr, holder chain.Address) (*uint256.Int, error) {
	token, err := tx.c.deps.Tokens.Token(tokenAddr)
	if err != nil {
		return nil, ErrFundsTransfer.Wrapf("resolve token %s: %s", tokenAddr.Hex(), err)
	}
	return token.BalanceOf(holder), nil
}

func (tx *txn) transfer(tokenAddr, from, to chain.Address) (*uint256.Int, error) {
	token, err := tx.c.deps.Tokens.Token(tokenAddr)
	if err != nil {
		return nil, ErrFundsTransfer.Wrapf("resolve token %s: %s", tokenAddr.Hex(), err)
	}
	amount := token.BalanceOf(from)
	if amount.IsZero() {
		return amount, nil
	}
	if err := token.Transfer(from, to, amount); err != nil {
		return nil, ErrFundsTransfer.Wrapf("transfer %s of %s from %s to %s: %s",
			amount.Dec(), tokenAddr.Hex(), from.Hex(), to.Hex(), err)
	}
	return amount, nil
}

// Core returns the core's own address, which custodies matching funds.
func (c *Controller) Core() chain.Address {
	return c.core
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Current returns the handle of the current round.
func (c *Controller) Current() chain.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Current
}

// Previous returns the handle of the previous round, zero if none.
func (c *Controller) Previous() chain.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Previous
}

// Flags returns the finalization flags.
func (c *Controller) Flags() Flags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Flags
}

// Roles returns the role holders.
func (c *Controller) Roles() Roles {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Roles
}

// Deadline returns the ledger-clock deadline of the current round.
func (c *Controller) Deadline() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Deadline
}

// ComputationIdentifier returns the latest identifier attested for round.
func (c *Controller) ComputationIdentifier(round chain.Address) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.state.round(round)
	if i < 0 || len(c.state.Rounds[i].Identifiers) == 0 {
		return "", false
	}
	ids := c.state.Rounds[i].Identifiers
	return ids[len(ids)-1], true
}

// ComputationHistory returns every identifier attested for round, oldest first.
func (c *Controller) ComputationHistory(round chain.Address) []string {
	r, _ := c.Snapshot().Lookup(round)
	return r.Identifiers
}

// MatchingFunds returns the core's balance of the configured funding token.
func (c *Controller) MatchingFunds() (*uint256.Int, error) {
	c.mu.Lock()
	tokenAddr := c.state.Token
	c.mu.Unlock()

	token, err := c.deps.Tokens.Token(tokenAddr)
	if err != nil {
		return nil, fmt.Errorf("round: resolve token %s: %w", tokenAddr.Hex(), err)
	}
	return token.BalanceOf(c.core), nil
}
