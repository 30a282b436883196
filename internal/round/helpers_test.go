package round

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/testutil"
)

var (
	core        = testutil.CoreAddr
	owner       = testutil.OwnerAddr
	coordinator = testutil.CoordinatorAddr
	witness     = testutil.WitnessAddr
	outsider    = testutil.OutsiderAddr
	token       = testutil.TokenAddr
)

type fixture struct {
	ctrl    *Controller
	clock   *chain.ManualClock
	ledger  *chain.MemoryLedger
	factory *testutil.SequentialFactory
	boot    []Notification
}

func (f *fixture) deps() Deps {
	return Deps{Clock: f.clock, Factory: f.factory, Tokens: f.ledger}
}

func defaultParams(duration uint64) Params {
	return Params{
		Core:        core,
		Owner:       owner,
		Coordinator: coordinator,
		Witness:     witness,
		Token:       token,
		Duration:    duration,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture deploys a core at block 0 with the default actors.
func newFixture(t *testing.T, duration uint64) *fixture {
	t.Helper()
	f := &fixture{
		clock:   chain.NewManualClock(0),
		ledger:  chain.NewMemoryLedger(),
		factory: testutil.NewSequentialFactory(0),
	}
	ctrl, boot, err := New(defaultParams(duration), f.deps(), WithLogger(quietLogger()))
	require.NoError(t, err)
	f.ctrl = ctrl
	f.boot = boot
	return f
}

func (f *fixture) advance(t *testing.T, n uint64) {
	t.Helper()
	_, err := f.clock.Advance(n)
	require.NoError(t, err)
}

func (f *fixture) mint(t *testing.T, holder chain.Address, amount uint64) {
	t.Helper()
	require.NoError(t, f.ledger.Mint(token, holder, uint256.NewInt(amount)))
}

func (f *fixture) balance(t *testing.T, holder chain.Address) uint64 {
	t.Helper()
	tok, err := f.ledger.Token(token)
	require.NoError(t, err)
	return tok.BalanceOf(holder).Uint64()
}

func kinds(notes []Notification) []Kind {
	out := make([]Kind, len(notes))
	for i, n := range notes {
		out[i] = n.Kind
	}
	return out
}

// pausedTokens resolves tokens whose transfers always fail.
type pausedTokens struct {
	chain.TokenResolver
}

func (p pausedTokens) Token(addr chain.Address) (chain.Token, error) {
	tok, err := p.TokenResolver.Token(addr)
	if err != nil {
		return nil, err
	}
	return pausedToken{tok}, nil
}

type pausedToken struct {
	chain.Token
}

func (pausedToken) Transfer(_, _ chain.Address, _ *uint256.Int) error {
	return errors.New("token paused")
}

func uint256From(t *testing.T, v uint64) *uint256.Int {
	t.Helper()
	return uint256.NewInt(v)
}
