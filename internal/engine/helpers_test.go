package engine

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
	"github.com/roach88/matchfund/internal/store"
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

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testOptions makes handles and flow tokens predictable.
func testOptions(extra ...Option) []Option {
	return append([]Option{
		WithLogger(quietLogger()),
		WithFactory(testutil.SequentialFactoryFunc),
		WithFlowGenerator(testutil.NewFixedFlowGenerator("")),
	}, extra...)
}

func newTestEngine(t *testing.T, s *store.Store, extra ...Option) *Engine {
	t.Helper()
	e, err := Open(context.Background(), s, testOptions(extra...)...)
	require.NoError(t, err)
	return e
}

func deployArgs(duration uint64) ir.IRObject {
	return ir.IRObject{
		"core":        ir.IRString(core.Hex()),
		"owner":       ir.IRString(owner.Hex()),
		"coordinator": ir.IRString(coordinator.Hex()),
		"witness":     ir.IRString(witness.Hex()),
		"token":       ir.IRString(token.Hex()),
		"duration":    ir.IRString(strconv.FormatUint(duration, 10)),
	}
}

// do executes op and fails the test on engine errors. Rejected operations
// are returned as outcomes.
func do(t *testing.T, e *Engine, caller chain.Address, op string, args ir.IRObject) Result {
	t.Helper()
	res, err := e.Execute(context.Background(), Request{Op: op, Caller: caller, Args: args})
	require.NoError(t, err, "%s by %s", op, caller.Hex())
	return res
}

// succeed is do that also requires the operation to commit.
func succeed(t *testing.T, e *Engine, caller chain.Address, op string, args ir.IRObject) Result {
	t.Helper()
	res := do(t, e, caller, op, args)
	require.True(t, res.Outcome.Succeeded(), "%s: %s %s", op, res.Outcome.Case, res.Outcome.Message)
	return res
}

func deploy(t *testing.T, e *Engine, duration uint64) Result {
	t.Helper()
	return succeed(t, e, owner, OpDeploy, deployArgs(duration))
}

func advance(t *testing.T, e *Engine, n uint64) {
	t.Helper()
	_, err := e.Advance(context.Background(), n)
	require.NoError(t, err)
}

func kinds(res Result) []string {
	out := make([]string, len(res.Notifications))
	for i, n := range res.Notifications {
		out[i] = n.Kind
	}
	return out
}

func balanceOf(t *testing.T, e *Engine, holder chain.Address) string {
	t.Helper()
	tok, err := e.Ledger().Token(token)
	require.NoError(t, err)
	return tok.BalanceOf(holder).Dec()
}

// finalizeFirstRound runs one full round: fund, close, attest, confirm.
// Returns the transfer result.
func finalizeFirstRound(t *testing.T, e *Engine, funds string) Result {
	t.Helper()
	deploy(t, e, 10)
	succeed(t, e, owner, OpFund, ir.IRObject{"amount": ir.IRString(funds)})
	succeed(t, e, outsider, OpContribute, ir.IRObject{"amount": ir.IRString("25")})
	advance(t, e, 10)
	succeed(t, e, coordinator, OpEndRound, nil)
	succeed(t, e, witness, OpAttest, ir.IRObject{"identifier": ir.IRString("cid-1")})
	succeed(t, e, owner, OpConfirmPrevious, ir.IRObject{"valid": ir.IRBool(true)})
	return succeed(t, e, owner, OpTransfer, nil)
}
