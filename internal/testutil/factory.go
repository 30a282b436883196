package testutil

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/matchfund/internal/chain"
)

// RoundBase is the numeric value of the first handle a SequentialFactory deploys.
const RoundBase = 0x1001

// SequentialFactory deploys round handles 0x...1001, 0x...1002, ... so tests
// and golden files can name rounds without computing CREATE addresses.
type SequentialFactory struct {
	mu       sync.Mutex
	deployed int
	failAt   int
}

var _ chain.RoundFactory = (*SequentialFactory)(nil)

// NewSequentialFactory creates a factory that has already deployed n rounds.
func NewSequentialFactory(n int) *SequentialFactory {
	return &SequentialFactory{deployed: n, failAt: -1}
}

// FailAt makes the deployment with zero-based index n fail.
func (f *SequentialFactory) FailAt(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt = n
}

// Deploy returns RoundHandle(deployed).
func (f *SequentialFactory) Deploy(core, token chain.Address) (chain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deployed == f.failAt {
		return chain.ZeroAddress, fmt.Errorf("deployment %d refused", f.deployed)
	}
	handle := RoundHandle(f.deployed)
	f.deployed++
	return handle, nil
}

// Deployed returns how many rounds have been deployed.
func (f *SequentialFactory) Deployed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deployed
}

// RoundHandle returns the handle of the n-th (zero-based) sequential deployment.
func RoundHandle(n int) chain.Address {
	return Addr(RoundBase + int64(n))
}

// Addr returns the address whose numeric value is n.
func Addr(n int64) chain.Address {
	return common.BigToAddress(big.NewInt(n))
}

// Well-known actors used across tests.
var (
	CoreAddr        = Addr(0xC0)
	OwnerAddr       = Addr(0xA1)
	CoordinatorAddr = Addr(0xA2)
	WitnessAddr     = Addr(0xA3)
	OutsiderAddr    = Addr(0xEE)
	TokenAddr       = Addr(0x70)
)

// SequentialFactoryFunc is an engine.FactoryFunc over SequentialFactory.
func SequentialFactoryFunc(n uint64) chain.RoundFactory {
	return NewSequentialFactory(int(n))
}
