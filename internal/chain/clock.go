package chain

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// LedgerClock is the read-only block height the core compares deadlines against.
// Implementations must never return a smaller value than a previous call.
type LedgerClock interface {
	BlockNumber() uint64
}

// ErrClockRegression is returned when a ManualClock would move backwards.
var ErrClockRegression = errors.New("ledger clock cannot move backwards")

// ErrClockOverflow is returned when advancing would wrap the block height.
var ErrClockOverflow = errors.New("ledger clock overflow")

// ManualClock is a LedgerClock driven explicitly by its owner.
// The CLI persists its height in the store; the harness advances it per step.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualClock struct {
	mu     sync.Mutex
	height uint64
}

// NewManualClock creates a clock at the given height.
func NewManualClock(height uint64) *ManualClock {
	return &ManualClock{height: height}
}

// BlockNumber returns the current height.
func (c *ManualClock) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Advance moves the clock forward by n blocks and returns the new height.
func (c *ManualClock) Advance(n uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > math.MaxUint64-c.height {
		return c.height, fmt.Errorf("advance %d from %d: %w", n, c.height, ErrClockOverflow)
	}
	c.height += n
	return c.height, nil
}

// Set moves the clock to an absolute height. Heights below the current one
// are rejected with ErrClockRegression.
func (c *ManualClock) Set(height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height < c.height {
		return fmt.Errorf("set %d below %d: %w", height, c.height, ErrClockRegression)
	}
	c.height = height
	return nil
}
