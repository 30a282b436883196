package chain

import (
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// RoundFactory deploys round instances.
//
// Deploy is given the core's own handle and the funding token the new round is
// bound to, and returns the handle of the new instance.
type RoundFactory interface {
	Deploy(core, token Address) (Address, error)
}

// CreateFactory derives round handles the way a contract deployment would:
// crypto.CreateAddress(core, nonce), with the nonce incremented per deploy.
// Handles are therefore unique per core and reproducible from the nonce alone.
//
// Thread-safety: safe for concurrent use.
type CreateFactory struct {
	mu    sync.Mutex
	nonce uint64
}

var _ RoundFactory = (*CreateFactory)(nil)

// NewCreateFactory creates a factory whose next deploy uses nonce.
func NewCreateFactory(nonce uint64) *CreateFactory {
	return &CreateFactory{nonce: nonce}
}

// Deploy returns the next derived handle.
func (f *CreateFactory) Deploy(core, _ Address) (Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr := crypto.CreateAddress(core, f.nonce)
	f.nonce++
	return addr, nil
}

// Nonce returns the nonce the next deploy will use.
func (f *CreateFactory) Nonce() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce
}
