package chain

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
)

// Token is a funding token as seen by the core.
//
// Transfer moves value between accounts the caller has custody of. The core
// has custody of its own account and of every round instance it deployed.
type Token interface {
	Address() Address
	BalanceOf(holder Address) *uint256.Int
	Transfer(from, to Address, amount *uint256.Int) error
}

// TokenResolver resolves a token address to a Token.
type TokenResolver interface {
	Token(addr Address) (Token, error)
}

var (
	// ErrNoToken is returned when resolving the zero token address.
	ErrNoToken = errors.New("no funding token configured")

	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBalanceOverflow is returned when a credit would exceed 2^256-1.
	ErrBalanceOverflow = errors.New("balance overflow")

	// ErrZeroRecipient is returned when crediting the zero address.
	ErrZeroRecipient = errors.New("transfer to the zero address")
)

// Balances is an exportable view of a MemoryLedger: token -> holder -> decimal amount.
type Balances map[Address]map[Address]string

// MemoryLedger holds every MemoryToken known to a process.
// Tokens are created on first use, so any non-zero address resolves.
//
// Thread-safety: one mutex guards all tokens, so a Transfer is atomic with
// respect to every other ledger operation.
type MemoryLedger struct {
	mu     sync.Mutex
	tokens map[Address]map[Address]*uint256.Int
}

var _ TokenResolver = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{tokens: make(map[Address]map[Address]*uint256.Int)}
}

// Token resolves addr to a token backed by this ledger.
func (l *MemoryLedger) Token(addr Address) (Token, error) {
	if IsZero(addr) {
		return nil, ErrNoToken
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts(addr)
	return &memoryToken{ledger: l, addr: addr}, nil
}

// Mint credits amount of token to holder.
func (l *MemoryLedger) Mint(token, holder Address, amount *uint256.Int) error {
	if IsZero(token) {
		return ErrNoToken
	}
	if IsZero(holder) {
		return ErrZeroRecipient
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit(l.accounts(token), holder, amount)
}

// Export returns a copy of every non-zero balance. Tokens without a
// non-zero balance are omitted, so reads never change the export.
func (l *MemoryLedger) Export() Balances {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(Balances, len(l.tokens))
	for token, accounts := range l.tokens {
		view := make(map[Address]string, len(accounts))
		for holder, bal := range accounts {
			if bal.IsZero() {
				continue
			}
			view[holder] = bal.Dec()
		}
		if len(view) == 0 {
			continue
		}
		out[token] = view
	}
	return out
}

// Import replaces the ledger contents with b.
func (l *MemoryLedger) Import(b Balances) error {
	tokens := make(map[Address]map[Address]*uint256.Int, len(b))
	for token, view := range b {
		accounts := make(map[Address]*uint256.Int, len(view))
		for holder, dec := range view {
			amount, err := uint256.FromDecimal(dec)
			if err != nil {
				return fmt.Errorf("import balance of %s in %s: %w", holder.Hex(), token.Hex(), err)
			}
			accounts[holder] = amount
		}
		tokens[token] = accounts
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = tokens
	return nil
}

// Tokens returns the known token addresses in byte order.
func (l *MemoryLedger) Tokens() []Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Address, 0, len(l.tokens))
	for addr := range l.tokens {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// accounts returns the balance map for token, creating it if needed.
// Caller must hold l.mu.
func (l *MemoryLedger) accounts(token Address) map[Address]*uint256.Int {
	accounts, ok := l.tokens[token]
	if !ok {
		accounts = make(map[Address]*uint256.Int)
		l.tokens[token] = accounts
	}
	return accounts
}

// credit adds amount to holder. Caller must hold l.mu.
func (l *MemoryLedger) credit(accounts map[Address]*uint256.Int, holder Address, amount *uint256.Int) error {
	bal, ok := accounts[holder]
	if !ok {
		bal = new(uint256.Int)
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("credit %s to %s: %w", amount.Dec(), holder.Hex(), ErrBalanceOverflow)
	}
	accounts[holder] = sum
	return nil
}

type memoryToken struct {
	ledger *MemoryLedger
	addr   Address
}

func (t *memoryToken) Address() Address {
	return t.addr
}

func (t *memoryToken) BalanceOf(holder Address) *uint256.Int {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	bal, ok := t.ledger.accounts(t.addr)[holder]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(bal)
}

func (t *memoryToken) Transfer(from, to Address, amount *uint256.Int) error {
	if IsZero(to) {
		return ErrZeroRecipient
	}
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()

	accounts := t.ledger.accounts(t.addr)
	bal, ok := accounts[from]
	if !ok {
		bal = new(uint256.Int)
	}
	if bal.Lt(amount) {
		return fmt.Errorf("transfer %s from %s: %w", amount.Dec(), from.Hex(), ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}

	// Credit first so an overflow leaves the sender untouched.
	if err := t.ledger.credit(accounts, to, amount); err != nil {
		return err
	}
	accounts[from] = new(uint256.Int).Sub(bal, amount)
	return nil
}
