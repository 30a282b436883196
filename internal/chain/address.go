package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a role holder, a round instance, the core or a token.
type Address = common.Address

// ZeroAddress is the null identity. A role held by ZeroAddress is vacated.
var ZeroAddress = Address{}

// ParseAddress parses a 0x-prefixed hex address.
// Unlike common.HexToAddress it rejects malformed or unprefixed input instead
// of silently truncating it.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !has0xPrefix(s) || !common.IsHexAddress(s) {
		return ZeroAddress, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// MustParseAddress is like ParseAddress but panics on error.
// Use only in tests or for compile-time constants.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// IsZero reports whether addr is the null identity.
func IsZero(addr Address) bool {
	return addr == ZeroAddress
}
