package registry

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrInvalidAddress is returned when a string is not a 20-byte hex address.
var ErrInvalidAddress = errors.New("registry: invalid ethereum address")

// IdentityKey is the 20-byte Ethereum-style address a username is stored
// under. Every 20-byte pattern is a valid key, including the zero address.
type IdentityKey [common.AddressLength]byte

// ParseIdentityKey accepts exactly 40 hex digits, with or without a 0x prefix.
// Mixed-case input is accepted without checksum validation.
func ParseIdentityKey(s string) (IdentityKey, error) {
	if !common.IsHexAddress(s) {
		return IdentityKey{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return IdentityKey(common.HexToAddress(s)), nil
}

// KeyFromAddress converts a go-ethereum address.
func KeyFromAddress(addr common.Address) IdentityKey {
	return IdentityKey(addr)
}

// Address returns the key as a go-ethereum address.
func (k IdentityKey) Address() common.Address {
	return common.Address(k)
}

// Compare orders keys byte-wise.
func (k IdentityKey) Compare(other IdentityKey) int {
	return bytes.Compare(k[:], other[:])
}

// String renders the key as lowercase 0x-prefixed hex.
func (k IdentityKey) String() string {
	return hexutil.Encode(k[:])
}
