package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountPrefix is the human-readable part of bech32 signer account strings.
const AccountPrefix = "nreg"

// ErrInvalidAccount is returned when an account string cannot be decoded.
var ErrInvalidAccount = errors.New("crypto: invalid account")

// Account identifies a transaction signer. It is derived from the signer's
// secp256k1 public key the same way Ethereum derives addresses, but is shown
// in bech32 form so it is not mistaken for a registry key.
type Account common.Address

// AccountFromPubKey derives the account of the given public key.
func AccountFromPubKey(pub *ecdsa.PublicKey) Account {
	return Account(crypto.PubkeyToAddress(*pub))
}

func (a Account) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AccountPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw 20 account bytes.
func (a Account) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

// DecodeAccount parses a bech32 account string carrying AccountPrefix.
func DecodeAccount(s string) (Account, error) {
	prefix, decoded, err := bech32.Decode(s)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if prefix != AccountPrefix {
		return Account{}, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAccount, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if len(conv) != common.AddressLength {
		return Account{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAccount, common.AddressLength, len(conv))
	}
	var out Account
	copy(out[:], conv)
	return out, nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Account returns the signer account controlled by the key.
func (k *PrivateKey) Account() Account {
	return AccountFromPubKey(&k.PrivateKey.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
