package registry

import (
	"errors"

	"namechain/crypto"
)

// ErrUnauthorized is returned when a mutation is attempted without a verified
// signer.
var ErrUnauthorized = errors.New("registry: origin is not a signed account")

// Origin describes who dispatched a call. The dispatcher builds it after
// verifying the transaction signature; the registry only inspects it.
type Origin struct {
	signer *crypto.Account
}

// SignedOrigin is the origin of a call whose signature recovered to acct.
func SignedOrigin(acct crypto.Account) Origin {
	return Origin{signer: &acct}
}

// NoneOrigin is the origin of an unsigned call.
func NoneOrigin() Origin {
	return Origin{}
}

// EnsureSigned returns the signing account or ErrUnauthorized.
func EnsureSigned(origin Origin) (crypto.Account, error) {
	if origin.signer == nil {
		return crypto.Account{}, ErrUnauthorized
	}
	return *origin.signer, nil
}
