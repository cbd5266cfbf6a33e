package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	nccrypto "namechain/crypto"
)

// TxType selects the call a transaction dispatches to.
type TxType byte

const (
	TxTypeSetUsername TxType = 0x01 // usernameRegistry.setUsername(ethereum_address, username)
)

// ErrMissingSignature is returned by Sender for transactions that carry no
// signature at all.
var ErrMissingSignature = errors.New("types: transaction is not signed")

// ErrInvalidSignature is returned by Sender when the signature does not
// recover to a public key.
var ErrInvalidSignature = errors.New("types: invalid transaction signature")

// Transaction is a signed call submitted to the ledger. Only the fields
// covered by SigningHash are authenticated; the signer is recovered from the
// signature rather than declared.
type Transaction struct {
	Type      TxType         `json:"type"`
	Nonce     uint64         `json:"nonce"`
	Address   common.Address `json:"ethereumAddress"`
	Username  hexutil.Bytes  `json:"username"`
	Signature hexutil.Bytes  `json:"signature,omitempty"`

	sender *nccrypto.Account
}

type unsignedTx struct {
	Type     TxType
	Nonce    uint64
	Address  common.Address
	Username []byte
}

type encodedTx struct {
	Type      TxType
	Nonce     uint64
	Address   common.Address
	Username  []byte
	Signature []byte
}

// NewSetUsername builds an unsigned setUsername call.
func NewSetUsername(nonce uint64, address common.Address, username []byte) *Transaction {
	return &Transaction{
		Type:     TxTypeSetUsername,
		Nonce:    nonce,
		Address:  address,
		Username: append(hexutil.Bytes(nil), username...),
	}
}

// SigningHash is the keccak256 digest of the RLP-encoded unsigned fields.
func (tx *Transaction) SigningHash() (common.Hash, error) {
	payload, err := rlp.EncodeToBytes(unsignedTx{tx.Type, tx.Nonce, tx.Address, tx.Username})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(payload), nil
}

// Hash identifies the transaction including its signature.
func (tx *Transaction) Hash() (common.Hash, error) {
	payload, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(payload), nil
}

// MarshalBinary returns the canonical RLP encoding of the transaction.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	return rlp.EncodeToBytes(encodedTx{tx.Type, tx.Nonce, tx.Address, tx.Username, tx.Signature})
}

// UnmarshalBinary decodes the canonical RLP encoding.
func (tx *Transaction) UnmarshalBinary(data []byte) error {
	var dec encodedTx
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return fmt.Errorf("types: decode transaction: %w", err)
	}
	*tx = Transaction{
		Type:      dec.Type,
		Nonce:     dec.Nonce,
		Address:   dec.Address,
		Username:  dec.Username,
		Signature: dec.Signature,
	}
	return nil
}

// Sign attaches a recoverable secp256k1 signature over SigningHash.
func (tx *Transaction) Sign(key *nccrypto.PrivateKey) error {
	if key == nil {
		return errors.New("types: nil signing key")
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash.Bytes(), key.PrivateKey)
	if err != nil {
		return err
	}
	tx.Signature = sig
	tx.sender = nil
	return nil
}

// Sender recovers the signer account. The result is cached.
func (tx *Transaction) Sender() (nccrypto.Account, error) {
	if tx.sender != nil {
		return *tx.sender, nil
	}
	if len(tx.Signature) == 0 {
		return nccrypto.Account{}, ErrMissingSignature
	}
	if len(tx.Signature) != crypto.SignatureLength {
		return nccrypto.Account{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(tx.Signature))
	}
	r := new(big.Int).SetBytes(tx.Signature[:32])
	sv := new(big.Int).SetBytes(tx.Signature[32:64])
	if !crypto.ValidateSignatureValues(tx.Signature[64], r, sv, true) {
		return nccrypto.Account{}, fmt.Errorf("%w: signature values out of range or not low-s", ErrInvalidSignature)
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return nccrypto.Account{}, err
	}
	pub, err := crypto.SigToPub(hash.Bytes(), tx.Signature)
	if err != nil {
		return nccrypto.Account{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	acct := nccrypto.AccountFromPubKey(pub)
	tx.sender = &acct
	return acct, nil
}

// ReplayKey identifies the signed payload independent of signature
// encoding: keccak256(sender ‖ SigningHash). Two transactions with the same
// key are the same write by the same signer.
func (tx *Transaction) ReplayKey() (common.Hash, error) {
	sender, err := tx.Sender()
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(sender.Bytes(), hash.Bytes()), nil
}
