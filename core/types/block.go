package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockHeader commits to the state produced by one transition of the ledger.
// Its hash is the version token used to address historical state.
type BlockHeader struct {
	Height     uint64      `json:"height"`
	Timestamp  uint64      `json:"timestamp"`
	ParentHash common.Hash `json:"parentHash"`
	StateRoot  common.Hash `json:"stateRoot"` // trie root after the block's transactions
	TxRoot     common.Hash `json:"txRoot"`
	RefTime    uint64      `json:"refTime"` // sum of declared call weights
}

// Block is a header plus the transactions and receipts that produced it.
type Block struct {
	Header       *BlockHeader   `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Receipts     []*Receipt     `json:"receipts"`
}

// NewBlock creates a new block from a header and a set of transactions.
func NewBlock(header *BlockHeader, txs []*Transaction, receipts []*Receipt) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
		Receipts:     receipts,
	}
}

// Hash returns the keccak256 digest of the RLP-encoded header.
func (h *BlockHeader) Hash() (common.Hash, error) {
	payload, err := rlp.EncodeToBytes(h)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(payload), nil
}
