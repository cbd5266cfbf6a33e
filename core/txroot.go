package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"namechain/core/types"
)

// ComputeTxRoot returns the root of a throwaway trie mapping each
// transaction's RLP-encoded index to its canonical encoding.
func ComputeTxRoot(txs []*types.Transaction) (common.Hash, error) {
	if len(txs) == 0 {
		return gethtypes.EmptyRootHash, nil
	}
	trieDB := triedb.NewDatabase(rawdb.NewDatabase(memorydb.New()), triedb.HashDefaults)
	tr, err := gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	for i, tx := range txs {
		payload, err := tx.MarshalBinary()
		if err != nil {
			return common.Hash{}, err
		}
		if err := tr.Update(rlp.AppendUint64(nil, uint64(i)), payload); err != nil {
			return common.Hash{}, err
		}
	}
	return tr.Hash(), nil
}
