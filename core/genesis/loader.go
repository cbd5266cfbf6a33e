package genesis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"namechain/core/events"
	"namechain/core/registry"
	"namechain/core/types"
	"namechain/crypto"
	"namechain/storage"
	"namechain/storage/trie"
)

// BuildGenesisFromSpec executes the spec against an empty state trie and
// returns the height-0 block. Entries are applied in file order through the
// registry, so later entries for the same address win.
func BuildGenesisFromSpec(spec *GenesisSpec, db storage.Database) (*types.Block, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}

	stateTrie, err := trie.NewTrie(db, common.Hash{})
	if err != nil {
		return nil, fmt.Errorf("init state trie: %w", err)
	}

	var emitted events.Buffer
	store := registry.NewStore(nil, &emitted)
	// Genesis entries are attributed to the zero account.
	origin := registry.SignedOrigin(crypto.Account{})
	for i, entry := range spec.Usernames {
		if err := store.SetUsername(stateTrie, origin, entry.key, entry.value); err != nil {
			return nil, fmt.Errorf("usernames[%d]: %w", i, err)
		}
	}

	root, err := stateTrie.Commit(0)
	if err != nil {
		return nil, fmt.Errorf("commit state: %w", err)
	}

	header := &types.BlockHeader{
		Height:     0,
		Timestamp:  uint64(spec.GenesisTimestamp().Unix()),
		ParentHash: common.Hash{},
		StateRoot:  root,
		TxRoot:     gethtypes.EmptyRootHash,
	}
	var receipts []*types.Receipt
	if emitted.Len() > 0 {
		receipts = append(receipts, &types.Receipt{
			Status: types.ReceiptStatusSuccess,
			Events: emitted.Drain(),
		})
	}
	return types.NewBlock(header, nil, receipts), nil
}
