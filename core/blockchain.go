package core

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"namechain/core/types"
	"namechain/storage"
)

var (
	genesisKey     = []byte("genesis")
	tipKey         = []byte("tip")
	blockPrefix    = []byte("b")
	heightPrefix   = []byte("h")
	txLookupPrefix = []byte("t")
	replayPrefix   = []byte("p")
)

// ErrBlockNotFound is returned when no block with the requested hash or
// height has been committed.
var ErrBlockNotFound = errors.New("core: block not found")

func blockKey(hash common.Hash) []byte {
	return append(append([]byte{}, blockPrefix...), hash.Bytes()...)
}

func heightKey(height uint64) []byte {
	buf := make([]byte, len(heightPrefix)+8)
	copy(buf, heightPrefix)
	binary.BigEndian.PutUint64(buf[len(heightPrefix):], height)
	return buf
}

func txLookupKey(hash common.Hash) []byte {
	return append(append([]byte{}, txLookupPrefix...), hash.Bytes()...)
}

func replayKey(key common.Hash) []byte {
	return append(append([]byte{}, replayPrefix...), key.Bytes()...)
}

// Blockchain is the append-only sequence of committed blocks. Each block
// header names the state root it produced, so the chain doubles as the index
// of immutable state snapshots; the tip is the current one.
type Blockchain struct {
	db     storage.Database
	tip    common.Hash
	height uint64
	mu     sync.RWMutex
}

// NewBlockchain opens the chain stored in db, initialising it with genesis
// when the database is empty. The genesis block is ignored when a chain
// already exists.
func NewBlockchain(db storage.Database, genesis *types.Block) (*Blockchain, error) {
	bc := &Blockchain{db: db}

	raw, err := db.Get(tipKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if genesis == nil || genesis.Header == nil {
			return nil, fmt.Errorf("core: empty database and no genesis block")
		}
		if genesis.Header.Height != 0 {
			return nil, fmt.Errorf("core: genesis block must have height 0, got %d", genesis.Header.Height)
		}
		hash, err := bc.writeBlock(genesis)
		if err != nil {
			return nil, fmt.Errorf("core: store genesis: %w", err)
		}
		if err := db.Put(genesisKey, hash.Bytes()); err != nil {
			return nil, err
		}
		bc.tip = hash
		bc.height = 0
	case err != nil:
		return nil, fmt.Errorf("core: load tip: %w", err)
	default:
		bc.tip = common.BytesToHash(raw)
		block, err := bc.GetBlockByHash(bc.tip)
		if err != nil {
			return nil, fmt.Errorf("core: load tip block %x: %w", bc.tip, err)
		}
		bc.height = block.Header.Height
	}
	return bc, nil
}

func (bc *Blockchain) writeBlock(b *types.Block) (common.Hash, error) {
	hash, err := b.Header.Hash()
	if err != nil {
		return common.Hash{}, err
	}
	encoded, err := json.Marshal(b)
	if err != nil {
		return common.Hash{}, err
	}
	if err := bc.db.Put(blockKey(hash), encoded); err != nil {
		return common.Hash{}, err
	}
	if err := bc.db.Put(heightKey(b.Header.Height), hash.Bytes()); err != nil {
		return common.Hash{}, err
	}
	for _, tx := range b.Transactions {
		txHash, err := tx.Hash()
		if err != nil {
			return common.Hash{}, err
		}
		if err := bc.db.Put(txLookupKey(txHash), hash.Bytes()); err != nil {
			return common.Hash{}, err
		}
		if key, err := tx.ReplayKey(); err == nil {
			if err := bc.db.Put(replayKey(key), hash.Bytes()); err != nil {
				return common.Hash{}, err
			}
		}
	}
	if err := bc.db.Put(tipKey, hash.Bytes()); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// AddBlock appends a block that extends the current tip.
func (bc *Blockchain) AddBlock(b *types.Block) (common.Hash, error) {
	if b == nil || b.Header == nil {
		return common.Hash{}, fmt.Errorf("core: nil block")
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if b.Header.ParentHash != bc.tip {
		return common.Hash{}, fmt.Errorf("core: block parent %x does not match tip %x", b.Header.ParentHash, bc.tip)
	}
	if b.Header.Height != bc.height+1 {
		return common.Hash{}, fmt.Errorf("core: block height %d does not follow %d", b.Header.Height, bc.height)
	}
	hash, err := bc.writeBlock(b)
	if err != nil {
		return common.Hash{}, err
	}
	bc.tip = hash
	bc.height = b.Header.Height
	return hash, nil
}

// GetBlockByHash retrieves a block from the database by its hash.
func (bc *Blockchain) GetBlockByHash(hash common.Hash) (*types.Block, error) {
	blockBytes, err := bc.db.Get(blockKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %x", ErrBlockNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	var block types.Block
	if err := json.Unmarshal(blockBytes, &block); err != nil {
		return nil, fmt.Errorf("core: decode block %x: %w", hash, err)
	}
	return &block, nil
}

// GetBlockHash returns the hash of the block committed at height.
func (bc *Blockchain) GetBlockHash(height uint64) (common.Hash, error) {
	raw, err := bc.db.Get(heightKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		return common.Hash{}, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

// GetBlockByHeight retrieves a block by its height.
func (bc *Blockchain) GetBlockByHeight(height uint64) (*types.Block, error) {
	hash, err := bc.GetBlockHash(height)
	if err != nil {
		return nil, err
	}
	return bc.GetBlockByHash(hash)
}

// PayloadIncluded reports whether a transaction with the given ReplayKey has
// been committed, whatever its signature encoding.
func (bc *Blockchain) PayloadIncluded(key common.Hash) (bool, error) {
	return bc.db.Has(replayKey(key))
}

// TransactionBlock returns the hash of the block that included txHash.
func (bc *Blockchain) TransactionBlock(txHash common.Hash) (common.Hash, bool, error) {
	raw, err := bc.db.Get(txLookupKey(txHash))
	if errors.Is(err, storage.ErrNotFound) {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(raw), true, nil
}

func (bc *Blockchain) GetHeight() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}

func (bc *Blockchain) Tip() common.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Genesis returns the hash of the height-0 block.
func (bc *Blockchain) Genesis() (common.Hash, error) {
	raw, err := bc.db.Get(genesisKey)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}
