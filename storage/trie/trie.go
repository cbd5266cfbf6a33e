package trie

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"namechain/storage"
)

// ErrMissingRoot is returned when a trie is opened at a root whose nodes are
// not present in the node database.
var ErrMissingRoot = errors.New("trie: state root not available")

// Trie wraps go-ethereum's Merkle Patricia trie. A Trie is either writable
// (created by NewTrie and advanced with Commit) or a read-only view opened at
// a committed root with OpenReadOnly. Committed roots are never modified; a
// commit always produces a new root and leaves earlier roots readable.
//
// Trie is not safe for concurrent use. Independent read-only views over the
// same node database may be used from different goroutines.
type Trie struct {
	store    storage.Database
	trieDB   *triedb.Database
	trie     *gethtrie.Trie
	root     common.Hash
	readOnly bool
}

// NewTrie creates a writable trie backed by the provided storage at root. A
// zero or empty root denotes the empty trie.
func NewTrie(store storage.Database, root common.Hash) (*Trie, error) {
	return open(store, root, false)
}

// OpenReadOnly opens a view of a committed root. Update and Commit fail on the
// returned trie.
func OpenReadOnly(store storage.Database, root common.Hash) (*Trie, error) {
	return open(store, root, true)
}

func open(store storage.Database, root common.Hash, readOnly bool) (*Trie, error) {
	if root == (common.Hash{}) {
		root = gethtypes.EmptyRootHash
	}
	trieDB := store.TrieDB()
	underlying, err := gethtrie.New(gethtrie.TrieID(root), trieDB)
	if err != nil {
		return nil, fmt.Errorf("%w: %x: %v", ErrMissingRoot, root, err)
	}
	return &Trie{
		store:    store,
		trieDB:   trieDB,
		trie:     underlying,
		root:     root,
		readOnly: readOnly,
	}, nil
}

// Get retrieves the value stored under key. A nil value means the key is unset.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(key)
}

// Update inserts or replaces the value stored under key.
func (t *Trie) Update(key, value []byte) error {
	if t.readOnly {
		return fmt.Errorf("trie: update on read-only view of %x", t.root)
	}
	return t.trie.Update(key, value)
}

// Hash returns the root hash including uncommitted mutations.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

// Root returns the last committed root hash.
func (t *Trie) Root() common.Hash {
	return t.root
}

// Reset discards in-memory changes and reloads the trie at root.
func (t *Trie) Reset(root common.Hash) error {
	if root == (common.Hash{}) {
		root = gethtypes.EmptyRootHash
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(root), t.trieDB)
	if err != nil {
		return fmt.Errorf("%w: %x: %v", ErrMissingRoot, root, err)
	}
	t.trie = underlying
	t.root = root
	return nil
}

// Commit writes the pending mutations to the node database and returns the
// new root. The trie is reopened at the new root so it can keep advancing.
func (t *Trie) Commit(blockNumber uint64) (common.Hash, error) {
	if t.readOnly {
		return common.Hash{}, fmt.Errorf("trie: commit on read-only view of %x", t.root)
	}
	parent := t.root
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, parent, blockNumber, merged, nil); err != nil {
			return common.Hash{}, fmt.Errorf("trie: update node db: %w", err)
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, fmt.Errorf("trie: flush node db: %w", err)
		}
	}
	if err := t.Reset(newRoot); err != nil {
		return common.Hash{}, err
	}
	return newRoot, nil
}
