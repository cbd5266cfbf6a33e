package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"namechain/core/registry"
	"namechain/storage/trie"
)

// ErrSnapshotUnavailable is returned when a version token does not name a
// committed block, or the block's state has been pruned.
var ErrSnapshotUnavailable = errors.New("core: state snapshot unavailable")

// Snapshot is a read-only handle on the state committed by one block.
// Snapshots never change, so a handle may be read from any goroutine while
// new blocks are produced.
type Snapshot struct {
	BlockHash common.Hash
	Height    uint64
	StateRoot common.Hash

	view *trie.Trie
}

// BestHash returns the hash of the most recently committed block.
func (n *Node) BestHash() common.Hash {
	return n.chain.Tip()
}

// Snapshot opens the state committed by the block with hash at.
func (n *Node) Snapshot(at common.Hash) (*Snapshot, error) {
	block, err := n.chain.GetBlockByHash(at)
	if errors.Is(err, ErrBlockNotFound) {
		return nil, fmt.Errorf("%w: unknown block %x", ErrSnapshotUnavailable, at)
	}
	if err != nil {
		return nil, err
	}
	view, err := trie.OpenReadOnly(n.db, block.Header.StateRoot)
	if errors.Is(err, trie.ErrMissingRoot) {
		return nil, fmt.Errorf("%w: state of block %x pruned", ErrSnapshotUnavailable, at)
	}
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		BlockHash: at,
		Height:    block.Header.Height,
		StateRoot: block.Header.StateRoot,
		view:      view,
	}, nil
}

// Username reads key from a snapshot returned by Snapshot.
func (n *Node) Username(snap *Snapshot, key registry.IdentityKey) ([]byte, bool, error) {
	if snap == nil || snap.view == nil {
		return nil, false, fmt.Errorf("core: snapshot not resolved")
	}
	return registry.Username(snap.view, key)
}

// UsernameAt resolves at (the best block when nil) and reads key.
func (n *Node) UsernameAt(at *common.Hash, key registry.IdentityKey) ([]byte, bool, error) {
	hash := n.BestHash()
	if at != nil {
		hash = *at
	}
	snap, err := n.Snapshot(hash)
	if err != nil {
		return nil, false, err
	}
	return n.Username(snap, key)
}
