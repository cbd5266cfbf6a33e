package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"namechain/core/events"
	"namechain/core/registry"
	"namechain/core/types"
	"namechain/storage"
	"namechain/storage/trie"
)

// ErrUnknownCall is returned for transaction types the dispatcher does not route.
var ErrUnknownCall = errors.New("core: unknown call type")

// StateProcessor applies transactions to the pending state trie. It is the
// only writer of state and is driven by Node under its state lock.
type StateProcessor struct {
	Trie          *trie.Trie
	registry      *registry.Store
	events        *events.Buffer
	committedRoot common.Hash
}

// NewStateProcessor opens a writable trie at root.
func NewStateProcessor(db storage.Database, root common.Hash, weights registry.WeightInfo) (*StateProcessor, error) {
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, err
	}
	buf := &events.Buffer{}
	return &StateProcessor{
		Trie:          tr,
		registry:      registry.NewStore(weights, buf),
		events:        buf,
		committedRoot: tr.Root(),
	}, nil
}

// CurrentRoot returns the last committed state root.
func (sp *StateProcessor) CurrentRoot() common.Hash {
	return sp.committedRoot
}

// PendingRoot returns the root of the trie including in-memory mutations.
func (sp *StateProcessor) PendingRoot() common.Hash {
	return sp.Trie.Hash()
}

// Weights returns the declared cost table used for scheduling.
func (sp *StateProcessor) Weights() registry.WeightInfo {
	return sp.registry.Weights()
}

// ResetToRoot discards any in-memory changes and reloads the trie at the
// provided root hash.
func (sp *StateProcessor) ResetToRoot(root common.Hash) error {
	if err := sp.Trie.Reset(root); err != nil {
		return err
	}
	sp.committedRoot = sp.Trie.Root()
	sp.events.Drain()
	return nil
}

// Commit persists the current trie contents and returns the resulting state
// root.
func (sp *StateProcessor) Commit(blockNumber uint64) (common.Hash, error) {
	root, err := sp.Trie.Commit(blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	sp.committedRoot = root
	return root, nil
}

// originOf authenticates the transaction. Missing or unrecoverable signatures
// yield the none origin, which every mutating call rejects.
func originOf(tx *types.Transaction) registry.Origin {
	sender, err := tx.Sender()
	if err != nil {
		return registry.NoneOrigin()
	}
	return registry.SignedOrigin(sender)
}

// ApplyTransaction dispatches tx against the pending state. The receipt
// always reports the declared weight; on error the state is unchanged and the
// receipt carries no events.
func (sp *StateProcessor) ApplyTransaction(tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("core: nil transaction")
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	weight := registry.CallWeight(sp.registry.Weights(), tx)
	receipt := &types.Receipt{
		TxHash:  hash,
		Status:  types.ReceiptStatusSuccess,
		RefTime: weight.RefTime,
		Events:  []types.Event{},
	}

	var applyErr error
	switch tx.Type {
	case types.TxTypeSetUsername:
		applyErr = sp.registry.SetUsername(sp.Trie, originOf(tx), registry.KeyFromAddress(tx.Address), tx.Username)
	default:
		applyErr = fmt.Errorf("%w: 0x%02x", ErrUnknownCall, byte(tx.Type))
	}
	if applyErr != nil {
		sp.events.Drain()
		receipt.Status = types.ReceiptStatusFailed
		receipt.Error = applyErr.Error()
		return receipt, applyErr
	}
	receipt.Events = sp.events.Drain()
	return receipt, nil
}
