package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"namechain/core/genesis"
	"namechain/core/registry"
	"namechain/core/types"
	"namechain/observability"
	"namechain/storage"
)

const defaultMempoolLimit = 4096

var (
	// ErrKnownTransaction is returned when a transaction is already pending
	// or already included in a block.
	ErrKnownTransaction = errors.New("core: transaction already known")
	// ErrMempoolFull is returned when the pending pool is at capacity.
	ErrMempoolFull = errors.New("core: mempool full")
	// ErrExceedsBlockWeight is returned for a call whose declared weight can
	// never fit in a block.
	ErrExceedsBlockWeight = errors.New("core: call weight exceeds block limit")
)

// DefaultMaxBlockWeight allows two seconds of reference execution per block.
var DefaultMaxBlockWeight = registry.Weight{RefTime: 2 * 1_000_000_000 * registry.RefTimePerNanos, ProofSize: 5 * 1024 * 1024}

// BlockListener is notified after every committed block, in order.
type BlockListener func(hash common.Hash, block *types.Block)

// Node is the central controller, wiring the chain, the state processor, the
// mempool and the event stream together.
type Node struct {
	db      storage.Database
	chain   *Blockchain
	state   *StateProcessor
	stateMu sync.Mutex

	poolMu       sync.Mutex
	mempool      []*types.Transaction
	pending      map[common.Hash]struct{}
	replays      map[common.Hash]common.Hash
	mempoolLimit int

	maxBlockWeight registry.Weight
	weights        registry.WeightInfo
	logger         *slog.Logger
	metrics        *observability.ChainMetrics
	now            func() time.Time

	listenersMu sync.RWMutex
	listeners   []BlockListener

	stream eventStream
}

// Option customises a Node.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithMaxBlockWeight bounds the declared weight of the calls in one block.
func WithMaxBlockWeight(limit registry.Weight) Option {
	return func(n *Node) {
		if limit.RefTime > 0 {
			n.maxBlockWeight = limit
		}
	}
}

// WithWeights overrides the declared cost table.
func WithWeights(weights registry.WeightInfo) Option {
	return func(n *Node) {
		if weights != nil {
			n.weights = weights
		}
	}
}

// WithMempoolLimit bounds the number of pending transactions.
func WithMempoolLimit(limit int) Option {
	return func(n *Node) {
		if limit > 0 {
			n.mempoolLimit = limit
		}
	}
}

// WithClock replaces the wall clock used for block timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNode opens the chain stored in db. When the database is empty the
// genesis block is built from spec, or from the default spec when nil.
func NewNode(db storage.Database, spec *genesis.GenesisSpec, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	n := &Node{
		db:             db,
		pending:        make(map[common.Hash]struct{}),
		replays:        make(map[common.Hash]common.Hash),
		mempoolLimit:   defaultMempoolLimit,
		maxBlockWeight: DefaultMaxBlockWeight,
		weights:        registry.DefaultWeights{DB: registry.RocksDBWeight},
		logger:         slog.Default(),
		metrics:        observability.Chain(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}

	var genesisBlock *types.Block
	if _, err := db.Get(tipKey); errors.Is(err, storage.ErrNotFound) {
		if spec == nil {
			spec = genesis.DefaultSpec()
		}
		genesisBlock, err = genesis.BuildGenesisFromSpec(spec, db)
		if err != nil {
			return nil, fmt.Errorf("core: build genesis: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	chain, err := NewBlockchain(db, genesisBlock)
	if err != nil {
		return nil, err
	}
	n.chain = chain

	tip, err := chain.GetBlockByHash(chain.Tip())
	if err != nil {
		return nil, err
	}
	n.state, err = NewStateProcessor(db, tip.Header.StateRoot, n.weights)
	if err != nil {
		return nil, fmt.Errorf("core: open state at %x: %w", tip.Header.StateRoot, err)
	}
	if genesisBlock != nil {
		n.publishBlockEvents(chain.Tip(), genesisBlock)
	}
	n.logger.Info("node ready",
		slog.Uint64("height", chain.GetHeight()),
		slog.String("block", chain.Tip().Hex()),
		slog.String("stateRoot", tip.Header.StateRoot.Hex()))
	return n, nil
}

// Chain exposes the committed block sequence.
func (n *Node) Chain() *Blockchain { return n.chain }

// GetHeight returns the height of the best block.
func (n *Node) GetHeight() uint64 { return n.chain.GetHeight() }

// Weights returns the declared cost table.
func (n *Node) Weights() registry.WeightInfo { return n.weights }

// MaxBlockWeight returns the per-block weight limit.
func (n *Node) MaxBlockWeight() registry.Weight { return n.maxBlockWeight }

// OnBlock registers a listener for committed blocks.
func (n *Node) OnBlock(listener BlockListener) {
	if listener == nil {
		return
	}
	n.listenersMu.Lock()
	n.listeners = append(n.listeners, listener)
	n.listenersMu.Unlock()
}

// EstimateWeight returns the declared weight of tx without executing it.
func (n *Node) EstimateWeight(tx *types.Transaction) registry.Weight {
	return registry.CallWeight(n.weights, tx)
}

// SubmitTransaction authenticates tx and queues it for the next block. An
// unsigned or badly signed transaction fails with registry.ErrUnauthorized
// and an oversized username with registry.ErrUsernameTooLong; neither is
// queued.
func (n *Node) SubmitTransaction(tx *types.Transaction) (common.Hash, error) {
	if tx == nil {
		return common.Hash{}, fmt.Errorf("core: nil transaction")
	}
	if _, err := tx.Sender(); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", registry.ErrUnauthorized, err)
	}
	switch tx.Type {
	case types.TxTypeSetUsername:
		if len(tx.Username) > registry.MaxUsernameLength {
			return common.Hash{}, fmt.Errorf("%w: %d bytes", registry.ErrUsernameTooLong, len(tx.Username))
		}
	default:
		return common.Hash{}, fmt.Errorf("%w: 0x%02x", ErrUnknownCall, byte(tx.Type))
	}
	if !n.EstimateWeight(tx).AllLTE(n.maxBlockWeight) {
		return common.Hash{}, ErrExceedsBlockWeight
	}
	hash, err := tx.Hash()
	if err != nil {
		return common.Hash{}, err
	}
	replay, err := tx.ReplayKey()
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", registry.ErrUnauthorized, err)
	}
	if _, included, err := n.chain.TransactionBlock(hash); err != nil {
		return common.Hash{}, err
	} else if included {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrKnownTransaction, hash.Hex())
	}
	if included, err := n.chain.PayloadIncluded(replay); err != nil {
		return common.Hash{}, err
	} else if included {
		return common.Hash{}, fmt.Errorf("%w: payload of %s already committed", ErrKnownTransaction, hash.Hex())
	}

	n.poolMu.Lock()
	defer n.poolMu.Unlock()
	if _, ok := n.pending[hash]; ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrKnownTransaction, hash.Hex())
	}
	if _, ok := n.replays[replay]; ok {
		return common.Hash{}, fmt.Errorf("%w: payload of %s already pending", ErrKnownTransaction, hash.Hex())
	}
	if len(n.mempool) >= n.mempoolLimit {
		return common.Hash{}, ErrMempoolFull
	}
	n.mempool = append(n.mempool, tx)
	n.pending[hash] = struct{}{}
	n.replays[replay] = hash
	n.metrics.SetMempoolSize(len(n.mempool))
	return hash, nil
}

// MempoolSize returns the number of pending transactions.
func (n *Node) MempoolSize() int {
	n.poolMu.Lock()
	defer n.poolMu.Unlock()
	return len(n.mempool)
}

func (n *Node) pendingSnapshot() []*types.Transaction {
	n.poolMu.Lock()
	defer n.poolMu.Unlock()
	txs := make([]*types.Transaction, len(n.mempool))
	copy(txs, n.mempool)
	return txs
}

func (n *Node) dropPending(hashes map[common.Hash]struct{}) {
	if len(hashes) == 0 {
		return
	}
	n.poolMu.Lock()
	defer n.poolMu.Unlock()
	kept := n.mempool[:0]
	for _, tx := range n.mempool {
		hash, err := tx.Hash()
		if err == nil {
			if _, drop := hashes[hash]; drop {
				delete(n.pending, hash)
				if replay, err := tx.ReplayKey(); err == nil {
					delete(n.replays, replay)
				}
				continue
			}
		}
		kept = append(kept, tx)
	}
	for i := len(kept); i < len(n.mempool); i++ {
		n.mempool[i] = nil
	}
	n.mempool = kept
	n.metrics.SetMempoolSize(len(n.mempool))
}

// ProduceBlock executes pending transactions in arrival order until the next
// one would exceed the block weight limit, commits the resulting state and
// appends the block. Calls that fail are included with a failed receipt and
// leave state untouched.
func (n *Node) ProduceBlock() (*types.Block, common.Hash, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	parent, err := n.chain.GetBlockByHash(n.chain.Tip())
	if err != nil {
		return nil, common.Hash{}, err
	}
	parentRoot := n.state.CurrentRoot()
	height := parent.Header.Height + 1

	var (
		used     registry.Weight
		included []*types.Transaction
		receipts []*types.Receipt
		drop     = make(map[common.Hash]struct{})
	)
	for _, tx := range n.pendingSnapshot() {
		weight := n.EstimateWeight(tx)
		next := used.SaturatingAdd(weight)
		if !next.AllLTE(n.maxBlockWeight) {
			break
		}
		receipt, applyErr := n.state.ApplyTransaction(tx)
		if receipt == nil {
			n.logger.Warn("dropping undecodable transaction", slog.Any("error", applyErr))
			if hash, err := tx.Hash(); err == nil {
				drop[hash] = struct{}{}
			}
			continue
		}
		used = next
		included = append(included, tx)
		receipts = append(receipts, receipt)
		drop[receipt.TxHash] = struct{}{}
		n.metrics.RecordCall(callName(tx.Type), string(receipt.Status))
		if applyErr != nil {
			n.logger.Info("call failed",
				slog.String("tx", receipt.TxHash.Hex()),
				slog.String("address", tx.Address.Hex()),
				slog.Any("error", applyErr))
		}
	}

	rollback := func(cause error) error {
		if err := n.state.ResetToRoot(parentRoot); err != nil {
			return fmt.Errorf("%v (rollback failed: %w)", cause, err)
		}
		return cause
	}

	stateRoot, err := n.state.Commit(height)
	if err != nil {
		return nil, common.Hash{}, rollback(fmt.Errorf("core: commit state: %w", err))
	}
	txRoot, err := ComputeTxRoot(included)
	if err != nil {
		return nil, common.Hash{}, rollback(fmt.Errorf("core: tx root: %w", err))
	}
	timestamp := uint64(n.now().Unix())
	if timestamp < parent.Header.Timestamp {
		timestamp = parent.Header.Timestamp
	}
	block := types.NewBlock(&types.BlockHeader{
		Height:     height,
		Timestamp:  timestamp,
		ParentHash: n.chain.Tip(),
		StateRoot:  stateRoot,
		TxRoot:     txRoot,
		RefTime:    used.RefTime,
	}, included, receipts)
	hash, err := n.chain.AddBlock(block)
	if err != nil {
		return nil, common.Hash{}, rollback(err)
	}
	n.dropPending(drop)

	n.metrics.RecordBlock(height, used.RefTime)
	n.logger.Info("block committed",
		slog.Uint64("height", height),
		slog.String("block", hash.Hex()),
		slog.Int("txs", len(included)),
		slog.Uint64("refTime", used.RefTime))

	n.publishBlockEvents(hash, block)
	n.listenersMu.RLock()
	listeners := append([]BlockListener(nil), n.listeners...)
	n.listenersMu.RUnlock()
	for _, listener := range listeners {
		listener(hash, block)
	}
	return block, hash, nil
}

// Execute submits tx and seals a block immediately, returning the receipt
// and the hash of the including block. A failed call is reported through
// the receipt status, not the error.
func (n *Node) Execute(tx *types.Transaction) (*types.Receipt, common.Hash, error) {
	txHash, err := n.SubmitTransaction(tx)
	if err != nil {
		return nil, common.Hash{}, err
	}
	if _, _, err := n.ProduceBlock(); err != nil {
		return nil, common.Hash{}, err
	}
	receipt, blockHash, ok, err := n.TransactionReceipt(txHash)
	if err != nil {
		return nil, common.Hash{}, err
	}
	if !ok {
		return nil, common.Hash{}, fmt.Errorf("core: transaction %s not included", txHash.Hex())
	}
	return receipt, blockHash, nil
}

// TransactionReceipt locates the receipt of an included transaction.
func (n *Node) TransactionReceipt(txHash common.Hash) (*types.Receipt, common.Hash, bool, error) {
	blockHash, ok, err := n.chain.TransactionBlock(txHash)
	if err != nil || !ok {
		return nil, common.Hash{}, false, err
	}
	block, err := n.chain.GetBlockByHash(blockHash)
	if err != nil {
		return nil, common.Hash{}, false, err
	}
	for _, receipt := range block.Receipts {
		if receipt != nil && receipt.TxHash == txHash {
			return receipt, blockHash, true, nil
		}
	}
	return nil, common.Hash{}, false, fmt.Errorf("core: receipt for %s missing from block %s", txHash.Hex(), blockHash.Hex())
}

// Run produces a block every interval while transactions are pending, until
// ctx is cancelled.
func (n *Node) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n.MempoolSize() == 0 {
				continue
			}
			if _, _, err := n.ProduceBlock(); err != nil {
				n.logger.Error("block production failed", slog.Any("error", err))
			}
		}
	}
}

func callName(t types.TxType) string {
	switch t {
	case types.TxTypeSetUsername:
		return "set_username"
	default:
		return "unknown"
	}
}
