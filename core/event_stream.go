package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"namechain/core/types"
)

const eventHistoryLimit = 2048

// EventUpdate is a committed runtime event together with the block and
// transaction that produced it.
type EventUpdate struct {
	Sequence  uint64
	Cursor    string
	BlockHash common.Hash
	Height    uint64
	TxHash    common.Hash
	Timestamp uint64
	Event     types.Event
}

func cloneEventUpdate(update EventUpdate) EventUpdate {
	cloned := update
	cloned.Event = update.Event.Clone()
	return cloned
}

type eventStream struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan EventUpdate
	history []EventUpdate
}

func (s *eventStream) publish(update EventUpdate) {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan EventUpdate)
	}
	s.seq++
	update.Sequence = s.seq
	update.Cursor = strconv.FormatUint(update.Sequence, 10)
	s.history = append(s.history, cloneEventUpdate(update))
	if len(s.history) > eventHistoryLimit {
		excess := len(s.history) - eventHistoryLimit
		trimmed := make([]EventUpdate, eventHistoryLimit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	// Sends stay under mu so cancel cannot close a channel mid-send. Slow
	// subscribers drop updates instead of blocking the producer.
	for _, ch := range s.subs {
		select {
		case ch <- cloneEventUpdate(update):
		default:
		}
	}
	s.mu.Unlock()
}

func (n *Node) publishBlockEvents(hash common.Hash, block *types.Block) {
	if block == nil || block.Header == nil {
		return
	}
	for i, receipt := range block.Receipts {
		if receipt == nil {
			continue
		}
		txHash := receipt.TxHash
		if i < len(block.Transactions) && txHash == (common.Hash{}) {
			if h, err := block.Transactions[i].Hash(); err == nil {
				txHash = h
			}
		}
		for _, evt := range receipt.Events {
			n.stream.publish(EventUpdate{
				BlockHash: hash,
				Height:    block.Header.Height,
				TxHash:    txHash,
				Timestamp: block.Header.Timestamp,
				Event:     evt,
			})
		}
	}
}

// SubscribeEvents registers a subscriber for committed events. The returned
// backlog holds retained events with a sequence after cursor; an empty or
// malformed cursor replays the whole retained history.
func (n *Node) SubscribeEvents(ctx context.Context, cursor string) (<-chan EventUpdate, func(), []EventUpdate, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan EventUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	s := &n.stream
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan EventUpdate)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	history := make([]EventUpdate, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	backlog := make([]EventUpdate, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneEventUpdate(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog, nil
}
