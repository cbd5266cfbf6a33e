package rpc

import (
	"github.com/ethereum/go-ethereum/common"

	"namechain/core/types"
)

// EventResult is a runtime event as returned over RPC.
type EventResult struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// ReceiptResult reflects the outcome of an included transaction.
type ReceiptResult struct {
	TransactionHash common.Hash   `json:"transactionHash"`
	BlockHash       common.Hash   `json:"blockHash"`
	Status          string        `json:"status"`
	RefTime         uint64        `json:"refTime"`
	Error           string        `json:"error,omitempty"`
	Events          []EventResult `json:"events"`
}

// SubmitResult answers usernameRegistry_submitTransaction. Receipt is set
// only when the server seals a block per transaction.
type SubmitResult struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	Receipt         *ReceiptResult `json:"receipt,omitempty"`
}

// WeightResult is the declared cost of a call.
type WeightResult struct {
	RefTime   uint64 `json:"refTime"`
	ProofSize uint64 `json:"proofSize"`
}

// HeadResult names the best block.
type HeadResult struct {
	Hash   common.Hash `json:"hash"`
	Height uint64      `json:"height"`
}

// HeaderResult is a block header with its hash.
type HeaderResult struct {
	Hash       common.Hash `json:"hash"`
	Height     uint64      `json:"height"`
	Timestamp  uint64      `json:"timestamp"`
	ParentHash common.Hash `json:"parentHash"`
	StateRoot  common.Hash `json:"stateRoot"`
	TxRoot     common.Hash `json:"txRoot"`
	RefTime    uint64      `json:"refTime"`
	TxCount    int         `json:"txCount"`
}

func receiptResult(receipt *types.Receipt, blockHash common.Hash) *ReceiptResult {
	if receipt == nil {
		return nil
	}
	out := &ReceiptResult{
		TransactionHash: receipt.TxHash,
		BlockHash:       blockHash,
		Status:          string(receipt.Status),
		RefTime:         receipt.RefTime,
		Error:           receipt.Error,
		Events:          make([]EventResult, 0, len(receipt.Events)),
	}
	for _, evt := range receipt.Events {
		out.Events = append(out.Events, EventResult{Type: evt.Type, Attributes: evt.Clone().Attributes})
	}
	return out
}

func headerResult(hash common.Hash, block *types.Block) *HeaderResult {
	h := block.Header
	return &HeaderResult{
		Hash:       hash,
		Height:     h.Height,
		Timestamp:  h.Timestamp,
		ParentHash: h.ParentHash,
		StateRoot:  h.StateRoot,
		TxRoot:     h.TxRoot,
		RefTime:    h.RefTime,
		TxCount:    len(block.Transactions),
	}
}
