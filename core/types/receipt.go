package types

import "github.com/ethereum/go-ethereum/common"

// ReceiptStatus reports whether a dispatched call took effect.
type ReceiptStatus string

const (
	ReceiptStatusSuccess ReceiptStatus = "success"
	ReceiptStatusFailed  ReceiptStatus = "failed"
)

// Receipt records the outcome of one transaction inside a block. A failed
// call leaves no state change and carries no events.
type Receipt struct {
	TxHash  common.Hash   `json:"txHash"`
	Status  ReceiptStatus `json:"status"`
	RefTime uint64        `json:"refTime"`
	Error   string        `json:"error,omitempty"`
	Events  []Event       `json:"events"`
}
