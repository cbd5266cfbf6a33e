package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// optionalParam returns params[i] or nil when absent or null.
func optionalParam(params []json.RawMessage, i int) json.RawMessage {
	if i >= len(params) || isNull(params[i]) {
		return nil
	}
	return params[i]
}

func parseStringParam(raw json.RawMessage, name string) (string, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return value, nil
}

// parseHashParam decodes an optional 0x-prefixed 32-byte block hash.
func parseHashParam(raw json.RawMessage, name string) (*common.Hash, error) {
	if raw == nil {
		return nil, nil
	}
	text, err := parseStringParam(raw, name)
	if err != nil {
		return nil, err
	}
	decoded, err := hexutil.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	if len(decoded) != common.HashLength {
		return nil, fmt.Errorf("%s must be %d bytes, got %d", name, common.HashLength, len(decoded))
	}
	hash := common.BytesToHash(decoded)
	return &hash, nil
}

func parseUintParam(raw json.RawMessage, name string) (uint64, error) {
	var direct uint64
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if value, err := hexutil.DecodeUint64(text); err == nil {
			return value, nil
		}
	}
	return 0, fmt.Errorf("%s must be an unsigned integer", name)
}
