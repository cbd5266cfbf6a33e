package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"namechain/core/types"
)

const (
	TypeUsernameSet = "usernameRegistry.UsernameSet"

	AttrEthereumAddress = "ethereum_address"
	AttrUsername        = "username"
)

// UsernameSet is emitted every time a username is written for an address,
// including writes that store the value already present.
type UsernameSet struct {
	Address  [20]byte
	Username []byte
}

// EventType implements the Event interface.
func (UsernameSet) EventType() string { return TypeUsernameSet }

// Event converts the strongly typed event to the generic representation used by subscribers.
// The username is hex encoded because stored names are opaque bytes.
func (e UsernameSet) Event() *types.Event {
	return &types.Event{
		Type: TypeUsernameSet,
		Attributes: map[string]string{
			AttrEthereumAddress: hexutil.Encode(e.Address[:]),
			AttrUsername:        hexutil.Encode(e.Username),
		},
	}
}

// ParseUsernameSet reverses Event for consumers that only see the generic form.
func ParseUsernameSet(evt types.Event) (UsernameSet, bool) {
	if evt.Type != TypeUsernameSet {
		return UsernameSet{}, false
	}
	rawAddr, err := hexutil.Decode(evt.Attributes[AttrEthereumAddress])
	if err != nil || len(rawAddr) != common.AddressLength {
		return UsernameSet{}, false
	}
	username, err := hexutil.Decode(evt.Attributes[AttrUsername])
	if err != nil {
		return UsernameSet{}, false
	}
	var out UsernameSet
	copy(out.Address[:], rawAddr)
	out.Username = username
	return out, true
}
