package registry

import (
	"errors"
	"fmt"

	"lukechampine.com/blake3"

	"namechain/core/events"
)

// MaxUsernameLength bounds every stored username, in bytes.
const MaxUsernameLength = 64

// ErrUsernameTooLong is returned when a username exceeds MaxUsernameLength.
var ErrUsernameTooLong = errors.New("registry: username too long")

var usernamePrefix = []byte("usernameRegistry/UserNames/")

// Reader is the read side of a state snapshot.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// KVStore is the pending state a transition writes into.
type KVStore interface {
	Reader
	Update(key, value []byte) error
}

// usernameStorageKey places an entry under blake3(prefix || address) so keys
// spread evenly across the trie.
func usernameStorageKey(key IdentityKey) []byte {
	buf := make([]byte, 0, len(usernamePrefix)+len(key))
	buf = append(buf, usernamePrefix...)
	buf = append(buf, key[:]...)
	sum := blake3.Sum256(buf)
	return sum[:]
}

// Stored values carry a one-byte marker so an empty username is
// distinguishable from an absent entry; the trie treats empty values as
// deletions.
const entryMarker byte = 0x01

func encodeEntry(username []byte) []byte {
	out := make([]byte, 0, len(username)+1)
	out = append(out, entryMarker)
	return append(out, username...)
}

func decodeEntry(raw []byte) ([]byte, error) {
	if len(raw) == 0 || raw[0] != entryMarker {
		return nil, fmt.Errorf("registry: corrupt entry encoding")
	}
	return append([]byte(nil), raw[1:]...), nil
}

// Store describes the username map and its transition function. It holds no
// state of its own: every call receives the state it operates on.
type Store struct {
	weights WeightInfo
	emitter events.Emitter
}

// NewStore returns a store that reports costs through weights and emits
// change notifications to emitter. A nil emitter discards events.
func NewStore(weights WeightInfo, emitter events.Emitter) *Store {
	if weights == nil {
		weights = DefaultWeights{DB: RocksDBWeight}
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Store{weights: weights, emitter: emitter}
}

// Weights returns the cost table used by the store.
func (s *Store) Weights() WeightInfo {
	return s.weights
}

// SetUsername registers or replaces the username of key. Any signed origin may
// set the username of any address. On error nothing is written and no event
// is emitted.
func (s *Store) SetUsername(state KVStore, origin Origin, key IdentityKey, username []byte) error {
	if _, err := EnsureSigned(origin); err != nil {
		return err
	}
	if len(username) > MaxUsernameLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrUsernameTooLong, len(username), MaxUsernameLength)
	}
	stored := append([]byte(nil), username...)
	if err := state.Update(usernameStorageKey(key), encodeEntry(stored)); err != nil {
		return fmt.Errorf("registry: write username: %w", err)
	}
	s.emitter.Emit(events.UsernameSet{Address: key, Username: stored})
	return nil
}

// Username reads the entry for key. ok is false when no username was ever
// set; err is only returned for backend failures.
func Username(state Reader, key IdentityKey) (username []byte, ok bool, err error) {
	raw, err := state.Get(usernameStorageKey(key))
	if err != nil {
		return nil, false, fmt.Errorf("registry: read username: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	username, err = decodeEntry(raw)
	if err != nil {
		return nil, false, err
	}
	return username, true, nil
}
