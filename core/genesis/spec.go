package genesis

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"namechain/core/registry"
)

// DefaultGenesisTime is used when a spec omits genesisTime.
const DefaultGenesisTime = "2024-01-01T00:00:00Z"

// GenesisSpec describes the state at height 0.
type GenesisSpec struct {
	GenesisTime string         `yaml:"genesisTime"`
	Usernames   []UsernameSpec `yaml:"usernames"`

	genesisTimestamp time.Time
}

// UsernameSpec pre-registers one username. Exactly one of Username (text) or
// UsernameHex (raw bytes) must be set.
type UsernameSpec struct {
	Address     string `yaml:"address"`
	Username    string `yaml:"username,omitempty"`
	UsernameHex string `yaml:"usernameHex,omitempty"`

	key   registry.IdentityKey
	value []byte
}

// LoadGenesisSpec reads and validates a YAML genesis file.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	return ParseGenesisSpec(raw)
}

// ParseGenesisSpec decodes a YAML genesis document. Unknown fields are rejected.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// DefaultSpec is an empty registry at DefaultGenesisTime.
func DefaultSpec() *GenesisSpec {
	spec := &GenesisSpec{GenesisTime: DefaultGenesisTime}
	if err := spec.validate(); err != nil {
		panic(err)
	}
	return spec
}

func (s *GenesisSpec) validate() error {
	if strings.TrimSpace(s.GenesisTime) == "" {
		s.GenesisTime = DefaultGenesisTime
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s.GenesisTime))
	if err != nil {
		return fmt.Errorf("genesisTime: %w", err)
	}
	s.genesisTimestamp = ts.UTC()

	for i := range s.Usernames {
		entry := &s.Usernames[i]
		key, err := registry.ParseIdentityKey(strings.TrimSpace(entry.Address))
		if err != nil {
			return fmt.Errorf("usernames[%d]: %w", i, err)
		}
		switch {
		case entry.Username != "" && entry.UsernameHex != "":
			return fmt.Errorf("usernames[%d]: set either username or usernameHex", i)
		case entry.UsernameHex != "":
			decoded, err := hexutil.Decode(strings.TrimSpace(entry.UsernameHex))
			if err != nil {
				return fmt.Errorf("usernames[%d].usernameHex: %w", i, err)
			}
			entry.value = decoded
		default:
			entry.value = []byte(entry.Username)
		}
		if len(entry.value) > registry.MaxUsernameLength {
			return fmt.Errorf("usernames[%d]: %w", i, registry.ErrUsernameTooLong)
		}
		entry.key = key
	}
	return nil
}

// GenesisTimestamp returns the parsed genesis time.
func (s *GenesisSpec) GenesisTimestamp() time.Time {
	return s.genesisTimestamp
}
