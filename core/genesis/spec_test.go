package genesis

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"namechain/core/registry"
	"namechain/storage"
	"namechain/storage/trie"
)

const sampleGenesis = `
genesisTime: "2024-05-01T12:00:00Z"
usernames:
  - address: "0x0101010101010101010101010101010101010101"
    username: alice
  - address: "0202020202020202020202020202020202020202"
    usernameHex: "0xff00"
`

func TestBuildGenesisFromSpec(t *testing.T) {
	spec, err := ParseGenesisSpec([]byte(sampleGenesis))
	require.NoError(t, err)

	db := storage.NewMemDB()
	defer db.Close()

	block, err := BuildGenesisFromSpec(spec, db)
	require.NoError(t, err)
	require.Equal(t, uint64(0), block.Header.Height)
	require.Equal(t, uint64(1714564800), block.Header.Timestamp)
	require.Len(t, block.Receipts, 1)
	require.Len(t, block.Receipts[0].Events, 2)

	view, err := trie.OpenReadOnly(db, block.Header.StateRoot)
	require.NoError(t, err)

	alice, _ := registry.ParseIdentityKey("0x0101010101010101010101010101010101010101")
	got, ok, err := registry.Username(view, alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("alice"), got)

	raw, _ := registry.ParseIdentityKey("0x0202020202020202020202020202020202020202")
	got, ok, err = registry.Username(view, raw)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0xff, 0x00}, got)
}

func TestGenesisRejectsBadEntries(t *testing.T) {
	_, err := ParseGenesisSpec([]byte("usernames:\n  - address: \"0x01\"\n    username: x\n"))
	require.True(t, errors.Is(err, registry.ErrInvalidAddress))

	long := "usernames:\n  - address: \"0x0101010101010101010101010101010101010101\"\n    username: " + strings.Repeat("a", 65) + "\n"
	_, err = ParseGenesisSpec([]byte(long))
	require.True(t, errors.Is(err, registry.ErrUsernameTooLong))

	_, err = ParseGenesisSpec([]byte("unknownField: 1\n"))
	require.Error(t, err)
}

func TestDefaultSpecIsEmpty(t *testing.T) {
	spec := DefaultSpec()
	require.Empty(t, spec.Usernames)
	require.Equal(t, DefaultGenesisTime, spec.GenesisTime)
}
