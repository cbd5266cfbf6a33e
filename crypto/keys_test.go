package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	acct := key.Account()
	encoded := acct.String()
	require.True(t, strings.HasPrefix(encoded, AccountPrefix+"1"))

	decoded, err := DecodeAccount(encoded)
	require.NoError(t, err)
	require.Equal(t, acct, decoded)
}

func TestDecodeAccountRejectsForeignPrefix(t *testing.T) {
	_, err := DecodeAccount("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	require.True(t, errors.Is(err, ErrInvalidAccount))

	_, err = DecodeAccount("not-bech32")
	require.True(t, errors.Is(err, ErrInvalidAccount))
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "signer.keystore")
	require.NoError(t, SaveToKeystoreWithParams(path, key, "correct horse", LightScrypt))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.Account(), loaded.Account())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestSaveToKeystoreRejectsMissingInputs(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.Error(t, SaveToKeystoreWithParams("", key, "pw", LightScrypt))
	require.Error(t, SaveToKeystoreWithParams(filepath.Join(t.TempDir(), "k"), nil, "pw", LightScrypt))
}
