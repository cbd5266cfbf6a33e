package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"namechain/core/types"
	"namechain/crypto"
)

func stubRPC(t *testing.T, fn func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error)) {
	t.Helper()
	original := rpcCall
	rpcCall = fn
	t.Cleanup(func() { rpcCall = original })
}

func TestGetUsernamePassesAtHash(t *testing.T) {
	at := "0x" + strings.Repeat("ab", 32)
	stubRPC(t, func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		require.Equal(t, "usernameRegistry_getUsername", method)
		require.False(t, requireAuth)
		require.Equal(t, []interface{}{"0x" + strings.Repeat("11", 20), at}, params)
		return json.RawMessage(`"alice"`), nil, nil
	})

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := run([]string{"get-username", "--address", "0x" + strings.Repeat("11", 20), "--at", at}, stdout, stderr)
	require.Equal(t, 0, code)
	require.Equal(t, "\"alice\"\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestGetUsernameReportsRPCError(t *testing.T) {
	stubRPC(t, func(string, interface{}, bool) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: 1, Message: "Invalid Ethereum address"}, nil
	})

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := run([]string{"get-username", "--address", "0x1234"}, stdout, stderr)
	require.Equal(t, 1, code)
	require.Empty(t, stdout.String())
	require.Equal(t, "RPC error 1: Invalid Ethereum address\n", stderr.String())
}

func TestRuntimeErrorIncludesData(t *testing.T) {
	stubRPC(t, func(string, interface{}, bool) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: 2, Message: "Runtime API error", Data: json.RawMessage(`"snapshot unavailable"`)}, nil
	})

	stderr := &bytes.Buffer{}
	code := run([]string{"get-username", "--address", "0x" + strings.Repeat("22", 20)}, &bytes.Buffer{}, stderr)
	require.Equal(t, 1, code)
	require.Equal(t, "RPC error 2: Runtime API error (\"snapshot unavailable\")\n", stderr.String())
}

func TestSetUsernameSignsTransaction(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signer.keystore")
	require.NoError(t, crypto.SaveToKeystoreWithParams(path, key, "secret", crypto.LightScrypt))

	originalPass := passphraseFor
	passphraseFor = func() (string, error) { return "secret", nil }
	t.Cleanup(func() { passphraseFor = originalPass })

	addr := "0x" + strings.Repeat("33", 20)
	stubRPC(t, func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		require.Equal(t, "usernameRegistry_submitTransaction", method)
		require.True(t, requireAuth)
		list, ok := params.([]interface{})
		require.True(t, ok)
		require.Len(t, list, 1)
		tx, ok := list[0].(*types.Transaction)
		require.True(t, ok)
		require.Equal(t, uint64(7), tx.Nonce)
		require.Equal(t, common.HexToAddress(addr), tx.Address)
		require.Equal(t, []byte("bob"), []byte(tx.Username))
		sender, err := tx.Sender()
		require.NoError(t, err)
		require.Equal(t, key.Account(), sender)
		return json.RawMessage(`{"transactionHash":"0x01"}`), nil, nil
	})

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := run([]string{"set-username", "--keystore", path, "--address", addr, "--username", "bob", "--nonce", "7"}, stdout, stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "transactionHash")
}

func TestSetUsernameRejectsBadAddress(t *testing.T) {
	stubRPC(t, func(string, interface{}, bool) (json.RawMessage, *rpcError, error) {
		t.Fatal("rpc should not be called")
		return nil, nil, nil
	})
	stderr := &bytes.Buffer{}
	code := run([]string{"set-username", "--address", "0x1234", "--username", "x"}, &bytes.Buffer{}, stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "20-byte")
}

func TestApplyGlobalFlags(t *testing.T) {
	original := rpcEndpoint
	t.Cleanup(func() { rpcEndpoint = original })

	args, err := applyGlobalFlags([]string{"--rpc", "http://node:1", "head"})
	require.NoError(t, err)
	require.Equal(t, []string{"head"}, args)
	require.Equal(t, "http://node:1", rpcEndpoint)

	args, err = applyGlobalFlags([]string{"head", "--rpc=http://node:2"})
	require.NoError(t, err)
	require.Equal(t, []string{"head"}, args)
	require.Equal(t, "http://node:2", rpcEndpoint)

	_, err = applyGlobalFlags([]string{"--rpc"})
	require.Error(t, err)
}
