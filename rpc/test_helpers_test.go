package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"namechain/core"
	"namechain/core/types"
	"namechain/crypto"
	"namechain/storage"
)

type rpcResult struct {
	Status int
	Header http.Header
	Result json.RawMessage
	Error  *RPCError
}

func newTestNode(t testing.TB) *core.Node {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, nil, core.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))
	require.NoError(t, err)
	return node
}

func newTestServer(t testing.TB, node *core.Node, history HistoryReader, cfg ServerConfig) *Server {
	t.Helper()
	srv, err := NewServer(node, history, cfg, nil)
	require.NoError(t, err)
	return srv
}

func callRPC(t testing.TB, handler http.Handler, method string, params ...interface{}) rpcResult {
	t.Helper()
	return callRPCWithHeaders(t, handler, nil, method, params...)
}

func callRPCWithHeaders(t testing.TB, handler http.Handler, headers map[string]string, method string, params ...interface{}) rpcResult {
	t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return rpcResult{Status: rec.Code, Header: rec.Header(), Result: envelope.Result, Error: envelope.Error}
}

func signedTx(t testing.TB, key *crypto.PrivateKey, nonce uint64, addr common.Address, username []byte) *types.Transaction {
	t.Helper()
	tx := types.NewSetUsername(nonce, addr, username)
	require.NoError(t, tx.Sign(key))
	return tx
}

func newKey(t testing.TB) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}
