package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"namechain/indexer"
	"namechain/rpc/modules"
)

const aliceAddr = "0x0101010101010101010101010101010101010101"

func TestSubmitThenGetUsername(t *testing.T) {
	node := newTestNode(t)
	handler := newTestServer(t, node, nil, ServerConfig{InstantSeal: true}).Handler()
	key := newKey(t)

	res := callRPC(t, handler, "usernameRegistry_submitTransaction", signedTx(t, key, 0, common.HexToAddress(aliceAddr), []byte("alice")))
	require.Nil(t, res.Error)
	var submitted SubmitResult
	require.NoError(t, json.Unmarshal(res.Result, &submitted))
	require.NotNil(t, submitted.Receipt)
	require.Equal(t, "success", submitted.Receipt.Status)
	require.Len(t, submitted.Receipt.Events, 1)
	require.Equal(t, "usernameRegistry.UsernameSet", submitted.Receipt.Events[0].Type)

	res = callRPC(t, handler, "usernameRegistry_getUsername", aliceAddr)
	require.Nil(t, res.Error)
	require.JSONEq(t, `"alice"`, string(res.Result))
}

func TestSubmitOversizedUsername(t *testing.T) {
	node := newTestNode(t)
	handler := newTestServer(t, node, nil, ServerConfig{InstantSeal: true}).Handler()

	tx := signedTx(t, newKey(t), 0, common.HexToAddress(aliceAddr), bytes.Repeat([]byte("a"), 65))
	res := callRPC(t, handler, "usernameRegistry_submitTransaction", tx)
	require.NotNil(t, res.Error)
	require.Equal(t, codeValueTooLong, res.Error.Code)
	require.Equal(t, "ValueTooLong", res.Error.Message)

	res = callRPC(t, handler, "usernameRegistry_getUsername", aliceAddr)
	require.Nil(t, res.Error)
	require.Equal(t, "null", string(res.Result))
}

func TestSubmitUnsignedIsBadOrigin(t *testing.T) {
	node := newTestNode(t)
	handler := newTestServer(t, node, nil, ServerConfig{}).Handler()

	res := callRPC(t, handler, "usernameRegistry_submitTransaction", map[string]interface{}{
		"type":            1,
		"nonce":           0,
		"ethereumAddress": aliceAddr,
		"username":        "0x616c696365",
	})
	require.NotNil(t, res.Error)
	require.Equal(t, codeBadOrigin, res.Error.Code)
	require.Zero(t, node.MempoolSize())
}

func TestSubmitQueuesWithoutInstantSeal(t *testing.T) {
	node := newTestNode(t)
	handler := newTestServer(t, node, nil, ServerConfig{}).Handler()
	tx := signedTx(t, newKey(t), 0, common.HexToAddress(aliceAddr), []byte("alice"))

	res := callRPC(t, handler, "usernameRegistry_submitTransaction", tx)
	require.Nil(t, res.Error)
	require.Equal(t, 1, node.MempoolSize())

	res = callRPC(t, handler, "usernameRegistry_submitTransaction", tx)
	require.NotNil(t, res.Error)
	require.Equal(t, codeDuplicateTx, res.Error.Code)
	require.Equal(t, http.StatusConflict, res.Status)
}

func TestGetUsernameInvalidAddress(t *testing.T) {
	handler := newTestServer(t, newTestNode(t), nil, ServerConfig{}).Handler()

	for _, addr := range []string{"0x1234", "hello", ""} {
		res := callRPC(t, handler, "usernameRegistry_getUsername", addr)
		require.NotNil(t, res.Error, addr)
		require.Equal(t, modules.CodeInvalidAddress, res.Error.Code)
		require.Equal(t, modules.MessageInvalidAddress, res.Error.Message)
		require.Nil(t, res.Error.Data)
	}
}

func TestGetUsernameUnknownBlockIsRuntimeError(t *testing.T) {
	handler := newTestServer(t, newTestNode(t), nil, ServerConfig{}).Handler()

	unknown := common.HexToHash("0xdead").Hex()
	res := callRPC(t, handler, "usernameRegistry_getUsername", aliceAddr, unknown)
	require.NotNil(t, res.Error)
	require.Equal(t, modules.CodeRuntimeError, res.Error.Code)
	require.Equal(t, modules.MessageRuntimeError, res.Error.Message)
	require.NotNil(t, res.Error.Data)
}

func TestGetUsernameMalformedAtIsInvalidParams(t *testing.T) {
	handler := newTestServer(t, newTestNode(t), nil, ServerConfig{}).Handler()
	res := callRPC(t, handler, "usernameRegistry_getUsername", aliceAddr, "0x1234")
	require.NotNil(t, res.Error)
	require.Equal(t, codeInvalidParams, res.Error.Code)

	res = callRPC(t, handler, "usernameRegistry_getUsername", 42)
	require.NotNil(t, res.Error)
	require.Equal(t, codeInvalidParams, res.Error.Code)
}

func TestGetUsernameAtHistoricalBlock(t *testing.T) {
	node := newTestNode(t)
	handler := newTestServer(t, node, nil, ServerConfig{InstantSeal: true}).Handler()
	key := newKey(t)

	callRPC(t, handler, "usernameRegistry_submitTransaction", signedTx(t, key, 0, common.HexToAddress(aliceAddr), []byte("alice")))
	head := callRPC(t, handler, "chain_getHead")
	var first HeadResult
	require.NoError(t, json.Unmarshal(head.Result, &first))
	require.Equal(t, uint64(1), first.Height)

	callRPC(t, handler, "usernameRegistry_submitTransaction", signedTx(t, key, 1, common.HexToAddress(aliceAddr), []byte{0xff, 0xfe}))

	res := callRPC(t, handler, "usernameRegistry_getUsername", aliceAddr, first.Hash.Hex())
	require.JSONEq(t, `"alice"`, string(res.Result))
	res = callRPC(t, handler, "usernameRegistry_getUsername", aliceAddr, nil)
	require.JSONEq(t, `"Invalid UTF-8"`, string(res.Result))
	res = callRPC(t, handler, "usernameRegistry_getUsernameBytes", aliceAddr)
	require.JSONEq(t, `"0xfffe"`, string(res.Result))

	genesis := callRPC(t, handler, "chain_getBlockHash", 0)
	var genesisHash common.Hash
	require.NoError(t, json.Unmarshal(genesis.Result, &genesisHash))
	res = callRPC(t, handler, "usernameRegistry_getUsername", aliceAddr, genesisHash.Hex())
	require.Equal(t, "null", string(res.Result))
}

func TestChainMethods(t *testing.T) {
	node := newTestNode(t)
	handler := newTestServer(t, node, nil, ServerConfig{InstantSeal: true}).Handler()
	res := callRPC(t, handler, "usernameRegistry_submitTransaction", signedTx(t, newKey(t), 0, common.HexToAddress(aliceAddr), []byte("alice")))
	var submitted SubmitResult
	require.NoError(t, json.Unmarshal(res.Result, &submitted))

	res = callRPC(t, handler, "chain_getHeader")
	var header HeaderResult
	require.NoError(t, json.Unmarshal(res.Result, &header))
	require.Equal(t, node.BestHash(), header.Hash)
	require.Equal(t, 1, header.TxCount)

	res = callRPC(t, handler, "chain_getBlockHash", 99)
	require.Nil(t, res.Error)
	require.Equal(t, "null", string(res.Result))

	res = callRPC(t, handler, "chain_getReceipt", submitted.TransactionHash.Hex())
	var receipt ReceiptResult
	require.NoError(t, json.Unmarshal(res.Result, &receipt))
	require.Equal(t, header.Hash, receipt.BlockHash)

	res = callRPC(t, handler, "usernameRegistry_estimateWeight", signedTx(t, newKey(t), 0, common.Address{}, nil))
	var weight WeightResult
	require.NoError(t, json.Unmarshal(res.Result, &weight))
	require.Equal(t, node.Weights().SetUsername().RefTime, weight.RefTime)
}

func TestChainMethodsRejectBadParams(t *testing.T) {
	handler := newTestServer(t, newTestNode(t), nil, ServerConfig{}).Handler()
	cases := []struct {
		method string
		params []interface{}
	}{
		{"chain_getBlockHash", nil},
		{"chain_getBlockHash", []interface{}{"tall"}},
		{"chain_getHeader", []interface{}{"0x1234"}},
		{"chain_getHeader", []interface{}{nil, nil}},
		{"chain_getReceipt", nil},
		{"chain_getReceipt", []interface{}{"0xzz"}},
	}
	for _, tc := range cases {
		res := callRPC(t, handler, tc.method, tc.params...)
		require.NotNil(t, res.Error, "%s %v", tc.method, tc.params)
		require.Equal(t, codeInvalidParams, res.Error.Code, "%s %v", tc.method, tc.params)
	}
}

func TestUnknownMethod(t *testing.T) {
	handler := newTestServer(t, newTestNode(t), nil, ServerConfig{}).Handler()
	res := callRPC(t, handler, "nope_nothing")
	require.NotNil(t, res.Error)
	require.Equal(t, codeMethodNotFound, res.Error.Code)
	require.NotEmpty(t, res.Header.Get(requestIDHeader))
}

func TestRejectsMalformedBody(t *testing.T) {
	handler := newTestServer(t, newTestNode(t), nil, ServerConfig{}).Handler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), fmt.Sprintf("%d", codeParseError))
}

func TestSubmitRateLimited(t *testing.T) {
	node := newTestNode(t)
	handler := newTestServer(t, node, nil, ServerConfig{RateLimit: RateLimitConfig{RequestsPerMinute: 1, Burst: 1}}).Handler()
	key := newKey(t)

	res := callRPC(t, handler, "usernameRegistry_submitTransaction", signedTx(t, key, 0, common.HexToAddress(aliceAddr), []byte("a")))
	require.Nil(t, res.Error)
	res = callRPC(t, handler, "usernameRegistry_submitTransaction", signedTx(t, key, 1, common.HexToAddress(aliceAddr), []byte("b")))
	require.NotNil(t, res.Error)
	require.Equal(t, codeRateLimited, res.Error.Code)

	// Reads are never throttled.
	res = callRPC(t, handler, "usernameRegistry_getUsername", aliceAddr)
	require.Nil(t, res.Error)
}

func TestHistoryFromIndexer(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	ix, err := indexer.New(db, nil)
	require.NoError(t, err)

	node := newTestNode(t)
	node.OnBlock(ix.Listener())
	handler := newTestServer(t, node, ix, ServerConfig{InstantSeal: true}).Handler()
	key := newKey(t)
	callRPC(t, handler, "usernameRegistry_submitTransaction", signedTx(t, key, 0, common.HexToAddress(aliceAddr), []byte("alice")))
	callRPC(t, handler, "usernameRegistry_submitTransaction", signedTx(t, key, 1, common.HexToAddress(aliceAddr), []byte("alice")))

	res := callRPC(t, handler, "usernameRegistry_history", aliceAddr, 10)
	require.Nil(t, res.Error)
	var entries []indexer.HistoryEntry
	require.NoError(t, json.Unmarshal(res.Result, &entries))
	require.Len(t, entries, 2)
	require.Equal(t, []byte("alice"), []byte(entries[0].Username))

	res = callRPC(t, handler, "usernameRegistry_history", "bogus")
	require.NotNil(t, res.Error)
	require.Equal(t, modules.CodeInvalidAddress, res.Error.Code)
}

func TestHistoryWithoutIndexer(t *testing.T) {
	handler := newTestServer(t, newTestNode(t), nil, ServerConfig{}).Handler()
	res := callRPC(t, handler, "usernameRegistry_history", aliceAddr)
	require.NotNil(t, res.Error)
	require.Equal(t, http.StatusServiceUnavailable, res.Status)
}

func TestServeAndShutdown(t *testing.T) {
	srv := newTestServer(t, newTestNode(t), nil, ServerConfig{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(listener) }()

	url := "http://" + listener.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-serveErr)
}
