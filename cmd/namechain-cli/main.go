package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"namechain/cmd/internal/passphrase"
	"namechain/core/types"
	"namechain/crypto"
)

const (
	keystorePassEnv = "NAMECHAIN_KEYSTORE_PASS"
	rpcTokenEnv     = "NAMECHAIN_RPC_TOKEN"
)

var rpcEndpoint = defaultRPCEndpoint()

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// rpcCall is swapped out in tests.
var rpcCall = postRPC

// nonceNow seeds transaction nonces so repeated identical writes stay distinct.
var nonceNow = func() uint64 { return uint64(time.Now().UnixNano()) }

var passphraseFor = func() (string, error) {
	return passphrase.NewSource(keystorePassEnv).Get()
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "set-username":
		return runSetUsername(args[1:], stdout, stderr)
	case "get-username":
		return runGetUsername("usernameRegistry_getUsername", args[1:], stdout, stderr)
	case "get-username-bytes":
		return runGetUsername("usernameRegistry_getUsernameBytes", args[1:], stdout, stderr)
	case "history":
		return runHistory(args[1:], stdout, stderr)
	case "head":
		return printCall(stdout, stderr, "chain_getHead", []interface{}{})
	case "receipt":
		if len(args) != 2 {
			fmt.Fprintln(stderr, "usage: namechain-cli receipt <txHash>")
			return 1
		}
		return printCall(stdout, stderr, "chain_getReceipt", []interface{}{args[1]})
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
usage: namechain-cli [--rpc URL] <command> [flags]

commands:
  keygen --keystore PATH                     create a signer keystore
  set-username --keystore PATH --address ADDR --username NAME [--nonce N]
  get-username --address ADDR [--at BLOCKHASH]
  get-username-bytes --address ADDR [--at BLOCKHASH]
  history --address ADDR [--limit N]
  head
  receipt TXHASH`)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage())
	}
	return fs
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	path := fs.String("keystore", "./signer.keystore", "keystore output path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*path); err == nil {
		fmt.Fprintf(stderr, "keystore %s already exists\n", *path)
		return 1
	}
	pass, err := passphraseFor()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*path, key, pass); err != nil {
		fmt.Fprintf(stderr, "save keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "signer %s written to %s\n", key.Account(), *path)
	return 0
}

func runSetUsername(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set-username", stderr)
	path := fs.String("keystore", "./signer.keystore", "signer keystore")
	address := fs.String("address", "", "20-byte ethereum address (0x-prefixed hex)")
	username := fs.String("username", "", "username to assign")
	hexName := fs.Bool("hex", false, "treat --username as 0x-prefixed raw bytes")
	nonce := fs.Uint64("nonce", 0, "transaction nonce (defaults to the current time)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !common.IsHexAddress(*address) || len(strings.TrimPrefix(strings.TrimPrefix(*address, "0x"), "0X")) != 2*common.AddressLength {
		fmt.Fprintln(stderr, "--address must be a 0x-prefixed 20-byte hex address")
		return 1
	}
	name := []byte(*username)
	if *hexName {
		decoded, err := decodeHex(*username)
		if err != nil {
			fmt.Fprintf(stderr, "--username: %v\n", err)
			return 1
		}
		name = decoded
	}

	pass, err := passphraseFor()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	key, err := crypto.LoadFromKeystore(*path, pass)
	if err != nil {
		fmt.Fprintf(stderr, "load keystore: %v\n", err)
		return 1
	}

	n := *nonce
	if n == 0 {
		n = nonceNow()
	}
	tx := types.NewSetUsername(n, common.HexToAddress(*address), name)
	if err := tx.Sign(key); err != nil {
		fmt.Fprintf(stderr, "sign transaction: %v\n", err)
		return 1
	}
	return printAuthCall(stdout, stderr, "usernameRegistry_submitTransaction", []interface{}{tx}, true)
}

func runGetUsername(method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(method, stderr)
	address := fs.String("address", "", "20-byte ethereum address")
	at := fs.String("at", "", "block hash to query (defaults to the best block)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*address) == "" {
		fmt.Fprintln(stderr, "--address is required")
		return 1
	}
	params := []interface{}{*address}
	if strings.TrimSpace(*at) != "" {
		params = append(params, strings.TrimSpace(*at))
	}
	return printCall(stdout, stderr, method, params)
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("history", stderr)
	address := fs.String("address", "", "20-byte ethereum address")
	limit := fs.Uint("limit", 0, "maximum entries to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*address) == "" {
		fmt.Fprintln(stderr, "--address is required")
		return 1
	}
	params := []interface{}{*address}
	if *limit > 0 {
		params = append(params, *limit)
	}
	return printCall(stdout, stderr, "usernameRegistry_history", params)
}

func printCall(stdout, stderr io.Writer, method string, params interface{}) int {
	return printAuthCall(stdout, stderr, method, params, false)
}

func printAuthCall(stdout, stderr io.Writer, method string, params interface{}, requireAuth bool) int {
	result, rpcErr, err := rpcCall(method, params, requireAuth)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if rpcErr != nil {
		if len(rpcErr.Data) > 0 && string(rpcErr.Data) != "null" {
			fmt.Fprintf(stderr, "RPC error %d: %s (%s)\n", rpcErr.Code, rpcErr.Message, string(rpcErr.Data))
		} else {
			fmt.Fprintf(stderr, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		}
		return 1
	}
	fmt.Fprintln(stdout, string(result))
	return 0
}

func postRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(os.Getenv(rpcTokenEnv)); requireAuth && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error, nil
	}
	return decoded.Result, nil, nil
}

func decodeHex(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return nil, errors.New("expected 0x prefix")
	}
	return common.FromHex(trimmed), nil
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("NAMECHAIN_RPC_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:9944"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}
