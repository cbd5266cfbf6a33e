package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"namechain/core"
	"namechain/core/registry"
	"namechain/indexer"
	"namechain/observability"
	"namechain/rpc/modules"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicateTx    = -32010
	codeBadOrigin      = -32011
	codeValueTooLong   = -32012
	codeTooHeavy       = -32013
	codeRateLimited    = -32020
	codePoolFull       = -32021
)

// HistoryReader serves past username assignments.
type HistoryReader interface {
	History(ctx context.Context, key registry.IdentityKey, limit int) ([]indexer.HistoryEntry, error)
}

// ServerConfig tunes the JSON-RPC server.
type ServerConfig struct {
	JWT       JWTConfig
	RateLimit RateLimitConfig
	// InstantSeal seals a block for every submitted transaction and answers
	// with its receipt.
	InstantSeal bool
}

// Server exposes the node over JSON-RPC on HTTP.
type Server struct {
	node    *core.Node
	history HistoryReader
	gateway *modules.UsernameRegistryModule
	cfg     ServerConfig
	auth    *jwtGuard
	limiter *rateLimiter
	logger  *slog.Logger

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer wires a server around node. history may be nil, in which case
// usernameRegistry_history reports that no index is configured.
func NewServer(node *core.Node, history HistoryReader, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	guard, err := newJWTGuard(cfg.JWT)
	if err != nil {
		return nil, err
	}
	limiter, err := newRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		node:    node,
		history: history,
		cfg:     cfg,
		auth:    guard,
		limiter: limiter,
		logger:  logger,
	}
	if node != nil {
		s.gateway = modules.NewUsernameRegistryModule(node)
	}
	return s, nil
}

// Handler returns the HTTP routes served by the node.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Post("/", otelhttp.NewHandler(http.HandlerFunc(s.handle), "jsonrpc").ServeHTTP)
	return r
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("json-rpc server listening", slog.String("addr", listener.Addr().String()))
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a running server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result"`
}

type RPCErrorResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Error   *RPCError   `json:"error"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// statusWriter remembers the JSON-RPC error code written, for metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if sw, ok := w.(*statusWriter); ok {
		sw.code = code
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCErrorResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	if s.node == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "node unavailable", nil)
		return
	}

	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}
	defer func() {
		observability.ModuleMetrics().Observe(moduleOf(req.Method), req.Method, sw.code, time.Since(start))
	}()

	switch req.Method {
	case "usernameRegistry_getUsername":
		s.handleGetUsername(sw, r, req)
	case "usernameRegistry_getUsernameBytes":
		s.handleGetUsernameBytes(sw, r, req)
	case "usernameRegistry_submitTransaction":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(sw, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		source := s.limiter.clientSource(r)
		if !s.limiter.allow(source) {
			observability.ModuleMetrics().RecordThrottle("usernameRegistry", "rate_limit")
			writeError(sw, http.StatusTooManyRequests, req.ID, codeRateLimited, "transaction rate limit exceeded", source)
			return
		}
		s.handleSubmitTransaction(sw, r, req)
	case "usernameRegistry_estimateWeight":
		s.handleEstimateWeight(sw, r, req)
	case "usernameRegistry_history":
		s.handleHistory(sw, r, req)
	case "chain_getHead":
		s.handleGetHead(sw, r, req)
	case "chain_getBlockHash":
		s.handleGetBlockHash(sw, r, req)
	case "chain_getHeader":
		s.handleGetHeader(sw, r, req)
	case "chain_getReceipt":
		s.handleGetReceipt(sw, r, req)
	default:
		writeError(sw, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func moduleOf(method string) string {
	if module, _, ok := strings.Cut(method, "_"); ok {
		return module
	}
	return "unknown"
}
