package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"namechain/core"
	"namechain/core/registry"
	"namechain/core/types"
	"namechain/rpc/modules"
)

func (s *Server) writeQueryError(w http.ResponseWriter, id interface{}, err error) {
	var qerr *modules.QueryError
	if !errors.As(err, &qerr) {
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
		return
	}
	status := http.StatusInternalServerError
	switch qerr.Kind {
	case modules.InvalidAddress:
		status = http.StatusBadRequest
	case modules.SnapshotUnavailable:
		status = http.StatusNotFound
	}
	var data interface{}
	if qerr.Data != "" {
		data = qerr.Data
	}
	writeError(w, status, id, qerr.Code, qerr.Message, data)
}

func lookupParams(req *RPCRequest) (string, json.RawMessage, *RPCError) {
	if len(req.Params) < 1 || len(req.Params) > 2 {
		return "", nil, &RPCError{Code: codeInvalidParams, Message: "expected [ethereumAddress, at?]"}
	}
	address, err := parseStringParam(req.Params[0], "ethereumAddress")
	if err != nil {
		return "", nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	return address, optionalParam(req.Params, 1), nil
}

func (s *Server) handleGetUsername(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	address, rawAt, perr := lookupParams(req)
	if perr != nil {
		writeError(w, http.StatusBadRequest, req.ID, perr.Code, perr.Message, nil)
		return
	}
	at, err := parseHashParam(rawAt, "at")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	name, err := s.gateway.GetUsername(r.Context(), address, at)
	if err != nil {
		s.writeQueryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, name)
}

func (s *Server) handleGetUsernameBytes(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	address, rawAt, perr := lookupParams(req)
	if perr != nil {
		writeError(w, http.StatusBadRequest, req.ID, perr.Code, perr.Message, nil)
		return
	}
	at, err := parseHashParam(rawAt, "at")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	raw, err := s.gateway.GetUsernameBytes(r.Context(), address, at)
	if err != nil {
		s.writeQueryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, raw)
}

func decodeTransactionParam(req *RPCRequest) (*types.Transaction, *RPCError) {
	if len(req.Params) != 1 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "transaction parameter required"}
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid transaction format", Data: err.Error()}
	}
	return &tx, nil
}

func (s *Server) writeSubmitError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		writeError(w, http.StatusBadRequest, id, codeBadOrigin, "BadOrigin", err.Error())
	case errors.Is(err, registry.ErrUsernameTooLong):
		writeError(w, http.StatusBadRequest, id, codeValueTooLong, "ValueTooLong", err.Error())
	case errors.Is(err, core.ErrKnownTransaction):
		writeError(w, http.StatusConflict, id, codeDuplicateTx, "transaction has already been submitted", err.Error())
	case errors.Is(err, core.ErrMempoolFull):
		writeError(w, http.StatusServiceUnavailable, id, codePoolFull, "mempool full", nil)
	case errors.Is(err, core.ErrExceedsBlockWeight):
		writeError(w, http.StatusBadRequest, id, codeTooHeavy, "call exceeds block weight", nil)
	case errors.Is(err, core.ErrUnknownCall):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "unknown call type", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "failed to submit transaction", err.Error())
	}
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	tx, perr := decodeTransactionParam(req)
	if perr != nil {
		writeError(w, http.StatusBadRequest, req.ID, perr.Code, perr.Message, perr.Data)
		return
	}
	if !s.cfg.InstantSeal {
		hash, err := s.node.SubmitTransaction(tx)
		if err != nil {
			s.writeSubmitError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, SubmitResult{TransactionHash: hash})
		return
	}
	receipt, blockHash, err := s.node.Execute(tx)
	if err != nil {
		s.writeSubmitError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, SubmitResult{TransactionHash: receipt.TxHash, Receipt: receiptResult(receipt, blockHash)})
}

func (s *Server) handleEstimateWeight(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	tx, perr := decodeTransactionParam(req)
	if perr != nil {
		writeError(w, http.StatusBadRequest, req.ID, perr.Code, perr.Message, perr.Data)
		return
	}
	weight := s.node.EstimateWeight(tx)
	writeResult(w, req.ID, WeightResult{RefTime: weight.RefTime, ProofSize: weight.ProofSize})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) < 1 || len(req.Params) > 2 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [ethereumAddress, limit?]", nil)
		return
	}
	address, err := parseStringParam(req.Params[0], "ethereumAddress")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	key, err := registry.ParseIdentityKey(address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, modules.CodeInvalidAddress, modules.MessageInvalidAddress, nil)
		return
	}
	limit := 0
	if raw := optionalParam(req.Params, 1); raw != nil {
		value, err := parseUintParam(raw, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		limit = int(min(value, uint64(1<<20)))
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "history index not configured", nil)
		return
	}
	entries, err := s.history.History(r.Context(), key, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "history lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, entries)
}
