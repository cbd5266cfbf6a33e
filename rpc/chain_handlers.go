package rpc

import (
	"errors"
	"net/http"

	"namechain/core"
)

func (s *Server) handleGetHead(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	chain := s.node.Chain()
	writeResult(w, req.ID, HeadResult{Hash: chain.Tip(), Height: chain.GetHeight()})
}

func (s *Server) handleGetBlockHash(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "height parameter required", nil)
		return
	}
	height, err := parseUintParam(req.Params[0], "height")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	hash, err := s.node.Chain().GetBlockHash(height)
	if errors.Is(err, core.ErrBlockNotFound) {
		writeResult(w, req.ID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load block hash", err.Error())
		return
	}
	writeResult(w, req.ID, hash)
}

func (s *Server) handleGetHeader(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [hash?]", nil)
		return
	}
	at, err := parseHashParam(optionalParam(req.Params, 0), "hash")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	hash := s.node.BestHash()
	if at != nil {
		hash = *at
	}
	block, err := s.node.Chain().GetBlockByHash(hash)
	if errors.Is(err, core.ErrBlockNotFound) {
		writeResult(w, req.ID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load block", err.Error())
		return
	}
	writeResult(w, req.ID, headerResult(hash, block))
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "transaction hash required", nil)
		return
	}
	txHash, err := parseHashParam(optionalParam(req.Params, 0), "txHash")
	if err != nil || txHash == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction hash", nil)
		return
	}
	receipt, blockHash, ok, err := s.node.TransactionReceipt(*txHash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load receipt", err.Error())
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, receiptResult(receipt, blockHash))
}
