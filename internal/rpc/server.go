// Package rpc provides the JSON-RPC 2.0 control API for the vaultd daemon.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/opencustody/vaultd/internal/adapter"
	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/fees"
	"github.com/opencustody/vaultd/internal/provision"
	"github.com/opencustody/vaultd/internal/storage"
	"github.com/opencustody/vaultd/internal/txnorm"
	"github.com/opencustody/vaultd/pkg/logging"
)

// Server is a JSON-RPC 2.0 server.
type Server struct {
	set         *chain.Set
	store       *storage.Storage
	registry    *adapter.Registry
	oracle      *fees.Oracle
	provisioner *provision.Provisioner
	norm        *txnorm.Normalizer
	log         *logging.Logger

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewServer creates a new JSON-RPC server.
func NewServer(set *chain.Set, store *storage.Storage, registry *adapter.Registry,
	oracle *fees.Oracle, provisioner *provision.Provisioner, norm *txnorm.Normalizer) *Server {
	s := &Server{
		set:         set,
		store:       store,
		registry:    registry,
		oracle:      oracle,
		provisioner: provisioner,
		norm:        norm,
		log:         logging.GetDefault().Component("rpc"),
		handlers:    make(map[string]Handler),
	}

	s.registerHandlers()
	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	// Chain catalogue methods
	s.handlers["chains_list"] = s.chainsList
	s.handlers["chains_tokens"] = s.chainsTokens

	// Wallet methods
	s.handlers["wallet_create"] = s.walletCreate
	s.handlers["wallet_import"] = s.walletImport
	s.handlers["wallet_list"] = s.walletList
	s.handlers["wallet_setDefault"] = s.walletSetDefault
	s.handlers["wallet_addToken"] = s.walletAddToken
	s.handlers["wallet_assets"] = s.walletAssets
	s.handlers["wallet_refreshBalance"] = s.walletRefreshBalance
	s.handlers["wallet_send"] = s.walletSend
	s.handlers["wallet_approveDelegate"] = s.walletApproveDelegate
	s.handlers["wallet_history"] = s.walletHistory

	// Fee methods
	s.handlers["fees_estimate"] = s.feesEstimate
}

// Start starts the RPC server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr)
	return nil
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's listen address, useful when started on :0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeError(w, req.ID, errorCode(err), err.Error(), nil)
		return
	}

	s.writeResult(w, req.ID, result)
}

// errorCode maps domain errors onto JSON-RPC codes so clients can tell a
// bad request from a provider failure.
func errorCode(err error) int {
	var ae *adapter.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case adapter.KindNotFound, adapter.KindTerminal:
			return InvalidParams
		}
	}
	return InternalError
}

// writeResult writes a successful response.
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
