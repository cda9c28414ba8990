package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"vaultd/native/cdp"
	"vaultd/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Engine-specific error codes surfaced to RPC clients.
const (
	codeNotInitialized     = -32040
	codeAlreadyInitialized = -32041
	codeEmergencyShutdown  = -32042
	codeBelowMinimumRatio  = -32043
	codeAboveThreshold     = -32044
	codeInsufficientFunds  = -32045
	codeVaultNotFound      = -32046
	codeInvalidPrice       = -32047
	codeTransferFailed     = -32048
	codeNoDebt             = -32049
)

// Server exposes the vault engine over JSON-RPC. Write methods require a
// bearer token when one is configured; reads are open.
type Server struct {
	engine    *cdp.Engine
	authToken string
	logger    *slog.Logger
	metrics   *metrics.VaultMetrics
}

// NewServer wires the engine behind the HTTP surface. An empty token disables
// authentication, which is only sane for local development.
func NewServer(engine *cdp.Engine, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		authToken: strings.TrimSpace(authToken),
		logger:    logger,
		metrics:   metrics.Shared(),
	}
}

// Start serves RPC on addr until the listener fails.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.logger.Info("rpc server listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

// Handler returns the dispatch entry point for embedding in an existing mux.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// writeEngineError maps the engine's sentinel errors onto stable RPC codes.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	code := codeServerError
	status := http.StatusOK
	switch {
	case errors.Is(err, cdp.ErrUnauthorized):
		code = codeUnauthorized
	case errors.Is(err, cdp.ErrNotInitialized):
		code = codeNotInitialized
	case errors.Is(err, cdp.ErrAlreadyInitialized):
		code = codeAlreadyInitialized
	case errors.Is(err, cdp.ErrEmergencyShutdown):
		code = codeEmergencyShutdown
	case errors.Is(err, cdp.ErrBelowMinimumRatio):
		code = codeBelowMinimumRatio
	case errors.Is(err, cdp.ErrAboveLiquidationThreshold):
		code = codeAboveThreshold
	case errors.Is(err, cdp.ErrInsufficientCollateral), errors.Is(err, cdp.ErrInsufficientDebt):
		code = codeInsufficientFunds
	case errors.Is(err, cdp.ErrVaultNotFound):
		code = codeVaultNotFound
	case errors.Is(err, cdp.ErrInvalidPrice):
		code = codeInvalidPrice
	case errors.Is(err, cdp.ErrInvalidParameter):
		code = codeInvalidParams
	case errors.Is(err, cdp.ErrTransferFailed):
		code = codeTransferFailed
	case errors.Is(err, cdp.ErrNoDebt):
		code = codeNoDebt
	}
	writeError(w, status, id, code, err.Error(), nil)
}

// errResult converts an engine error into the metrics result label.
func errResult(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.Is(err, cdp.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, cdp.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, cdp.ErrEmergencyShutdown):
		return "shutdown"
	case errors.Is(err, cdp.ErrBelowMinimumRatio):
		return "below_ratio"
	case errors.Is(err, cdp.ErrAboveLiquidationThreshold):
		return "above_threshold"
	case errors.Is(err, cdp.ErrTransferFailed):
		return "transfer_failed"
	default:
		return "error"
	}
}

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

	switch req.Method {
	case "vault_getVault":
		s.handleGetVault(w, req)
	case "vault_getCollateralRatio":
		s.handleGetCollateralRatio(w, req)
	case "vault_getPrice":
		s.handleGetPrice(w, req)
	case "vault_getRiskParams":
		s.handleGetRiskParams(w, req)
	case "vault_hasRole":
		s.handleHasRole(w, req)
	case "vault_deposit":
		s.authorized(w, r, req, s.handleDeposit)
	case "vault_mint":
		s.authorized(w, r, req, s.handleMint)
	case "vault_repay":
		s.authorized(w, r, req, s.handleRepay)
	case "vault_withdraw":
		s.authorized(w, r, req, s.handleWithdraw)
	case "vault_liquidate":
		s.authorized(w, r, req, s.handleLiquidate)
	case "vault_updatePrice":
		s.authorized(w, r, req, s.handleUpdatePrice)
	case "vault_initialize":
		s.authorized(w, r, req, s.handleInitialize)
	case "vault_triggerEmergencyShutdown":
		s.authorized(w, r, req, s.handleTriggerShutdown)
	case "vault_setRiskParam":
		s.authorized(w, r, req, s.handleSetRiskParam)
	case "vault_updateRole":
		s.authorized(w, r, req, s.handleUpdateRole)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request, req *RPCRequest, next func(http.ResponseWriter, *RPCRequest)) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
