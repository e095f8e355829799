package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ciyamat/atvm/pkg/atvmlog"
	"github.com/ciyamat/atvm/pkg/metrics"
	"github.com/ciyamat/atvm/pkg/store"
)

// ServerConfig holds the RPC server's listener settings.
type ServerConfig struct {
	// Address to listen on (e.g. ":8899" or "127.0.0.1:8899").
	Address string

	// ReadTimeout bounds reading an entire request.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration

	// MaxRequestSize caps a request body in bytes. Creation bytes arrive
	// base64-encoded in the body, so this also bounds deployable AT size.
	MaxRequestSize int64

	// AllowedOrigins for CORS; nil or ["*"] allows all.
	AllowedOrigins []string
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:        ":8899",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024,
	}
}

// Server is the JSON-RPC 2.0 server exposing the AT VM round driver.
type Server struct {
	config   *ServerConfig
	handlers *Handlers
	log      atvmlog.Logger

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// NewServer creates an RPC server backed by s, with the given fee schedule
// seeding each machine's lazily-created ledger.
func NewServer(addr string, s store.Store, log atvmlog.Logger, m *metrics.Metrics, feePerStep uint64, maxStepsPerRound uint32) *Server {
	config := DefaultServerConfig()
	config.Address = addr
	return NewServerWithConfig(config, s, log, m, feePerStep, maxStepsPerRound)
}

// NewServerWithConfig creates an RPC server with custom listener settings.
func NewServerWithConfig(config *ServerConfig, s store.Store, log atvmlog.Logger, m *metrics.Metrics, feePerStep uint64, maxStepsPerRound uint32) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		config:   config,
		handlers: NewHandlers(s, log, m, feePerStep, maxStepsPerRound),
		log:      log,
	}
}

// Handlers returns the method-handler set, for tests and embedding hosts.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start binds the listen address and serves until ctx is cancelled or Stop
// is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return fmt.Errorf("rpc: server already running")
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	var handler http.Handler = http.HandlerFunc(s.handleRPC)
	handler = withLogging(s.log, handler)
	handler = withRecovery(s.log, handler)
	handler = withCORS(s.config.AllowedOrigins, handler)

	s.listener = ln
	s.srv = &http.Server{
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	srv := s.srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	s.srv = nil
	s.listener = nil
	return err
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleRPC reads one HTTP request carrying a single or batch JSON-RPC
// call and dispatches it through the handler table.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, errorResponse(nil, NewRPCError(InvalidRequest, "only POST method is allowed")))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, errorResponse(nil, NewRPCError(ParseError, "failed to read request body")))
		return
	}

	// A leading '[' means a batch.
	if isBatch(body) {
		var calls []json.RawMessage
		if err := json.Unmarshal(body, &calls); err != nil {
			writeJSON(w, errorResponse(nil, NewRPCError(ParseError, "invalid JSON")))
			return
		}
		if len(calls) == 0 {
			writeJSON(w, errorResponse(nil, NewRPCError(InvalidRequest, "empty batch")))
			return
		}
		responses := make([]RPCResponse, 0, len(calls))
		for _, call := range calls {
			resp := s.dispatch(call)
			if resp.ID != nil { // notifications get no response entry
				responses = append(responses, resp)
			}
		}
		writeJSON(w, responses)
		return
	}

	writeJSON(w, s.dispatch(body))
}

// dispatch runs one JSON-RPC call through the handler table.
func (s *Server) dispatch(body []byte) RPCResponse {
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errorResponse(nil, NewRPCError(ParseError, "invalid JSON"))
	}
	if req.JSONRPC != JSONRPCVersion {
		return errorResponse(req.ID, NewRPCError(InvalidRequest, "invalid jsonrpc version"))
	}

	handler := s.handlers.GetHandler(req.Method)
	if handler == nil {
		return errorResponse(req.ID, NewRPCError(MethodNotFound, fmt.Sprintf("method not found: %s", req.Method)))
	}

	result, rpcErr := handler(req.Params)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	return RPCResponse{JSONRPC: JSONRPCVersion, Result: result, ID: req.ID}
}

func isBatch(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return b == '['
		}
	}
	return false
}

func errorResponse(id interface{}, rpcErr *RPCError) RPCResponse {
	return RPCResponse{JSONRPC: JSONRPCVersion, Error: rpcErr, ID: id}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	// Encode errors mean the client went away; nothing useful to do.
	_ = json.NewEncoder(w).Encode(v)
}
