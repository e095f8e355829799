package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server exposes the instrument set and health report over HTTP:
// /metrics in Prometheus text format, /health and /ready as JSON.
type Server struct {
	addr    string
	metrics *Metrics
	health  *Health

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// NewServer creates a server for m (required) and h (may be nil, in which
// case /health always reports healthy and /ready always reports ready).
func NewServer(addr string, m *Metrics, h *Health) *Server {
	return &Server{addr: addr, metrics: m, health: h}
}

// Start binds the listen address and serves in the background. The bound
// address is available from Addr immediately after Start returns.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	s.listener = ln
	s.srv = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go s.srv.Serve(ln)

	if s.health != nil {
		s.health.SetReady(true)
	}
	return nil
}

// Stop shuts the server down, honoring ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	if s.health != nil {
		s.health.SetReady(false)
	}
	err := s.srv.Shutdown(ctx)
	s.srv = nil
	s.listener = nil
	return err
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

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	s.metrics.WriteProm(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := Status{Healthy: true, Ready: true}
	if s.health != nil {
		status = s.health.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := true
	if s.health != nil {
		ready = s.health.Ready()
	}
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}
