package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"fission/internal/logging"
)

// metricsServer exposes /metrics and /healthz. A nil server is a no-op.
type metricsServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func newMetricsServer(bind string, d *Daemon, logger *slog.Logger) *metricsServer {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil
	}
	srv := &metricsServer{bind: bind, logger: logger, daemon: d}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *metricsServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.daemon.metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *metricsServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("metrics server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *metricsServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *metricsServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type healthResponse struct {
	Running    bool   `json:"running"`
	ActiveRuns int    `json:"active_runs"`
	Database   string `json:"database"`
	LastError  string `json:"last_error,omitempty"`
}

func (s *metricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Running:  s.daemon.running.Load(),
		Database: "ok",
	}
	status := http.StatusOK
	if err := s.daemon.store.Ping(r.Context()); err != nil {
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	summary := s.daemon.workflow.Status(r.Context())
	resp.ActiveRuns = summary.ActiveRuns
	resp.LastError = summary.LastError

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode health response", logging.Error(err))
	}
}
