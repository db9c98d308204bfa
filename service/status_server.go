package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-rerun/runner"
)

// SnapshotProvider gives the current progress of a run
type SnapshotProvider interface {
	Snapshot() runner.ProgressSnapshot
}

// StatusServer answers health checks and exposes the run progress
type StatusServer struct {
	log      log.Logger
	progress SnapshotProvider
	server   *http.Server
	listener net.Listener
}

func NewStatusServer(logger log.Logger, progress SnapshotProvider) *StatusServer {
	return &StatusServer{log: logger, progress: progress}
}

// Start listens on addr and serves in the background
func (s *StatusServer) Start(addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", s.HandleHealthz)
	hdlr.HandleFunc("/status", s.HandleStatus)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler: c.Handler(hdlr),
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server stopped", "err", err)
		}
	}()
	return nil
}

// Addr returns the address the server listens on, nil before Start
func (s *StatusServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (s *StatusServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.progress.Snapshot()); err != nil {
		s.log.Warn("Failed to write status", "err", err)
	}
}
