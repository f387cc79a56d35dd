package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"songfactory/internal/jobs"
	"songfactory/internal/logging"
)

type server struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
}

func newServer(bind, token string, d *Daemon, logger *slog.Logger) *server {
	srv := &server{bind: bind, logger: logger, daemon: d}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", authMiddleware(token, func(w http.ResponseWriter, r *http.Request) {
		d.hub.handleEvents(w, r)
	}))
	mux.HandleFunc("GET /api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("POST /api/run", authMiddleware(token, srv.handleRun))
	mux.HandleFunc("POST /api/stop", authMiddleware(token, srv.handleStop))
	mux.HandleFunc("POST /api/confirm", authMiddleware(token, srv.handleConfirm))

	srv.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *server) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("serve listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve listener error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()
	return nil
}

func (s *server) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *server) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.http.Shutdown(shutdownCtx)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

type runRequest struct {
	IDs       []int64 `json:"ids"`
	Transport string  `json:"transport"`
	DryRun    bool    `json:"dry_run"`
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	runID, err := s.daemon.StartRun(jobs.RunOptions{IDs: req.IDs, Transport: req.Transport, DryRun: req.DryRun})
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.daemon.StopRun()
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"stopping": true})
}

func (s *server) handleConfirm(w http.ResponseWriter, _ *http.Request) {
	s.daemon.Confirm()
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"confirmed": true})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("failed to write response", logging.Error(err))
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
