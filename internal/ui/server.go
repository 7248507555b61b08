// internal/ui/server.go
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/kamibot/internal/agent"
	"github.com/user/kamibot/internal/state"
	"github.com/user/kamibot/internal/types"
)

// StatusSource reports the orchestrator's current state and face, and
// clears a stuck Error state on request.
type StatusSource interface {
	State() agent.State
	Expression() agent.Expression
	Recover() error
}

// EventSource reads back journaled events.
type EventSource interface {
	Session() types.SessionID
	Tail(ctx context.Context, sessionID types.SessionID, limit int) ([]*state.Entry, error)
}

// Server is the HTTP surface for UI clients.
type Server struct {
	status StatusSource
	events EventSource
	hub    *Hub
	mux    *http.ServeMux
}

// NewServer creates a Server. events may be nil, in which case /api/events
// reports that the journal is not configured.
func NewServer(status StatusSource, events EventSource, hub *Hub) *Server {
	s := &Server{
		status: status,
		events: events,
		hub:    hub,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/recover", s.handleRecover)
	s.mux.HandleFunc("GET /ws", hub.ServeWS)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("ui server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type stateResponse struct {
	State      agent.State      `json:"state"`
	Expression agent.Expression `json:"expression"`
	SessionID  types.SessionID  `json:"session_id,omitempty"`
	Clients    int              `json:"clients"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, http.StatusOK)
}

// handleRecover moves an agent stuck in Error back to Idle. A running turn
// is a conflict.
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	if err := s.status.Recover(); err != nil {
		var invalid *agent.InvalidTransitionError
		if !errors.Is(err, agent.ErrTurnActive) && !errors.As(err, &invalid) {
			slog.Error("recover failed", "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	slog.Info("agent recovered from error")
	s.writeState(w, http.StatusOK)
}

func (s *Server) writeState(w http.ResponseWriter, code int) {
	resp := stateResponse{
		State:      s.status.State(),
		Expression: s.status.Expression(),
		Clients:    s.hub.Clients(),
	}
	if s.events != nil {
		resp.SessionID = s.events.Session()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, `{"error":"journal not configured"}`, http.StatusServiceUnavailable)
		return
	}

	sessionID := s.events.Session()
	if q := r.URL.Query().Get("session"); q != "" {
		if q == "." || q == ".." || strings.ContainsAny(q, `/\`) {
			http.Error(w, `{"error":"invalid session"}`, http.StatusBadRequest)
			return
		}
		sessionID = types.SessionID(q)
	}
	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.events.Tail(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("tail events failed", "session_id", sessionID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*state.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
