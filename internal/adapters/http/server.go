// Package http exposes the engine over HTTP. It is a thin transport: it
// knows about routes and status codes but nothing about stages or
// transitions. Action responses are plain text, since the caller is a
// language model consuming rendered prompts.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/concierge-sh/concierge/internal/logging"
	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/concierge-sh/concierge/pkg/observability"
)

// Engine defines what the transport needs from the workflow engine.
type Engine interface {
	CreateSession(ctx context.Context) (string, string, error)
	Handle(ctx context.Context, sessionID string, raw []byte) (string, error)
	EndSession(ctx context.Context, sessionID string) (string, error)
	Info(ctx context.Context, sessionID string) (domain.SessionInfo, error)
	Sessions(ctx context.Context) ([]string, error)
}

// Server wires the engine to the router.
type Server struct {
	engine  Engine
	metrics *observability.Metrics
	logger  *slog.Logger
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the Prometheus collectors. A default private set is used
// when unset.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...ServerOption) http.Handler {
	s := &Server{
		engine:  engine,
		metrics: observability.NewMetrics(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/sessions", s.createSession)
	r.Get("/sessions", s.listSessions)
	r.Get("/sessions/{sessionID}", s.sessionInfo)
	r.Post("/sessions/{sessionID}/actions", s.handleAction)
	r.Delete("/sessions/{sessionID}", s.endSession)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createSession handles POST /sessions.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sessionID, message, err := s.engine.CreateSession(r.Context())
	if err != nil {
		s.logger.Error("failed to create session", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.SessionStarted()
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": sessionID,
		"message":    message,
	})
}

// listSessions handles GET /sessions.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.Sessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

// sessionInfo handles GET /sessions/{sessionID}.
func (s *Server) sessionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Info(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleAction handles POST /sessions/{sessionID}/actions. The body is the
// raw action envelope; the response is the rendered continuation message.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var peek struct {
		Action string `json:"action"`
	}
	_ = json.Unmarshal(raw, &peek)
	if peek.Action != "" {
		s.metrics.ObserveAction(peek.Action)
	}

	message, err := s.engine.Handle(r.Context(), sessionID, raw)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(message)); err != nil {
		s.logger.Warn("failed to write response", "session_id", sessionID, "err", err)
	}
}

// endSession handles DELETE /sessions/{sessionID}.
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	message, err := s.engine.EndSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.metrics.SessionEnded()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(message))
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
