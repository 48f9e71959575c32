package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relaykit/relayq/pkg/queue"
)

// Server serves the control surface for one queue controller.
type Server struct {
	ctrl   *queue.Controller
	logger *slog.Logger
}

// Option is a functional option for configuring a Server
type Option func(*Server)

// WithLogger sets the logger for the control server
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a control server over the given controller.
func NewServer(ctrl *queue.Controller, opts ...Option) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("controller cannot be nil")
	}

	s := &Server{
		ctrl:   ctrl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Router returns the HTTP routes of the control surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/status", s.command(queue.CommandStatus))
	r.Post("/clear", s.command(queue.CommandClear))
	r.Post("/start", s.command(queue.CommandStart))
	r.Post("/stop", s.command(queue.CommandStop))
	r.Post("/mode", s.handleMode)
	return r
}

// command builds a handler for commands that take no request body.
func (s *Server) command(kind queue.CommandKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.ctrl.Execute(r.Context(), queue.Command{Kind: kind})
		if err != nil {
			s.writeError(w, kind, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

type modeRequest struct {
	Mode queue.Mode `json:"mode"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	resp, err := s.ctrl.Execute(r.Context(), queue.Command{Kind: queue.CommandMode, Mode: req.Mode})
	if err != nil {
		s.writeError(w, queue.CommandMode, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, kind queue.CommandKind, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, queue.ErrUnknownCommand), errors.Is(err, queue.ErrInvalidMode):
		status = http.StatusBadRequest
	case errors.Is(err, queue.ErrAlreadyRunning), errors.Is(err, queue.ErrNotRunning):
		status = http.StatusConflict
	}

	s.logger.Warn("control command failed",
		slog.String("command", string(kind)),
		slog.Int("status", status),
		slog.String("error", err.Error()))
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode control response", slog.String("error", err.Error()))
	}
}
