package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gopower/app"
	"gopower/domain/core"
	"gopower/internal"
	apperrors "gopower/internal/errors"
	"gopower/ports"
)

// Server exposes the power engine over HTTP as plain JSON tables. The
// engine itself has no network dependency; this is a delivery surface on
// top of app.PowerService.
type Server struct {
	router  *chi.Mux
	service *app.PowerService
	logger  *internal.Logger
}

// NewServer creates the HTTP server around a power service.
func NewServer(service *app.PowerService, logger *internal.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		service: service,
		logger:  logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/power", s.handlePower)
		r.Post("/sequential", s.handleSequential)
		r.Post("/boundary", s.handleBoundary)
	})
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": app.EngineVersion})
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req app.PowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.service.EstimatePower(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSequential(w http.ResponseWriter, r *http.Request) {
	var req app.SequentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.service.EstimateSequentialPower(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// boundaryRequest asks for a derived LookSchedule without running trials.
type boundaryRequest struct {
	InterimN []int                `json:"interim_n"`
	Alpha    float64              `json:"alpha"`
	Family   ports.SpendingFamily `json:"family"`
}

func (s *Server) handleBoundary(w http.ResponseWriter, r *http.Request) {
	var req boundaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	schedule, err := s.service.DesignBoundary(r.Context(), req.InterimN, req.Alpha, req.Family)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schedule)
}

// writeEngineError maps the domain error taxonomy onto HTTP statuses:
// malformed inputs are the caller's fault, cancellation is the client
// going away, everything else is a server error.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case core.IsInvalidDesign(err):
		s.writeCoded(w, http.StatusBadRequest, apperrors.CodeInvalidDesign, err)
	case core.IsInvalidConfiguration(err):
		s.writeCoded(w, http.StatusBadRequest, apperrors.CodeInvalidConfiguration, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeCoded(w, http.StatusServiceUnavailable, apperrors.CodeCancelled, err)
	default:
		s.logger.Error("request failed: %v", err)
		s.writeCoded(w, http.StatusInternalServerError, apperrors.CodeInternal, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeCoded(w http.ResponseWriter, status int, code string, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encoding response: %v", err)
	}
}
