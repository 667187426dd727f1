package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"taskcycle/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	facade     *core.Facade
	clock      core.Clock
	logger     *slog.Logger
	location   *time.Location
	authToken  string
}

// NewServer constructs the HTTP API server.
func NewServer(addr string, authToken string, facade *core.Facade, clock core.Clock, logger *slog.Logger, location *time.Location) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	if clock == nil {
		clock = core.SystemClock()
	}
	s := &Server{
		router:    router,
		facade:    facade,
		clock:     clock,
		logger:    logger,
		location:  location,
		authToken: authToken,
	}
	s.registerRoutes()

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.httpServer = httpServer
	return s, nil
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Post("/patterns/preview", s.handlePatternPreview)
		r.Post("/patterns/validate", s.handleValidate)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Delete("/", s.handleDeleteTask)
				r.Post("/pause", s.handlePauseTask)
				r.Post("/resume", s.handleResumeTask)
				r.Get("/stats", s.handleTaskStats)
				r.Get("/instances", s.handleListInstances)
				r.Post("/instances/generate", s.handleGenerateInstance)
				r.Post("/instances/regenerate", s.handleRegenerateInstances)
			})
		})

		r.Route("/instances", func(r chi.Router) {
			r.Get("/{instanceID}", s.handleGetInstance)
			r.Post("/{instanceID}/complete", s.handleCompleteInstance)
		})

		r.Get("/system/stats", s.handleSystemStats)
		r.Get("/system/health", s.handleSystemHealth)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}

// writeCoreError maps engine errors onto HTTP responses.
func (s *Server) writeCoreError(w http.ResponseWriter, err error, fallback string) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]any{
				"code":     "validation_failed",
				"message":  verr.Error(),
				"errors":   verr.Errors,
				"warnings": verr.Warnings,
			},
		})
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrInvalidConfig), errors.Is(err, core.ErrInvalidPattern):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		s.logger.Error(fallback, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}
