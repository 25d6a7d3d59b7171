// Package api provides the HTTP API for the reader engine: typed operations
// for session, playback, navigation, and progress control, plus the renderer
// websocket endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/listenup-reader/internal/http/response"
	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/session"
	"github.com/listenupapp/listenup-reader/internal/store/sqlite"
	"github.com/listenupapp/listenup-reader/internal/validation"
)

// SyncJournal serves delivery history for the progress endpoints.
type SyncJournal interface {
	ListByBook(ctx context.Context, bookID string, limit int) ([]*sqlite.Entry, error)
}

// Server holds dependencies for the HTTP API.
type Server struct {
	manager   *session.Manager
	store     progress.RemoteStore
	journal   SyncJournal
	validator *validation.Validator
	router    *chi.Mux
	logger    *slog.Logger
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(manager *session.Manager, store progress.RemoteStore, journal SyncJournal, logger *slog.Logger) *Server {
	s := &Server{
		manager:   manager,
		store:     store,
		journal:   journal,
		validator: validation.New(),
		router:    chi.NewRouter(),
		logger:    logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	// The renderer webview and companion apps connect from app-local origins.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

// setupRoutes registers the typed operations plus the handlers that cannot
// be expressed as typed operations (health, websocket upgrade).
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealthCheck)
	s.router.Get("/api/v1/sessions/{id}/renderer", s.handleRendererSocket)

	humaConfig := huma.DefaultConfig("ListenUp Reader", "1.0.0")
	humaConfig.Servers = []*huma.Server{{URL: "/"}}
	api := humachi.New(s.router, humaConfig)

	s.registerSessionOperations(api)
	s.registerPlaybackOperations(api)
	s.registerNavigationOperations(api)
	s.registerProgressOperations(api)
}

// handleHealthCheck reports server health.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]any{
		"status":        "healthy",
		"open_sessions": len(s.manager.Sessions()),
	}, s.logger)
}

// lookup resolves a session id into its open session.
func (s *Server) lookup(id string) (*session.Session, error) {
	sess, ok := s.manager.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("no session " + id)
	}
	return sess, nil
}
