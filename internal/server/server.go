// Package server exposes the decision endpoint and the management REST API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	accessrepo "media-stream-auth/backend/internal/accesslog/repository"
	"media-stream-auth/backend/internal/authz"
	"media-stream-auth/backend/internal/config"
	"media-stream-auth/backend/internal/ledger"
	tokenrepo "media-stream-auth/backend/internal/token/repository"
)

// Server wires the decision engine and stores to HTTP routes.
type Server struct {
	router chi.Router
	log    zerolog.Logger

	engine *authz.Engine
	ledger *ledger.Ledger
	tokens tokenrepo.Repository
	logs   accessrepo.Repository // nil when no log store is wired

	apiKey             string
	decisionBudget     time.Duration
	defaultMaxSessions int
	nowF               func() time.Time
}

// New returns a server with all routes registered. logs may be nil.
func New(
	cfg *config.Config,
	engine *authz.Engine,
	lg *ledger.Ledger,
	tokens tokenrepo.Repository,
	logs accessrepo.Repository,
	log zerolog.Logger,
) *Server {
	s := &Server{
		router:             chi.NewRouter(),
		log:                log,
		engine:             engine,
		ledger:             lg,
		tokens:             tokens,
		logs:               logs,
		apiKey:             cfg.APIKey,
		decisionBudget:     cfg.DecisionBudgetDur(),
		defaultMaxSessions: cfg.DefaultMaxSessions,
		nowF:               func() time.Time { return time.Now().UTC() },
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(Recover, CorrelationID, RequestLogger(s.log))

	s.router.Get("/healthz", s.handleHealth)

	// Decision endpoint for the streaming server. Never behind the API-key
	// gate: the caller cannot authenticate itself.
	s.router.Get("/auth", s.handleAuthorize)
	s.router.Post("/auth", s.handleAuthorize)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))

		r.Post("/tokens", s.handleCreateToken)
		r.Get("/tokens", s.handleListTokens)
		r.Get("/tokens/{value}", s.handleGetToken)
		r.Patch("/tokens/{value}", s.handleUpdateToken)
		r.Delete("/tokens/{value}", s.handleDeleteToken)

		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{id}", s.handleTerminateSession)
		r.Post("/sessions/cleanup", s.handleCleanupSessions)

		r.Get("/logs", s.handleListAccessLogs)
	})
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}
