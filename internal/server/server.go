package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/leagueauction/internal/domain"
	"github.com/alanyoungcy/leagueauction/internal/server/handler"
	"github.com/alanyoungcy/leagueauction/internal/server/middleware"
	"github.com/alanyoungcy/leagueauction/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // operator key; with JWTSecret also empty, authentication is disabled
	JWTSecret   string

	// RateLimiter throttles every authenticated caller (or client IP) to
	// RateLimit requests per RateWindow. Nil disables it.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Auctions *handler.AuctionHandler
	Archive  *handler.ArchiveHandler
	Tokens   *handler.TokenHandler
}

// Server is the HTTP + WebSocket API of the auction daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limit, auth, logging, CORS) and attaches the
// WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Auction lifecycle.
	a := handlers.Auctions
	mux.HandleFunc("GET /api/auctions", a.ListAuctions)
	mux.HandleFunc("POST /api/auctions", a.CreateAuction)
	mux.HandleFunc("GET /api/auctions/{id}", a.GetAuction)
	mux.HandleFunc("GET /api/auctions/{id}/state", a.GetState)
	mux.HandleFunc("POST /api/auctions/{id}/start", a.Start)
	mux.HandleFunc("POST /api/auctions/{id}/pause", a.Pause)
	mux.HandleFunc("POST /api/auctions/{id}/resume", a.Resume)
	mux.HandleFunc("POST /api/auctions/{id}/complete-item", a.CompleteItem)
	mux.HandleFunc("POST /api/auctions/{id}/auto-nominate", a.AutoNominate)
	mux.HandleFunc("POST /api/auctions/{id}/force-complete", a.ForceComplete)
	mux.HandleFunc("POST /api/auctions/{id}/cancel", a.Cancel)
	mux.HandleFunc("POST /api/auctions/{id}/reset-order", a.ResetOrder)

	// Participant actions.
	mux.HandleFunc("POST /api/auctions/{id}/nominations", a.Nominate)
	mux.HandleFunc("POST /api/auctions/{id}/bids", a.PlaceBid)

	// Read models.
	mux.HandleFunc("GET /api/auctions/{id}/bids", a.ListBids)
	mux.HandleFunc("GET /api/auctions/{id}/budgets", a.ListBudgets)
	mux.HandleFunc("GET /api/auctions/{id}/participants/{pid}/budget", a.GetBudget)
	mux.HandleFunc("GET /api/auctions/{id}/items", a.ListItems)
	mux.HandleFunc("GET /api/auctions/{id}/order", a.GetOrder)
	mux.HandleFunc("GET /api/auctions/{id}/results", a.GetResults)

	// Archive and audit trail.
	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/auctions/{id}/audit", handlers.Archive.ListAudit)
		mux.HandleFunc("GET /api/archive", handlers.Archive.ListArchived)
		mux.HandleFunc("GET /api/archive/{id}", handlers.Archive.GetArchivedResults)
	}

	// Participant tokens.
	if handlers.Tokens != nil {
		mux.HandleFunc("POST /api/tokens", handlers.Tokens.IssueToken)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Rate limiting runs after auth so callers are keyed by subject.
	h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow, logger)(h)

	// Apply auth middleware (skips if no credentials are configured).
	h = middleware.Auth(middleware.AuthConfig{APIKey: cfg.APIKey, JWTSecret: cfg.JWTSecret})(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
