// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the wiring layer: it connects the store, services,
// handlers and middleware, decides which URL patterns map to which handler,
// and owns graceful shutdown. main.go stays minimal.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  clock → sqlite.DB → services → handlers → routes
//
// This is the "composition root" pattern: every dependency is built once,
// here, and passed down explicitly. Nothing below this package reaches for
// a global.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/teamrally/internal/auth"
	"github.com/sakif/teamrally/internal/clock"
	"github.com/sakif/teamrally/internal/config"
	"github.com/sakif/teamrally/internal/handler"
	"github.com/sakif/teamrally/internal/metrics"
	"github.com/sakif/teamrally/internal/middleware"
	"github.com/sakif/teamrally/internal/ranking"
	sqliteRepo "github.com/sakif/teamrally/internal/repository/sqlite"
	"github.com/sakif/teamrally/internal/scoring"
	"github.com/sakif/teamrally/internal/service"
)

const (
	shutdownTimeout        = 30 * time.Second
	limiterCleanupInterval = time.Minute
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection. Start closes it after the
// listener has drained; callers that never Start must call Close.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
}

// Option customises New. Tests use these to pin time and speed up bcrypt.
type Option func(*options)

type options struct {
	clock     clock.Clock
	passwords *auth.PasswordService
}

// WithClock replaces the monotonic wall clock used for check-in
// timestamps and token issue/expiry.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPasswordService replaces the production bcrypt cost.
func WithPasswordService(p *auth.PasswordService) Option {
	return func(o *options) { o.passwords = p }
}

// New opens the database, builds every service and registers the routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.NewMonotonic()
	}
	if o.passwords == nil {
		o.passwords = auth.NewPasswordService()
	}

	db, err := sqliteRepo.New(ctx, cfg.DBPath, o.clock)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(o); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz           → database liveness
//	GET  /metrics           → Prometheus text format
//	POST /api/register      → create a user
//	POST /api/login         → exchange credentials for a bearer token
//	GET  /api/rankings      → leaderboard
//	POST /api/teams         → create a team           [auth]
//	POST /api/teams/join    → join a team             [auth]
//	POST /api/checkin       → record a check-in       [auth]
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: extracts the client IP from proxy headers (rate limiting keys on it)
//  3. Logger and Metrics: observe every request, including recovered panics
//  4. Recoverer: catches panics and returns 500 instead of crashing
//
// CORS and rate limiting apply only under /api.
func (s *Server) setupRoutes(o options) error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL, o.clock)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	engine, err := scoring.New(s.config.ScoreAlpha, s.config.ScoreBeta)
	if err != nil {
		return fmt.Errorf("creating scoring engine: %w", err)
	}

	// === Services ===
	authService := service.NewAuthService(s.db, tokens, o.passwords, s.metrics, s.logger)
	teamService := service.NewTeamService(s.db, s.metrics, s.logger)
	checkInService := service.NewCheckInService(s.db, s.metrics, s.logger)
	rankingService := ranking.NewService(s.db, engine, s.logger,
		ranking.WithWorkers(s.config.RankingWorkers),
		ranking.WithRecorder(s.metrics),
	)
	gate := auth.NewGate(tokens, s.db)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, s.logger)
	teamHandler := handler.NewTeamHandler(teamService, checkInService, s.logger)
	rankingHandler := handler.NewRankingHandler(rankingService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.limiter = middleware.NewRateLimiter(
		s.config.RateLimitRPS,
		s.config.RateLimitBurst,
		handler.ErrorWriter(s.logger),
		s.metrics,
		s.logger,
	)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(s.config.CORSOrigins))
		r.Use(s.limiter.Handler)

		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Get("/rankings", rankingHandler.HandleRankings)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(gate, handler.AuthErrorWriter(s.logger, s.metrics)))

			r.Post("/teams", teamHandler.HandleCreate)
			r.Post("/teams/join", teamHandler.HandleJoin)
			r.Post("/checkin", teamHandler.HandleCheckIn)
		})
	})

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the database handle the server owns.
func (s *Server) Store() *sqliteRepo.DB {
	return s.db
}

// Close releases the database. Start calls it on the way out.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests to finish
//  3. Close the database (flushes the WAL, releases the file lock)
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	if s.limiter.Enabled() {
		s.limiter.StartCleanup(limiterCleanupInterval, stopCleanup)
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
