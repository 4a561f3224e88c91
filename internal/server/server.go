package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/database"
	"github.com/insushim/alchan-sub004/internal/modules/events"
	"github.com/insushim/alchan-sub004/internal/modules/market"
	"github.com/insushim/alchan-sub004/internal/modules/settlement"
	"github.com/insushim/alchan-sub004/internal/modules/snapshot"
	"github.com/insushim/alchan-sub004/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Port           int
	SchedulerToken string
	Location       *time.Location
	Log            zerolog.Logger

	DB           *database.DB
	Orchestrator *scheduler.Orchestrator
	Vacation     *scheduler.VacationCache
	Injector     *events.Injector
	Snapshots    *snapshot.Service
	Instruments  *market.InstrumentRepository
	Trades       *settlement.TradeService
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	token  string
	loc    *time.Location

	db           *database.DB
	orchestrator *scheduler.Orchestrator
	vacation     *scheduler.VacationCache
	injector     *events.Injector
	snapshots    *snapshot.Service
	instruments  *market.InstrumentRepository
	trades       *settlement.TradeService
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		token:        cfg.SchedulerToken,
		loc:          cfg.Location,
		db:           cfg.DB,
		orchestrator: cfg.Orchestrator,
		vacation:     cfg.Vacation,
		injector:     cfg.Injector,
		snapshots:    cfg.Snapshots,
		instruments:  cfg.Instruments,
		trades:       cfg.Trades,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/scheduler", func(r chi.Router) {
			r.Use(s.bearerAuth)
			r.Post("/tick", s.handleTick)
			r.Put("/vacation", s.handleSetVacation)
		})

		r.Route("/classes/{code}/events", func(r chi.Router) {
			r.Use(s.bearerAuth)
			r.Post("/trigger", s.handleTriggerEvent)
		})

		r.Route("/market", func(r chi.Router) {
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/index", s.handleIndex)
		})

		r.Route("/trades", func(r chi.Router) {
			r.Post("/buy", s.handleBuy)
			r.Post("/sell", s.handleSell)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
