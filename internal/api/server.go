package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/maillist/internal/broadcast"
	"github.com/foxzi/maillist/internal/config"
	"github.com/foxzi/maillist/internal/ingest"
	"github.com/foxzi/maillist/internal/metrics"
	"github.com/foxzi/maillist/internal/models"
)

// ListRegistry creates and enumerates lists
type ListRegistry interface {
	Create(ctx context.Context, title string, props []models.CustomProperty) (*models.List, error)
	List(ctx context.Context) ([]models.List, error)
}

// Ingestor runs the CSV ingestion pipeline
type Ingestor interface {
	Ingest(ctx context.Context, listID string, r io.Reader) (*ingest.Report, error)
}

// Broadcaster runs the mail-merge broadcast engine
type Broadcaster interface {
	Broadcast(ctx context.Context, listID, subject, body string) (*broadcast.Result, error)
}

// Unsubscriber flips the unsubscribe flag for a token
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, token string) (*models.Subscriber, error)
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics

	lists       ListRegistry
	ingestor    Ingestor
	broadcaster Broadcaster
	subscribers Unsubscriber
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
	lists ListRegistry,
	ingestor Ingestor,
	broadcaster Broadcaster,
	subscribers Unsubscriber,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		lists:       lists,
		ingestor:    ingestor,
		broadcaster: broadcaster,
		subscribers: subscribers,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Metrics.Enabled {
		s.router.Use(s.metrics.Middleware)
	}

	s.router.Get("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		s.router.Method("GET", s.cfg.Metrics.Path, s.metrics.Handler())
	}

	s.router.Route("/lists", func(r chi.Router) {
		r.Post("/", s.handleCreateList)
		r.Get("/", s.handleListLists)
		r.Post("/{id}/users", s.handleImportUsers)
		r.Post("/{id}/email", s.handleBroadcast)
		r.Get("/unsubscribe/{token}", s.handleUnsubscribe)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.cfg.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
