// Package api exposes the campaign dispatcher over HTTP: campaign CRUD,
// the five lifecycle operations, the public unsubscribe endpoint, and
// health/metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bpr-rehab/campaigner/internal/config"
	"github.com/bpr-rehab/campaigner/internal/dispatch"
	"github.com/bpr-rehab/campaigner/internal/metrics"
	"github.com/bpr-rehab/campaigner/internal/repository"
	"github.com/bpr-rehab/campaigner/internal/unsubscribe"
)

// Controller is the slice of the dispatch controller the API needs.
type Controller interface {
	Prepare(ctx context.Context, campaignID string) (*dispatch.PrepareResult, error)
	Dispatch(ctx context.Context, campaignID string) (*dispatch.DispatchResult, error)
	Pause(ctx context.Context, campaignID string) error
	Cancel(ctx context.Context, campaignID string) (*dispatch.CancelResult, error)
	Status(ctx context.Context, campaignID string) (*dispatch.StatusResult, error)
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	controller Controller
	campaigns  *repository.CampaignRepository
	jobs       *repository.JobRepository
	contacts   *repository.ContactRepository
	signer     *unsubscribe.Signer
	cfg        *config.Config
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(
	controller Controller,
	campaigns *repository.CampaignRepository,
	jobs *repository.JobRepository,
	contacts *repository.ContactRepository,
	signer *unsubscribe.Signer,
	cfg *config.Config,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		controller: controller,
		campaigns:  campaigns,
		jobs:       jobs,
		contacts:   contacts,
		signer:     signer,
		cfg:        cfg,
		logger:     logger,
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Public endpoints
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/unsubscribe", s.handleUnsubscribe)
	if m := metrics.Global(); m != nil {
		s.router.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	}

	// Management API (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", s.handleCreateCampaign)
			r.Get("/", s.handleListCampaigns)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCampaign)
				r.Put("/", s.handleUpdateCampaign)
				r.Delete("/", s.handleDeleteCampaign)

				r.Post("/prepare", s.handlePrepare)
				r.Post("/dispatch", s.handleDispatch)
				r.Post("/pause", s.handlePause)
				r.Post("/cancel", s.handleCancel)
				r.Get("/status", s.handleStatus)
				r.Get("/jobs", s.handleListJobs)
			})
		})
	})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
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
