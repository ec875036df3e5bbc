package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bpr-rehab/campaigner/internal/api"
	"github.com/bpr-rehab/campaigner/internal/config"
	"github.com/bpr-rehab/campaigner/internal/db"
	"github.com/bpr-rehab/campaigner/internal/dispatch"
	"github.com/bpr-rehab/campaigner/internal/metrics"
	"github.com/bpr-rehab/campaigner/internal/ratelimit"
	"github.com/bpr-rehab/campaigner/internal/recipients"
	"github.com/bpr-rehab/campaigner/internal/repository"
	"github.com/bpr-rehab/campaigner/internal/template"
	"github.com/bpr-rehab/campaigner/internal/transport"
	"github.com/bpr-rehab/campaigner/internal/unsubscribe"
)

// App is the main application
type App struct {
	config     *config.Config
	database   *db.DB
	apiServer  *api.Server
	controller *dispatch.Controller
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	campaigns := repository.NewCampaignRepository(database.DB)
	jobs := repository.NewJobRepository(database.DB)
	contacts := repository.NewContactRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.NewLimiter(cfg.RateLimit)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		logger.Info("rate limiting enabled",
			"per_hour", cfg.RateLimit.MessagesPerHour,
			"per_day", cfg.RateLimit.MessagesPerDay)
	}

	m := metrics.New()
	metrics.SetGlobal(m)

	signer := unsubscribe.NewSigner(cfg.Auth.UnsubscribeSecret, cfg.Links.BaseURL)

	controller := dispatch.NewController(dispatch.Options{
		Campaigns:        campaigns,
		Jobs:             jobs,
		Resolver:         recipients.NewResolver(contacts),
		Renderer:         template.NewRenderer(templates),
		Transport:        transport.NewSMTP(cfg.SMTP, logger.With("component", "smtp")),
		Limiter:          limiterOrNil(limiter),
		Signer:           signer,
		Logger:           logger.With("component", "dispatch"),
		DefaultBatchSize: cfg.Dispatch.DefaultBatchSize,
		SendTimeout:      cfg.SMTP.Timeout,
	})

	apiServer := api.NewServer(controller, campaigns, jobs, contacts, signer,
		cfg, logger.With("component", "api"))

	return &App{
		config:     cfg,
		database:   database,
		apiServer:  apiServer,
		controller: controller,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Controller exposes the dispatch controller for CLI-driven runs.
func (a *App) Controller() *dispatch.Controller {
	return a.controller
}

// limiterOrNil keeps the controller's limiter interface nil when rate
// limiting is disabled, instead of a typed-nil *ratelimit.Limiter.
func limiterOrNil(l *ratelimit.Limiter) dispatch.RateLimiter {
	if l == nil {
		return nil
	}
	return l
}

// Run starts the API server and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting campaigner",
		"api_addr", a.config.Server.ListenAddr,
		"database", a.config.Database.Path,
		"smtp_host", a.config.SMTP.Host)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.limiter != nil {
		if err := a.limiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}

	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
