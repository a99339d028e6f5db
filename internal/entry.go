// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/starford/catread/internal/account"
	"github.com/starford/catread/internal/api"
	"github.com/starford/catread/internal/catalog"
	"github.com/starford/catread/internal/ingest"
	"github.com/starford/catread/internal/mcpserver"
	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/progress"
	"github.com/starford/catread/internal/sanitize"
	"github.com/starford/catread/internal/sse"
	"github.com/starford/catread/internal/storage"
	"github.com/starford/catread/internal/store"
)

// components are the services shared by every command.
type components struct {
	cfg      *Config
	logger   *slog.Logger
	library  *storage.FS
	db       *store.DB
	ingestor *ingest.Ingestor
	tracker  *progress.Tracker
	catalog  *catalog.Service
	accounts *account.Service
}

func (c *components) Close() error {
	return c.db.Close()
}

// setup applies opts, installs the JSON logger and opens the library and
// database. onAdded may be nil.
func setup(opts []Option, onAdded func(models.Book)) (*components, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}
	library, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	ingOpts := []ingest.Option{
		ingest.WithExtensions(cfg.Library.Extensions...),
		ingest.WithFileTimeout(cfg.Library.FileTimeout),
	}
	if onAdded != nil {
		ingOpts = append(ingOpts, ingest.WithOnAdded(onAdded))
	}

	return &components{
		cfg:      cfg,
		logger:   logger,
		library:  library,
		db:       db,
		ingestor: ingest.NewIngestor(db, library, sanitize.New(), logger, ingOpts...),
		tracker:  progress.NewTracker(db),
		catalog:  catalog.NewService(db, time.Now),
		accounts: account.NewService(db, bcrypt.DefaultCost),
	}, nil
}

// Run starts the HTTP server and the ingestion scheduler.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := setup(opts, func(b models.Book) {
		broker.PublishBookEvent(sse.TypeBookAdded, b)
	})
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, logger := c.cfg, c.logger

	apiRouter := api.NewRouter(api.Services{
		Books:    c.db,
		Library:  c.library,
		Ingestor: c.ingestor,
		Tracker:  c.tracker,
		Catalog:  c.catalog,
		Accounts: c.accounts,
		Events:   broker,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints are unauthenticated.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Ingest on start, on the interval and after library changes.
	g.Go(func() error {
		return ingest.NewScheduler(c.ingestor, c.library.Root(), cfg.Library.Scheduler(), logger).Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// IngestOnce scans the library a single time and returns the number of
// books added.
func IngestOnce(ctx context.Context, opts ...Option) (int, error) {
	c, err := setup(opts, nil)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	return c.ingestor.Ingest(ctx)
}

// ServeMCP serves the MCP tools over stdin/stdout. Logs must not go to
// stdout, so callers pass WithLogOutput(os.Stderr).
func ServeMCP(ctx context.Context, opts ...Option) error {
	c, err := setup(opts, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.ingestor.Ingest(ctx); err != nil {
		c.logger.Warn("initial ingest failed", slog.String("error", err.Error()))
	}

	srv := mcpserver.New(mcpserver.Deps{
		Books:    c.db,
		Library:  c.library,
		Ingestor: c.ingestor,
		Tracker:  c.tracker,
		Catalog:  c.catalog,
	})
	return srv.ServeStdio()
}

// AddUser registers a reader account.
func AddUser(ctx context.Context, username, password string, opts ...Option) (*models.User, error) {
	c, err := setup(opts, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.accounts.Register(ctx, username, password)
}
