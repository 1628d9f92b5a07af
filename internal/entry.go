// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notionclean/internal/api"
	"github.com/starford/notionclean/internal/cleaner"
	"github.com/starford/notionclean/internal/cleanservice"
	"github.com/starford/notionclean/internal/manifest"
	"github.com/starford/notionclean/internal/mcpserver"
	"github.com/starford/notionclean/internal/metrics"
	"github.com/starford/notionclean/internal/models"
	"github.com/starford/notionclean/internal/sse"
	"github.com/starford/notionclean/internal/storage"
	"github.com/starford/notionclean/internal/watch"
)

// runtime holds everything a command needs once the configuration has been
// turned into live components.
type runtime struct {
	cfg      *Config
	logger   *slog.Logger
	cleaner  *cleaner.Cleaner
	service  *cleanservice.Service
	db       *manifest.DB
	registry *prometheus.Registry
	broker   *sse.Broker
}

func (rt *runtime) close() {
	if rt.broker != nil {
		rt.broker.Close()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("manifest close failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stderr, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the structured logger: JSON by default, text on request.
func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.App.LogLevel}
	if cfg.App.LogFormat == LogFormatText {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// build wires storage, manifest, metrics, the SSE broker and the cleaner.
func build(app *application) (*runtime, error) {
	cfg := app.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger := newLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("source", cfg.Export.Source),
		slog.String("destination", cfg.Export.Destination),
		slog.String("manifest_path", cfg.Manifest.Path),
		slog.Int("workers", cfg.Export.Workers),
		slog.String("log_level", cfg.App.LogLevel.String()))

	src, err := storage.NewFS(cfg.Export.Source)
	if err != nil {
		return nil, fmt.Errorf("init source: %w", err)
	}

	// Ensure destination directory exists.
	if err := os.MkdirAll(cfg.Export.Destination, 0o755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}
	dst, err := storage.NewFS(cfg.Export.Destination)
	if err != nil {
		return nil, fmt.Errorf("init destination: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		broker:   sse.NewBroker(2 * time.Second),
	}

	opts := []cleaner.Option{
		cleaner.WithLogger(logger),
		cleaner.WithWorkers(cfg.Export.Workers),
		cleaner.WithSkip(cfg.Export.Skip),
		cleaner.WithMetrics(metrics.NewPrometheusRecorder(rt.registry)),
		cleaner.WithEventCallback(func(kind string, rec models.FileRecord) {
			rt.broker.PublishFileEvent(kind, rec)
		}),
	}

	var m manifest.Manifest
	if cfg.Manifest.Enabled() {
		db, err := manifest.Open(cfg.Manifest.Path)
		if err != nil {
			rt.broker.Close()
			return nil, fmt.Errorf("init manifest: %w", err)
		}
		rt.db = db
		m = db
		opts = append(opts, cleaner.WithManifest(db))
	}

	rt.cleaner = cleaner.New(src, dst, opts...)
	rt.service = cleanservice.NewService(rt.cleaner, m)
	rt.service.OnRunFinished(func(sum cleaner.Summary) {
		rt.broker.PublishRunFinished(sum)
	})
	return rt, nil
}

// Clean performs a single full run and returns its summary.
func Clean(ctx context.Context, opts ...Option) (cleaner.Summary, error) {
	app, err := newApplication(opts)
	if err != nil {
		return cleaner.Summary{}, err
	}
	rt, err := build(app)
	if err != nil {
		return cleaner.Summary{}, err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.service.Run(ctx)
}

// Watch performs a full run and then keeps the destination in step with
// the export until ctx is cancelled or a shutdown signal arrives.
func Watch(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := build(app)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := rt.service.Run(ctx); err != nil {
		return err
	}
	return rt.watch(ctx)
}

func (rt *runtime) watch(ctx context.Context) error {
	return watch.Watch(ctx, rt.service, rt.cfg.Export.Source, rt.logger, func(_ cleaner.Summary, err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			rt.logger.Warn("reconcile run failed", slog.String("error", err.Error()))
		}
	})
}

// ServeMCP serves the MCP tools on stdin/stdout.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := build(app)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.service, app.version).ServeStdio()
}

// Report returns the manifest report of a run; an empty id selects the
// latest run.
func Report(ctx context.Context, runID string, opts ...Option) (*cleanservice.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	if err := app.config.Manifest.Require(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	db, err := manifest.Open(app.config.Manifest.Path)
	if err != nil {
		return nil, fmt.Errorf("init manifest: %w", err)
	}
	defer db.Close()

	// Reports only read the manifest, so no cleaner is needed.
	return cleanservice.NewService(nil, db).RunReport(ctx, runID)
}

// newHTTPHandler builds the root router: health, metrics and the API.
func newHTTPHandler(rt *runtime) http.Handler {
	cfg := rt.cfg
	apiRouter := api.NewRouter(rt.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", metrics.HTTPHandler(rt.registry))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	return r
}

// Serve runs the HTTP API, optionally with the export watcher, until a
// shutdown signal arrives.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := build(app)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	logger := rt.logger

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(rt),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Bool("watch", app.watch))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the export watcher after an initial run.
	if app.watch {
		g.Go(func() error {
			if _, err := rt.service.Run(gCtx); err != nil {
				logger.Warn("initial run failed", slog.String("error", err.Error()))
			}
			return rt.watch(gCtx)
		})
	}

	// Start HTTP server.
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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the remaining errgroup members once the server is down.
var errShutdown = errors.New("shutdown")
