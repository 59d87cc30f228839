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
	"golang.org/x/sync/errgroup"

	"github.com/starford/munin/internal/api"
	"github.com/starford/munin/internal/docservice"
	"github.com/starford/munin/internal/mcpserver"
	"github.com/starford/munin/internal/metastore"
	"github.com/starford/munin/internal/reconcile"
	"github.com/starford/munin/internal/sse"
	"github.com/starford/munin/internal/storage"
	"github.com/starford/munin/internal/vecindex"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("vector_path", cfg.Vector.Path),
		slog.String("watch_path", cfg.Watch.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Build the service stack.
	svc, meta, vec, err := buildService(app, logger)
	if err != nil {
		return err
	}
	defer meta.Close()

	// SSE broker, fed by document lifecycle events.
	broker := sse.NewBroker()
	defer broker.Close()
	svc.SetNotifier(broker.PublishDocEvent)

	// API handlers for both dialects.
	apiRouter := api.NewRouter(api.NewHandler(svc), api.RouterOptions{
		AuthEnabled:   cfg.Auth.AuthEnabled(),
		AuthToken:     cfg.Auth.Token,
		EventsHandler: broker,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)

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

	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Filesystem reconciliation: watcher feeding the engine.
	if cfg.Watch.Enabled() {
		if err := os.MkdirAll(cfg.Watch.Path, 0o755); err != nil {
			return fmt.Errorf("create watch dir: %w", err)
		}
		store, err := storage.NewFS(cfg.Watch.Path)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}

		engine := reconcile.NewEngine(svc, store, cfg.Watch.Collection, logger)
		if cfg.Watch.DebounceMS > 0 {
			engine.SetDebounce(time.Duration(cfg.Watch.DebounceMS) * time.Millisecond)
		}
		if cfg.Watch.Workers > 0 {
			engine.SetWorkers(int64(cfg.Watch.Workers))
		}

		g.Go(func() error {
			if err := engine.Bootstrap(gCtx); err != nil {
				logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
			}
			return engine.Run(gCtx)
		})
		g.Go(func() error {
			return reconcile.Watch(gCtx, cfg.Watch.Path, engine.Events, logger)
		})
	}

	// Background repair of pending documents.
	g.Go(func() error {
		return svc.RunRepair(gCtx, cfg.Repair.Duration())
	})

	// Periodic consistency audit.
	auditor := reconcile.NewAuditor(svc, meta, vec, logger)
	g.Go(func() error {
		return auditor.Run(gCtx, cfg.Audit.Duration())
	})

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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server over the same service stack,
// without the HTTP surface or background loops.
func RunMCP(opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	// MCP talks JSON-RPC on stdout, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	svc, meta, _, err := buildService(app, logger)
	if err != nil {
		return err
	}
	defer meta.Close()

	return mcpserver.New(svc).ServeStdio()
}

// buildService wires the metadata store, vector index and coordinator.
func buildService(app *application, logger *slog.Logger) (*docservice.Service, *metastore.Store, vecindex.Index, error) {
	cfg := app.config

	meta, err := metastore.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init metadata store: %w", err)
	}

	embed := app.embed
	if embed == nil {
		embed, err = vecindex.NewEmbeddingFunc(cfg.Vector.Provider, cfg.Vector.Model, cfg.Vector.BaseURL)
		if err != nil {
			meta.Close()
			return nil, nil, nil, err
		}
	}

	var vec vecindex.Index
	if cfg.Vector.Path != "" {
		vec, err = vecindex.NewPersistent(cfg.Vector.Path, cfg.Vector.Compress, embed)
		if err != nil {
			meta.Close()
			return nil, nil, nil, fmt.Errorf("init vector index: %w", err)
		}
	} else {
		vec = vecindex.NewInMemory(embed)
	}

	resolver := docservice.CollectionResolver{
		StrictDefault:     cfg.Defaults.StrictCollection,
		PermissiveDefault: cfg.Defaults.PermissiveCollection,
	}
	return docservice.New(meta, vec, resolver, logger), meta, vec, nil
}
