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
	"golang.org/x/sync/errgroup"

	"github.com/starford/mtvsearch/internal/api"
	"github.com/starford/mtvsearch/internal/backend"
	"github.com/starford/mtvsearch/internal/session"
	"github.com/starford/mtvsearch/internal/sse"
	"github.com/starford/mtvsearch/internal/status"
	"github.com/starford/mtvsearch/internal/view"
)

// NewLogger builds the structured JSON logger used by every command. Commands
// that print to stdout pass os.Stderr.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// NewBackend builds the query service client described by cfg.
func NewBackend(cfg *Config, client backend.HTTPClient) *backend.Client {
	if client == nil {
		client = &http.Client{Timeout: cfg.Backend.Timeout}
	}
	return backend.New(cfg.Backend.BaseURL, client)
}

// NewSessions builds the session service described by cfg. onView and
// onClose may be nil.
func NewSessions(cfg *Config, q *backend.Client, logger *slog.Logger, onView session.Listener, onClose func(id string)) *session.Service {
	return session.NewService(q, session.Options{
		Query:      cfg.QueryOptions(),
		WindowSize: cfg.Search.WindowSize,
		Logger:     logger,
		OnClose:    onClose,
	}, onView)
}

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

	logger := NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend_url", cfg.Backend.BaseURL),
		slog.String("status_mode", cfg.Status.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	client := NewBackend(cfg, app.httpClient)

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	// Database status.
	monitor := status.New(client, cfg.Status.Mode, cfg.Status.Interval, logger, broker.PublishStatus)

	// Search sessions push every view change to their event stream; closing
	// a session ends its streams.
	sessions := NewSessions(cfg, client, logger, func(id string, v view.View) {
		broker.Publish(id, sse.Event{Type: sse.TypeViewUpdated, Data: v})
	}, broker.Drop)
	defer sessions.Close()

	apiRouter := api.NewRouter(sessions, monitor, broker, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
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
		if current := monitor.Current(); current == status.Unreachable || current == status.Connecting {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, `{"status":%q}`, current)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Track the database status.
	g.Go(func() error {
		return monitor.Run(gCtx)
	})

	// Close sessions nobody has touched for a while.
	g.Go(func() error {
		return sessions.RunSweeper(gCtx, cfg.Search.SessionIdle/4, cfg.Search.SessionIdle)
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

// errShutdown stops the remaining workers once the server is down.
var errShutdown = errors.New("shutdown")
