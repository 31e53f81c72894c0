// Package server exposes the Storyteller over HTTP: event ingest for the
// game engine, status and control endpoints for room DMs, and run history
// for operators.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ravenwood/storyteller/pkg/agent"
	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/observability"
	"github.com/ravenwood/storyteller/pkg/storyteller"
)

// Rooms resolves a room id to its Storyteller instance.
type Rooms interface {
	Get(roomID string) (*storyteller.Storyteller, bool)
}

// Config configures the HTTP server.
type Config struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server is the HTTP surface over one or more Storyteller rooms.
type Server struct {
	cfg        Config
	rooms      Rooms
	runs       agent.AgentRunStore
	log        *slog.Logger
	httpServer *http.Server
}

// New builds a server. runs may be nil when no run store is configured; run
// endpoints then answer 503.
func New(cfg Config, rooms Rooms, runs agent.AgentRunStore, log *slog.Logger) *Server {
	cfg.SetDefaults()
	if log == nil {
		log = logger.Get()
	}
	s := &Server{
		cfg:   cfg,
		rooms: rooms,
		runs:  runs,
		log:   log,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.tracingMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Post("/events", s.handleIngestEvent)
			r.Get("/storyteller", s.handleStatus)
			r.Post("/storyteller/enable", s.handleSetEnabled(true))
			r.Post("/storyteller/disable", s.handleSetEnabled(false))
			r.Get("/storyteller/summary", s.handleSummary)
			r.Get("/storyteller/analysis", s.handleAnalysis)
			r.Get("/runs", s.handleListRuns)
		})
		r.Get("/runs/{runID}", s.handleGetRun)
	})

	return r
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}
