// Package server exposes the ingestion and admin HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/pagepulse/pagepulse/internal/config"
	"github.com/pagepulse/pagepulse/internal/database"
	"github.com/pagepulse/pagepulse/internal/logging"
)

// Server wires the event store to the HTTP API.
type Server struct {
	db   *database.Database
	cfg  *config.Config
	log  zerolog.Logger
	http *http.Server
}

// New creates a server around the given store and configuration.
func New(db *database.Database, cfg *config.Config) *Server {
	return &Server{
		db:  db,
		cfg: cfg,
		log: logging.WithComponent("server"),
	}
}

// Routes builds the router. Split out from Start so tests can drive the
// handler stack with httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Security.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	// Permissive bucket for monitoring probes.
	r.With(httprate.Limit(1000, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Get("/api/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if !s.cfg.Security.RateLimitDisabled {
			r.Use(httprate.Limit(
				s.cfg.Security.RateLimitReqs,
				s.cfg.Security.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}

		r.Post("/analytics", s.handleIngest)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/overview", s.handleOverview)
			r.Get("/sections", s.handleSections)
			r.Get("/scroll-depth", s.handleScrollDepth)
			r.Get("/section-time", s.handleSectionTime)
			r.Get("/cta-clicks", s.handleCTAClicks)
			r.Get("/abandonments", s.handleAbandonments)
			r.Get("/timeline", s.handleTimeline)
			r.Delete("/purge", s.handlePurge)
		})
	})

	return r
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.Server.Timeout,
		WriteTimeout: s.cfg.Server.Timeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("analytics server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-shutdown:
	}

	s.log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
