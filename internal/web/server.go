// Package web provides the JSON HTTP API over the import service.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/web/middleware"
)

// Server is the HTTP server for the import API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	apiLimiter    *middleware.RateLimiter
	importLimiter *middleware.RateLimiter
}

// NewServer creates a Server and wires its middleware and routes.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.apiLimiter = middleware.NewRateLimiter(cfg.Rate.RequestsPerMinute, cfg.Rate.Burst)
		s.importLimiter = middleware.NewRateLimiter(cfg.Rate.ImportLimit, 1)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))
		if s.apiLimiter != nil {
			r.Use(s.apiLimiter.Middleware)
		}

		// Preview and commit parse whole files, so they get the import
		// timeout and their own, tighter rate limit.
		r.Group(func(r chi.Router) {
			r.Use(timeout(s.cfg.Import.Timeout))
			if s.importLimiter != nil {
				r.Use(s.importLimiter.Middleware)
			}
			r.Post("/preview", s.handlePreview)
			r.Post("/preview/{sessionID}/commit", s.handleCommit)
		})

		r.Group(func(r chi.Router) {
			r.Use(timeout(s.cfg.Server.RequestTimeout))

			r.Get("/preview/{sessionID}", s.handlePreviewPage)
			r.Post("/preview/{sessionID}/cancel", s.handleCancel)

			r.Get("/stats", s.handleStats)
			r.Get("/formats", s.handleFormats)

			r.Route("/{backend}/targets", func(r chi.Router) {
				r.Get("/", s.handleListTargets)
				r.Route("/{target}", func(r chi.Router) {
					r.Delete("/", s.handleDropTarget)
					r.Get("/headers", s.handleHeaders)
					r.Get("/data", s.handleTableData)
					r.Get("/export", s.handleExport)
					r.Put("/rows/{rowID}", s.handleUpdateRow)
					r.Delete("/rows/{rowID}", s.handleDeleteRow)
				})
			})
		})
	})
}

// Start begins listening for HTTP requests and evicting idle rate limit
// entries until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	for _, rl := range []*middleware.RateLimiter{s.apiLimiter, s.importLimiter} {
		if rl != nil {
			go rl.Run(ctx, time.Minute)
		}
	}

	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// timeout wraps chi's Timeout; a non-positive d disables it.
func timeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return chimw.Timeout(d)
}

// securityHeaders adds security headers to all responses. The API serves
// JSON and CSV only, so the policy forbids every resource type.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
