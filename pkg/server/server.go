// Package server exposes the engine over HTTP. Plain-TCP HTTP/2 via h2c,
// falling back to HTTP/1.1 for older clients.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/orneryd/papergraph/pkg/config"
	"github.com/orneryd/papergraph/pkg/papergraph"
	"github.com/orneryd/papergraph/pkg/papers"
)

// Server serves the similarity graph API.
type Server struct {
	cfg        config.ServerConfig
	engine     *papergraph.Engine
	papers     *papers.Store
	defaults   config.EngineConfig
	log        zerolog.Logger
	httpServer *http.Server
}

// New builds a server around engine. paperStore backs the metadata listing
// and search endpoints directly; everything computed goes through engine.
func New(cfg *config.Config, engine *papergraph.Engine, paperStore *papers.Store, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg.Server,
		engine:   engine,
		papers:   paperStore,
		defaults: cfg.Engine,
		log:      log.With().Str("component", "server").Logger(),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(s.requestLogger)
	router.Use(s.cors)

	router.Get("/health", s.handleHealth)
	router.Route("/api", func(r chi.Router) {
		r.Get("/papers", s.handleListPapers)
		r.Get("/papers/search", s.handleSearchPapers)
		r.Get("/papers/{id}", s.handleGetPaper)
		r.Get("/papers/{id}/similar", s.handleSimilarPapers)
		r.Get("/papers/{id}/network", s.handleNetwork)
		r.Get("/graph", s.handleGraph)
		r.Get("/clusters", s.handleClusters)
		r.Get("/map", s.handleMap)
		r.Get("/projection", s.handleProjection)
		r.Get("/stats", s.handleStats)
		r.Delete("/cache", s.handleClearCache)
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h2c.NewHandler(router, &http2.Server{}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.httpServer.Shutdown(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = s.httpServer.Close()
		return ctx.Err()
	}
}

// requestLogger logs one line per request with latency and status.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// cors allows the configured frontend origins.
func (s *Server) cors(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.cfg.AllowedOrigins))
	wildcard := false
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
