// Package server exposes sensitivities and exports over a read-only HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"BetaLens/internal/collector"
	"BetaLens/internal/sensitivity"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	ExportLimit    int
}

// Server is the HTTP front end over the sensitivity service.
type Server struct {
	router    *mux.Router
	server    *http.Server
	service   *sensitivity.Service
	directory *collector.CoinDirectory
	gatherer  prometheus.Gatherer
	config    Config
}

type ctxKey struct{}

// NewServer wires routes. gatherer may be nil to disable /metrics.
func NewServer(cfg Config, svc *sensitivity.Service, dir *collector.CoinDirectory, gatherer prometheus.Gatherer) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		router:    mux.NewRouter(),
		service:   svc,
		directory: dir,
		gatherer:  gatherer,
		config:    cfg,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/coins", s.coins).Methods(http.MethodGet)
	api.HandleFunc("/sensitivity/{coin}", s.sensitivity).Methods(http.MethodGet)
	api.HandleFunc("/export.csv", s.exportCSV).Methods(http.MethodGet)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// requestIDMiddleware adds a request id to the context and the response.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		var ev *zerolog.Event
		if wrapper.statusCode >= 500 {
			ev = log.Warn()
		} else {
			ev = log.Info()
		}
		id, _ := r.Context().Value(ctxKey{}).(string)
		ev.Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start serves until Shutdown. http.ErrServerClosed is not reported.
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
