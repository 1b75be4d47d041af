// Package server provides the HTTP surface of the history service.
//
// Every history endpoint is mounted under both /api/history and
// /signalk/v1/history. /healthz and /metrics live at the root.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/xtxerr/logbook/config"
	lberrors "github.com/xtxerr/logbook/internal/errors"
	"github.com/xtxerr/logbook/internal/history"
	"github.com/xtxerr/logbook/internal/logging"
	"github.com/xtxerr/logbook/internal/metrics"
)

var log = logging.Component("server")

// Prefixes are the mount points of the history endpoints.
var Prefixes = []string{"/api/history", "/signalk/v1/history"}

// Config holds server configuration.
type Config struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AllowedOrigins enables CORS for the listed origins. Empty disables CORS.
	AllowedOrigins []string

	// RefreshMin and RefreshMax clamp the polling interval of refresh=true.
	RefreshMin time.Duration
	RefreshMax time.Duration

	// Service runs the queries.
	Service *history.Service

	// Now replaces the clock used for refresh hints. For tests.
	Now func() time.Time
}

// Server is the HTTP server.
type Server struct {
	cfg     *Config
	svc     *history.Service
	handler http.Handler
	http    *http.Server
}

// New creates a new server.
func New(cfg *Config) *Server {
	// Apply defaults
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = config.DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = config.DefaultWriteTimeout
	}
	if cfg.RefreshMin == 0 {
		cfg.RefreshMin = config.DefaultRefreshMin
	}
	if cfg.RefreshMax == 0 {
		cfg.RefreshMax = config.DefaultRefreshMax
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		cfg: cfg,
		svc: cfg.Service,
	}
	s.handler = s.routes()
	s.http = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  2 * cfg.ReadTimeout,
	}

	return s
}

// Handler returns the root handler, including middleware and CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	for _, prefix := range Prefixes {
		api := router.PathPrefix(prefix).Subrouter()
		api.HandleFunc("/values", s.handleValues).Methods(http.MethodGet)
		api.HandleFunc("/paths", s.handlePaths).Methods(http.MethodGet)
		api.HandleFunc("/contexts", s.handleContexts).Methods(http.MethodGet)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, lberrors.ErrNotFound)
	})

	router.Use(RequestID)
	router.Use(StructuredLog)
	router.Use(Recover)

	if len(s.cfg.AllowedOrigins) == 0 {
		return router
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, RefreshIntervalHeader},
	})
	return c.Handler(router)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Info("listening", "address", ln.Addr().String(), "prefixes", Prefixes)

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// RunContext listens on the configured address and serves until ctx ends.
// See ServeContext.
func (s *Server) RunContext(ctx context.Context, grace time.Duration) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.ServeContext(ctx, ln, grace)
}

// ServeContext serves on ln until ctx ends, then shuts down. It returns only
// after in-flight requests finished or grace ran out.
func (s *Server) ServeContext(ctx context.Context, ln net.Listener, grace time.Duration) error {
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	shutdownErr := s.Shutdown(sctx)
	if err := <-errc; err != nil {
		return err
	}
	return shutdownErr
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down")
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
