// Package server exposes the order console over HTTP: paged dataset
// access, remote search, the local query language, resolved views and a
// debounced search stream over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/orderscope/internal/dataset"
	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/search"
	"github.com/scrypster/orderscope/internal/view"
)

// Options configures a Server.
type Options struct {
	Addr string // host:port, port 0 picks a free port

	RateLimit float64 // requests per second, 0 disables
	RateBurst int

	// Debounce is the quiet window of the search stream (default: 300ms).
	Debounce time.Duration

	// AllowedOrigins are the WebSocket origin patterns besides same-host.
	AllowedOrigins []string

	Logger *slog.Logger
}

// Server serves the console API.
type Server struct {
	dataset  *dataset.Service
	search   *search.Orchestrator
	views    *view.Resolver
	opts     Options
	log      *slog.Logger
	handler  http.Handler
	shutdown chan struct{}
}

// New builds a Server over the shared dataset service, search orchestrator
// and view resolver.
func New(ds *dataset.Service, orchestrator *search.Orchestrator, views *view.Resolver, opts Options) *Server {
	s := &Server{
		dataset:  ds,
		search:   orchestrator,
		views:    views,
		opts:     opts,
		log:      logger.OrDefault(opts.Logger),
		shutdown: make(chan struct{}),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/page", s.handlePage)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/view", s.handleView)
	mux.HandleFunc("POST /api/cache/reset", s.handleReset)
	mux.HandleFunc("GET /ws/search", s.handleSearchStream)

	var handler http.Handler = mux
	if s.opts.RateLimit > 0 {
		handler = RateLimitMiddleware(handler, NewRateLimiter(s.opts.RateLimit, s.opts.RateBurst))
	}
	return securityHeadersMiddleware(handler)
}

// Start listens on opts.Addr and serves until ctx is cancelled. It returns
// the address actually bound, which differs from opts.Addr when the port
// is 0.
func (s *Server) Start(ctx context.Context) (string, error) {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	addr := listener.Addr().String()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		close(s.shutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "error", err)
		}
		s.dataset.Wait()
	}()

	s.log.Info("server listening", "addr", addr)
	return addr, nil
}
