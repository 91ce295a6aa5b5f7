package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// HTTP server timeouts.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// Server is the public HTTP endpoint of the app.
type Server struct {
	sc         *ServerContext
	webhook    http.Handler
	limiter    *RateLimiter
	health     *HealthChecker
	httpServer *http.Server
}

// New assembles the routes. limiter may be nil to disable rate limiting.
func New(sc *ServerContext, webhook http.Handler, limiter *RateLimiter, health *HealthChecker) *Server {
	if health == nil {
		health = NewHealthChecker(sc)
	}
	return &Server{sc: sc, webhook: webhook, limiter: limiter, health: health}
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	limit := s.limiter.Middleware

	if s.webhook != nil {
		mux.Handle("POST /webhook", limit(s.webhook))
	}
	mux.Handle("GET /api/recall/callback", limit(http.HandlerFunc(s.sc.handleRecallCallback)))
	mux.Handle("GET /install", limit(http.HandlerFunc(s.sc.handleInstall)))
	mux.Handle("GET /auth", limit(http.HandlerFunc(s.sc.handleAuth)))
	mux.HandleFunc("GET /auth/status", s.sc.handleAuthStatus)
	mux.HandleFunc("POST /api/scheduleDeposition", s.sc.handleScheduleDeposition)
	s.health.RegisterHealthEndpoints(mux)

	return trace(observe(s.sc.Metrics(), securityHeaders(mux)))
}

// Start listens on addr and blocks until the server stops. It returns nil
// after a graceful Shutdown.
func (s *Server) Start(addr string) error {
	if s.limiter != nil {
		go s.limiter.Run(s.sc.Context())
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return s.sc.Context() },
	}

	s.sc.logger.Info("starting http server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown marks the server not ready, stops accepting requests and
// waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	var err error
	if s.httpServer != nil {
		s.sc.logger.Info("shutting down http server")
		err = s.httpServer.Shutdown(ctx)
	}
	return errors.Join(err, s.sc.Shutdown())
}
