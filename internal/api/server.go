package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"maze-arena/internal/config"
)

// Server is the public HTTP server: REST API, WebSocket gateway and the
// static frontend.
type Server struct {
	http        *http.Server
	router      *chi.Mux
	gateway     *Gateway
	rateLimiter *IPRateLimiter
	log         *zap.SugaredLogger
}

// NewServer wires the router for the given services. Nothing listens until
// Start is called; use Router with httptest in tests.
func NewServer(cfg config.ServerConfig, lb LobbyService, accounts AccountService, scores ScoreService, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	origins := NewOriginChecker(cfg.AllowedOrigins)

	s := &Server{
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		gateway:     NewGateway(lb, accounts, origins, GatewayConfigFrom(cfg), log.Named("gateway")),
		log:         log,
	}
	s.router = NewRouter(RouterConfig{
		Lobby:       lb,
		Accounts:    accounts,
		Scores:      scores,
		Gateway:     s.gateway,
		RateLimiter: s.rateLimiter,
		Origins:     origins,
		StaticDir:   cfg.StaticDir,
		Logger:      log,
	})
	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Start listens until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.Infow("🌐 API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Gateway returns the WebSocket gateway.
func (s *Server) Gateway() *Gateway {
	return s.gateway
}

// Shutdown stops accepting requests, closes every WebSocket connection and
// stops the rate limiter. Hijacked WebSocket connections are not tracked by
// http.Server, so the gateway closes them itself.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.gateway.CloseAll()
	s.rateLimiter.Stop()
	s.log.Info("🛑 API server stopped")
	return err
}
