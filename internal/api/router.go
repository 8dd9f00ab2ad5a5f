package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"maze-arena/internal/game"
	"maze-arena/internal/lobby"
	"maze-arena/internal/store"
)

// LobbyService is the lobby surface used by the gateway and the REST handlers.
// *lobby.Manager implements it; tests substitute fakes.
type LobbyService interface {
	Connect(m game.Member) error
	Disconnect(m game.Member)
	StartSingle(m game.Member, ghostCount int) error
	JoinPair(m game.Member) error
	Input(m game.Member, d game.Direction)

	Stats() lobby.Stats
	Summaries() []lobby.SessionSummary
	Snapshot(id uuid.UUID) (*game.Snapshot, bool)
}

// AccountService handles signup, login and connect tokens.
// *auth.Service implements it.
type AccountService interface {
	TokenValidator
	Signup(ctx context.Context, nickname, password string) (string, error)
	Login(ctx context.Context, nickname, password string) (string, error)
	Revoke(token string)
}

// ScoreService reads and records leaderboard entries.
// *scoreboard.Client implements it.
type ScoreService interface {
	Record(ctx context.Context, nickname string, score, ghostCount int) error
	Leaderboard(ctx context.Context, ghostCount int) ([]store.ScoreEntry, error)
	PairLeaderboard(ctx context.Context) ([]store.PairScoreEntry, error)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
//	router := api.NewRouter(api.RouterConfig{
//	    Lobby:    fakeLobby,
//	    Accounts: fakeAccounts,
//	    Scores:   fakeScores,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	Lobby    LobbyService   // required
	Accounts AccountService // required
	Scores   ScoreService   // required

	// Gateway serves /api/ws. If nil, one is built from Lobby and Accounts
	// with GatewayConfig.
	Gateway       *Gateway
	GatewayConfig GatewayConfig

	// RateLimiter is an optional pre-configured limiter. If nil, one is
	// created from RateLimitConfig (or DefaultRateLimitConfig).
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// Origins is the allow list for CORS and WebSocket upgrades.
	Origins *OriginChecker

	// StaticDir holds the built frontend. Empty or missing disables it.
	StaticDir string

	Logger *zap.SugaredLogger
}

type routerHandlers struct {
	lobby    LobbyService
	accounts AccountService
	scores   ScoreService
	log      *zap.SugaredLogger
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE apart from the rate limiter's cleanup
// goroutine when no RateLimiter is supplied. No listeners are opened and no
// game sessions are started, so it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	origins := cfg.Origins
	if origins == nil {
		origins = NewOriginChecker(nil)
	}

	r := chi.NewRouter()

	// Middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rlCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rlCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rlCfg)
	}
	r.Use(rateLimiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins.List(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &routerHandlers{
		lobby:    cfg.Lobby,
		accounts: cfg.Accounts,
		scores:   cfg.Scores,
		log:      log.Named("api"),
	}

	gw := cfg.Gateway
	if gw == nil {
		gw = NewGateway(cfg.Lobby, cfg.Accounts, origins, cfg.GatewayConfig, log.Named("gateway"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Accounts
		r.Post("/signup", h.handleSignup)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		// Scores
		r.Post("/score", h.handleSubmitScore)
		r.Get("/scoreboard", h.handleScoreboard)
		r.Get("/scoreboard/pair", h.handlePairScoreboard)

		// Lobby and sessions
		r.Get("/lobby", h.handleLobby)
		r.Get("/sessions/{id}", h.handleSession)
		r.Get("/sessions/{id}/preview.png", h.handleSessionPreview)

		// Real-time channel
		r.Handle("/ws", gw)
	})

	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
			r.Handle("/*", spaHandler(cfg.StaticDir))
		} else {
			log.Warnw("⚠️ static dir not found, frontend disabled", "dir", cfg.StaticDir)
		}
	}

	return r
}

// spaHandler serves files from dir and falls back to index.html for client
// side routes.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(p); err != nil && !strings.HasPrefix(r.URL.Path, "/api/") {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// requestLogger logs each request through zap and records latency metrics
// labelled by route pattern.
func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			endpoint := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					endpoint = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			RecordRequest(r.Method, endpoint, status, elapsed)

			log.Debugw("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
