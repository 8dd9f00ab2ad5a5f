package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"maze-arena/internal/api"
	"maze-arena/internal/auth"
	"maze-arena/internal/config"
	"maze-arena/internal/game"
	"maze-arena/internal/lobby"
	"maze-arena/internal/logging"
	"maze-arena/internal/scoreboard"
	"maze-arena/internal/store"
)

func main() {
	// .env from the parent directory first, then the working directory
	envErr := godotenv.Load("../.env")
	if envErr != nil {
		envErr = godotenv.Load(".env")
	}

	cfg := config.Load()

	logger, syncLog, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer syncLog()
	log := logger.Sugar()

	if envErr != nil {
		log.Info("💡 No .env file found, using environment variables only")
	}

	log.Info("🎮 ================================")
	log.Info("🎮  MAZE ARENA - GO SERVER")
	log.Info("🎮 ================================")

	if err := run(cfg, log); err != nil {
		log.Errorw("❌ server exited", "error", err)
		syncLog()
		os.Exit(1)
	}
}

func run(cfg config.AppConfig, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer st.Close()

	events := game.NewEventLog()
	if cfg.Game.EventLogPath != "" {
		if err := events.Start(cfg.Game.EventLogPath); err != nil {
			log.Warnw("⚠️ event log disabled", "path", cfg.Game.EventLogPath, "error", err)
			events = nil
		} else {
			log.Infow("📝 event log started", "path", cfg.Game.EventLogPath)
		}
	} else {
		events = nil
	}

	authCfg := auth.DefaultConfig()
	authCfg.TokenTTL = cfg.Auth.TokenTTL
	authCfg.CleanupInterval = cfg.Auth.CleanupInterval
	accounts := auth.NewService(authCfg, st, log.Named("auth"))
	defer accounts.Stop()

	scores := scoreboard.New(st, scoreboard.Config{
		Logger:   log.Named("scoreboard"),
		OnSubmit: api.RecordScoreSubmission,
	})
	scores.Start()

	lb := lobby.New(lobby.Config{
		TickInterval:      cfg.Game.TickInterval,
		DefaultGhostCount: cfg.Game.DefaultGhostCount,
		StatsInterval:     cfg.Game.StatsInterval,
		Events:            events,
		Scores:            scores,
		Logger:            log.Named("lobby"),
		OnTick:            api.RecordTick,
		OnSessionsChange:  api.UpdateActiveSessions,
		OnOnlineChange:    api.UpdateOnline,
	})
	go lb.Run(ctx)

	if events != nil {
		go reportEventLog(ctx, events, cfg.Game.StatsInterval)
	}

	debugSrv := api.StartDebugServer(cfg.Debug, log.Named("debug"))

	srv := api.NewServer(cfg.Server, lb, accounts, scores, log.Named("api"))
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	log.Infow("✅ server ready", "addr", cfg.Server.Addr(), "tick", cfg.Game.TickInterval)

	select {
	case <-ctx.Done():
		log.Info("🛑 Shutting down...")
	case err = <-serveErr:
		if err != nil {
			log.Errorw("❌ API server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connections first so no new intents arrive, then sessions, then the
	// writers that drain their output.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("⚠️ API shutdown", "error", err)
	}
	if err := lb.Shutdown(shutdownCtx); err != nil {
		log.Warnw("⚠️ lobby shutdown", "error", err)
	}
	scores.Close()
	if events != nil {
		events.Stop()
	}
	if debugSrv != nil {
		debugSrv.Shutdown(shutdownCtx)
	}

	log.Info("👋 Goodbye")
	return err
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.SugaredLogger) (store.Store, error) {
	if !cfg.Enabled() {
		log.Warn("💾 DB_HOST not set, using in-memory store (data is lost on restart)")
		return store.NewMemory(), nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	pg, err := store.OpenPostgres(openCtx, cfg.DSN(), log.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Infow("💾 connected to Postgres", "host", cfg.Host, "db", cfg.Name)
	return pg, nil
}

func reportEventLog(ctx context.Context, events *game.EventLog, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			api.UpdateEventLogStats(events.Stats())
		}
	}
}
