package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultGame()
	if cfg.TickInterval != 150*time.Millisecond {
		t.Errorf("Expected 150ms tick, got %v", cfg.TickInterval)
	}
	if cfg.DefaultGhostCount != 4 {
		t.Errorf("Expected 4 ghosts, got %d", cfg.DefaultGhostCount)
	}
	if DefaultServer().Addr() != ":6060" {
		t.Errorf("Expected :6060, got %s", DefaultServer().Addr())
	}
	if DefaultDatabase().Enabled() {
		t.Error("Database should be disabled without DB_HOST")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TICK_INTERVAL_MS", "100")
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_SSLMODE", "disable")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DISABLE_DEBUG_SERVER", "true")

	cfg := Load()

	if cfg.Game.TickInterval != 100*time.Millisecond {
		t.Errorf("Expected 100ms tick, got %v", cfg.Game.TickInterval)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Database.Enabled() {
		t.Error("Database should be enabled with DB_HOST")
	}
	if want := "host=db port=5432 user= password= dbname= sslmode=disable"; cfg.Database.DSN() != want {
		t.Errorf("DSN = %q, want %q", cfg.Database.DSN(), want)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Debug.Enabled {
		t.Error("Debug server should be disabled")
	}
}

func TestInvalidIntFallsBack(t *testing.T) {
	t.Setenv("TICK_INTERVAL_MS", "fast")
	if got := GameFromEnv().TickInterval; got != 150*time.Millisecond {
		t.Errorf("Expected default tick on bad input, got %v", got)
	}
}
