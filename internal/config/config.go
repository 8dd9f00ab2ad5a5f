// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for game, server and storage settings.
//
// Every section has a Default*() constructor and a *FromEnv() variant that
// applies environment overrides on top of the defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// GAME CONFIGURATION
// =============================================================================

// GameConfig holds simulation settings shared by every session.
type GameConfig struct {
	TickInterval      time.Duration // Fixed interval between simulation ticks
	DefaultGhostCount int           // Ghosts spawned when a client does not ask for a count
	StatsInterval     time.Duration // Period of the lobby_stats broadcast
	EventLogPath      string        // JSONL game event log; empty disables it
}

// DefaultGame returns the default game configuration.
func DefaultGame() GameConfig {
	return GameConfig{
		TickInterval:      150 * time.Millisecond,
		DefaultGhostCount: 4,
		StatsInterval:     5 * time.Second,
		EventLogPath:      "events.jsonl",
	}
}

// GameFromEnv returns game configuration with environment variable overrides.
func GameFromEnv() GameConfig {
	cfg := DefaultGame()

	if ms := getEnvInt("TICK_INTERVAL_MS", 0); ms > 0 {
		cfg.TickInterval = time.Duration(ms) * time.Millisecond
	}
	if n := getEnvInt("DEFAULT_GHOST_COUNT", 0); n > 0 {
		cfg.DefaultGhostCount = n
	}
	if s := getEnvInt("LOBBY_STATS_INTERVAL_SEC", 0); s > 0 {
		cfg.StatsInterval = time.Duration(s) * time.Second
	}
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventLogPath = v
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP and WebSocket server settings.
type ServerConfig struct {
	Port              int
	StaticDir         string   // Built frontend served at /
	AllowedOrigins    []string // Origins accepted for CORS and WebSocket upgrades
	MaxWSConnections  int      // Hard cap on concurrent WebSocket connections
	MaxWSPerIP        int      // Concurrent WebSocket connections per client IP
	InboundRatePerSec float64  // Inbound WebSocket messages per second per connection
	InboundBurst      int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:      6060,
		StaticDir: "frontend/dist",
		AllowedOrigins: []string{
			"http://localhost:6060",
			"http://localhost:5173",
			"http://127.0.0.1:6060",
			"http://127.0.0.1:5173",
		},
		MaxWSConnections:  500,
		MaxWSPerIP:        10,
		InboundRatePerSec: 30,
		InboundBurst:      60,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}
	if origins := splitList(os.Getenv("ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	if n := getEnvInt("MAX_WS_CONNECTIONS", 0); n > 0 {
		cfg.MaxWSConnections = n
	}
	if n := getEnvInt("MAX_WS_PER_IP", 0); n > 0 {
		cfg.MaxWSPerIP = n
	}

	return cfg
}

// Addr returns the listen address for the API server.
func (c ServerConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// =============================================================================
// DATABASE CONFIGURATION
// =============================================================================

// DatabaseConfig holds Postgres connection settings. An empty Host means no
// database is configured and the in-memory store is used instead.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DefaultDatabase returns the default database configuration.
func DefaultDatabase() DatabaseConfig {
	return DatabaseConfig{
		Port:    "5432",
		SSLMode: "require",
	}
}

// DatabaseFromEnv returns database configuration with environment variable overrides.
func DatabaseFromEnv() DatabaseConfig {
	cfg := DefaultDatabase()

	cfg.Host = os.Getenv("DB_HOST")
	cfg.User = os.Getenv("DB_USER")
	cfg.Password = os.Getenv("DB_PASSWORD")
	cfg.Name = os.Getenv("DB_NAME")
	if p := os.Getenv("DB_PORT"); p != "" {
		cfg.Port = p
	}
	if m := os.Getenv("DB_SSLMODE"); m != "" {
		cfg.SSLMode = m
	}

	return cfg
}

// Enabled reports whether a database host is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// =============================================================================
// LOGGING CONFIGURATION
// =============================================================================

// LoggingConfig controls the zap logger and its rolling file.
type LoggingConfig struct {
	Level      string // debug, info, warn, error
	File       string // Rolling log file; empty logs to stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultLogging returns the default logging configuration.
func DefaultLogging() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		File:       "app.log",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}
}

// LoggingFromEnv returns logging configuration with environment variable overrides.
func LoggingFromEnv() LoggingConfig {
	cfg := DefaultLogging()

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Level = strings.ToLower(lvl)
	}
	if v, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.File = v
	}

	return cfg
}

// =============================================================================
// DEBUG / OBSERVABILITY CONFIGURATION
// =============================================================================

// DebugConfig configures the loopback-only pprof + metrics server.
type DebugConfig struct {
	Enabled    bool
	ListenAddr string
}

// DefaultDebug returns the default debug server configuration.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6061",
	}
}

// DebugFromEnv returns debug configuration with environment variable overrides.
func DebugFromEnv() DebugConfig {
	cfg := DefaultDebug()

	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}

	return cfg
}

// =============================================================================
// AUTH CONFIGURATION
// =============================================================================

// AuthConfig controls connect-token issuance.
type AuthConfig struct {
	TokenTTL        time.Duration
	CleanupInterval time.Duration
}

// DefaultAuth returns the default auth configuration.
func DefaultAuth() AuthConfig {
	return AuthConfig{
		TokenTTL:        24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Game     GameConfig
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Debug    DebugConfig
	Auth     AuthConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Game:     GameFromEnv(),
		Server:   ServerFromEnv(),
		Database: DatabaseFromEnv(),
		Logging:  LoggingFromEnv(),
		Debug:    DebugFromEnv(),
		Auth:     DefaultAuth(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
