package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"maze-arena/internal/config"
)

func TestNewWritesRollingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	cfg := config.DefaultLogging()
	cfg.File = path

	logger, sync, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello maze")
	sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello maze") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := config.DefaultLogging()
	cfg.File = ""
	cfg.Level = "loud"
	if _, _, err := New(cfg); err == nil {
		t.Error("Expected error for unknown level")
	}
}
