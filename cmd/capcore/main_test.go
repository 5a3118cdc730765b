package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/capcore/internal/toolcfg"
)

func TestConfigureLoggerDevUsesTextHandler(t *testing.T) {
	logger := configureLogger(true)
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
	if _, ok := logger.Handler().(*slog.TextHandler); !ok {
		t.Fatalf("expected a text handler in dev mode, got %T", logger.Handler())
	}
}

func TestConfigureLoggerProdUsesJSONHandler(t *testing.T) {
	logger := configureLogger(false)
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
	if _, ok := logger.Handler().(*slog.JSONHandler); !ok {
		t.Fatalf("expected a JSON handler by default, got %T", logger.Handler())
	}
}

func TestLoadConfigFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	defaults := toolcfg.Defaults()
	if cfg.Storage.DSN != defaults.Storage.DSN {
		t.Fatalf("expected default DSN when config file is missing, got %q", cfg.Storage.DSN)
	}
	if cfg.Scoring.TopK != defaults.Scoring.TopK {
		t.Fatalf("expected default scoring when config file is missing, got %+v", cfg.Scoring)
	}
}

func TestLoadConfigReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capcore.toml")
	contents := "[storage]\ndsn = \"/tmp/custom.db\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Storage.DSN != "/tmp/custom.db" {
		t.Fatalf("expected configured DSN, got %q", cfg.Storage.DSN)
	}
}
