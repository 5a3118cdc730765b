package toolcfg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsPassValidate(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFieldsFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capcore.toml")
	if err := os.WriteFile(path, []byte(`
[storage]
dsn = "custom.db"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.DSN != "custom.db" {
		t.Fatalf("expected overridden dsn, got %q", cfg.Storage.DSN)
	}
	if cfg.Scoring.TopK != 5 {
		t.Fatalf("expected default top_k 5, got %d", cfg.Scoring.TopK)
	}
	if cfg.Scoring.SuggestionThreshold != 0.70 {
		t.Fatalf("expected default suggestion_threshold 0.70, got %v", cfg.Scoring.SuggestionThreshold)
	}
	if cfg.PureTools.Namespace != "code" {
		t.Fatalf("expected default pure_tools namespace, got %q", cfg.PureTools.Namespace)
	}
}

func TestLoadRejectsOutOfRangeThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capcore.toml")
	if err := os.WriteFile(path, []byte(`
[scoring]
accept_threshold = 1.5
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for accept_threshold > 1")
	}
}

func TestIsActionAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Tools = map[string]Namespace{
		"mcp.fs": {AllowedActions: []string{"read", "list"}},
	}

	if !cfg.IsActionAllowed("mcp.fs", "read") {
		t.Fatal("expected read to be allowed")
	}
	if cfg.IsActionAllowed("mcp.fs", "delete") {
		t.Fatal("expected delete to be disallowed")
	}
	if !cfg.IsActionAllowed("mcp.unconfigured", "anything") {
		t.Fatal("expected unconfigured namespace to default-allow")
	}
}

func TestManagerGetIsIndependentSnapshot(t *testing.T) {
	cfg := Defaults()
	mgr := NewManager(&cfg)

	snap := mgr.Get()
	snap.Storage.DSN = "mutated.db"

	if mgr.Get().Storage.DSN == "mutated.db" {
		t.Fatal("Get() should return an independent copy, not a shared pointer")
	}
}

func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capcore.toml")
	if err := os.WriteFile(path, []byte(`
[storage]
dsn = "reloaded.db"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Defaults()
	mgr := NewManager(&cfg)
	if err := mgr.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if mgr.Get().Storage.DSN != "reloaded.db" {
		t.Fatalf("expected reloaded dsn, got %q", mgr.Get().Storage.DSN)
	}
}
