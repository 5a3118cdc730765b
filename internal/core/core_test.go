package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/capcore/internal/capstore"
	"github.com/antigravity-dev/capcore/internal/toolcfg"
)

func openTestCore(t *testing.T) *Core {
	t.Helper()
	cfg := toolcfg.Defaults()
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "capcore.db")

	c, err := Open(&cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCoreSaveCapabilityThenMatchContext(t *testing.T) {
	c := openTestCore(t)
	ctx := context.Background()

	result, err := c.SaveCapability(ctx, capstore.SaveInput{
		Code:       `await mcp.fs.read({ path: "/tmp/report.txt" });`,
		Intent:     "read a report file",
		Success:    true,
		DurationMs: 30,
		ToolsUsed:  []string{"fs.read"},
	})
	if err != nil {
		t.Fatalf("SaveCapability: %v", err)
	}
	if result.Capability.ID == "" {
		t.Fatal("expected a saved capability id")
	}

	matches, err := c.MatchContext([]string{"fs.read"}, 10)
	if err != nil {
		t.Fatalf("MatchContext: %v", err)
	}
	found := false
	for _, m := range matches {
		if m.ID == result.Capability.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected saved capability to show up in context search, got %+v", matches)
	}
}

func TestCoreSaveCapabilityIsIdempotentByCodeHash(t *testing.T) {
	c := openTestCore(t)
	ctx := context.Background()
	in := capstore.SaveInput{
		Code:    `await mcp.fs.read({ path: "/tmp/a.txt" });`,
		Intent:  "read a file",
		Success: true,
	}

	first, err := c.SaveCapability(ctx, in)
	if err != nil {
		t.Fatalf("SaveCapability (1st): %v", err)
	}
	second, err := c.SaveCapability(ctx, in)
	if err != nil {
		t.Fatalf("SaveCapability (2nd): %v", err)
	}
	if first.Capability.ID != second.Capability.ID {
		t.Fatalf("expected identical code to fold into the same capability, got %s then %s", first.Capability.ID, second.Capability.ID)
	}
}
