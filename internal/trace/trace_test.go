package trace

import (
	"strings"
	"testing"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

func TestSanitizeRedactsSecretLikeKeys(t *testing.T) {
	in := capmodel.ExecutionTrace{
		InitialContext: map[string]any{
			"api_key":  "sk-live-abc123",
			"username": "alice",
		},
	}

	out := Sanitize(in)

	if out.InitialContext["api_key"] != "[redacted]" {
		t.Fatalf("expected api_key redacted, got %v", out.InitialContext["api_key"])
	}
	if out.InitialContext["username"] != "alice" {
		t.Fatalf("expected username untouched, got %v", out.InitialContext["username"])
	}
}

func TestSanitizeTruncatesOversizedFields(t *testing.T) {
	huge := strings.Repeat("x", MaxFieldBytes+100)
	in := capmodel.ExecutionTrace{IntentText: huge}

	out := Sanitize(in)

	if len(out.IntentText) >= len(huge) {
		t.Fatalf("expected IntentText to be truncated, got length %d", len(out.IntentText))
	}
	if !strings.HasSuffix(out.IntentText, "...[truncated]") {
		t.Fatalf("expected truncation marker, got suffix %q", out.IntentText[len(out.IntentText)-20:])
	}
}

func TestSanitizeCapsMapEntryCount(t *testing.T) {
	big := make(map[string]any, MaxMapEntries+10)
	for i := 0; i < MaxMapEntries+10; i++ {
		big[strings.Repeat("k", 1)+string(rune('a'+i%26))+string(rune('0'+i/26))] = i
	}
	in := capmodel.ExecutionTrace{TaskResults: big}

	out := Sanitize(in)

	if len(out.TaskResults) > MaxMapEntries {
		t.Fatalf("expected at most %d entries, got %d", MaxMapEntries, len(out.TaskResults))
	}
}

func TestSanitizeDefaultsPriority(t *testing.T) {
	out := Sanitize(capmodel.ExecutionTrace{})
	if out.Priority != capmodel.DefaultPriority {
		t.Fatalf("expected default priority %v, got %v", capmodel.DefaultPriority, out.Priority)
	}
}

func TestSanitizeNestedValues(t *testing.T) {
	in := capmodel.ExecutionTrace{
		TaskResults: map[string]any{
			"nested": map[string]any{"token": "shh"},
			"list":   []any{"ok", strings.Repeat("y", MaxFieldBytes+10)},
		},
	}

	out := Sanitize(in)

	nested, ok := out.TaskResults["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map to survive sanitization, got %T", out.TaskResults["nested"])
	}
	if nested["token"] != "[redacted]" {
		t.Fatalf("expected nested secret key redacted, got %v", nested["token"])
	}

	list, ok := out.TaskResults["list"].([]any)
	if !ok {
		t.Fatalf("expected list to survive sanitization, got %T", out.TaskResults["list"])
	}
	if list[1].(string) == strings.Repeat("y", MaxFieldBytes+10) {
		t.Fatal("expected oversized list element to be truncated")
	}
}
