// Package trace implements the execution-trace sanitization boundary:
// every ExecutionTrace must pass through Sanitize before it is persisted,
// per spec.md 3's invariant that no oversized or secret-like value escapes
// the trace boundary. Grounded on the teacher's output-truncation convention
// in internal/store.CaptureOutput (500KB cap, tail extraction).
package trace

import (
	"strings"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// MaxFieldBytes bounds any single string value folded into a trace's
// context/result maps; longer values are truncated with a marker suffix.
const MaxFieldBytes = 8 * 1024

// MaxMapEntries bounds how many keys InitialContext/TaskResults may carry.
const MaxMapEntries = 64

var secretKeyMarkers = []string{
	"password", "secret", "token", "apikey", "api_key", "auth", "credential", "private_key",
}

// Sanitize returns a copy of t with oversized values truncated and
// secret-like keys redacted. The original priority defaults to
// capmodel.DefaultPriority if unset.
func Sanitize(t capmodel.ExecutionTrace) capmodel.ExecutionTrace {
	out := t
	if out.Priority == 0 {
		out.Priority = capmodel.DefaultPriority
	}
	out.InitialContext = sanitizeMap(t.InitialContext)
	out.TaskResults = sanitizeMap(t.TaskResults)
	out.IntentText = truncateString(t.IntentText)
	out.ErrorMessage = truncateString(t.ErrorMessage)
	return out
}

func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	count := 0
	for k, v := range m {
		if count >= MaxMapEntries {
			break
		}
		count++
		if looksLikeSecretKey(k) {
			out[k] = "[redacted]"
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return truncateString(val)
	case map[string]any:
		return sanitizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func truncateString(s string) string {
	if len(s) <= MaxFieldBytes {
		return s
	}
	return s[:MaxFieldBytes] + "...[truncated]"
}

func looksLikeSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
