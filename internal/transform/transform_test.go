package transform

import (
	"context"
	"strings"
	"testing"
)

type fakeResolver struct {
	resolved map[string]string // "ns.action" -> capability id
}

func (f fakeResolver) ResolveReference(_ context.Context, _, _, ns, action string) (string, bool, error) {
	id, ok := f.resolved[ns+"."+action]
	return id, ok, nil
}

// TestParameterizeLiterals_ScenarioA mirrors spec.md Scenario A.
func TestParameterizeLiterals_ScenarioA(t *testing.T) {
	tr := New(nil, nil)
	source := `const t = "sk-xxx"; await mcp.api.call({ auth: t, url: "https://x" })`
	bindings := map[string]any{"t": "sk-xxx"}

	newSource, schema, err := tr.ParameterizeLiterals(source, bindings)
	if err != nil {
		t.Fatalf("ParameterizeLiterals: %v", err)
	}

	if !strings.Contains(newSource, "mcp.api.call({ auth: args.t, url: args.url })") {
		t.Fatalf("expected rewritten call, got: %q", newSource)
	}
	if strings.Contains(newSource, "const t") {
		t.Fatalf("expected declaration removed, got: %q", newSource)
	}

	required, _ := schema["required"].([]any)
	requiredSet := map[string]bool{}
	for _, r := range required {
		requiredSet[r.(string)] = true
	}
	if !requiredSet["t"] || !requiredSet["url"] {
		t.Fatalf("expected required [t, url], got %v", required)
	}

	props, _ := schema["properties"].(map[string]any)
	tProp := props["t"].(map[string]any)
	if tProp["type"] != "string" {
		t.Fatalf("expected t typed string, got %v", tProp["type"])
	}
	examples, _ := tProp["examples"].([]any)
	if len(examples) != 1 || examples[0] != "sk-xxx" {
		t.Fatalf("expected t example sk-xxx, got %v", examples)
	}
}

func TestParameterizeLiterals_LoopControlVarExcluded(t *testing.T) {
	tr := New(nil, nil)
	source := `for (let i = 0; i < 10; i++) { await mcp.x.y({ v: i }); }`
	// Even if a caller mistakenly passes "i" as a literal binding, the loop
	// control variable must never be lifted.
	newSource, _, err := tr.ParameterizeLiterals(source, map[string]any{"i": 0})
	if err != nil {
		t.Fatalf("ParameterizeLiterals: %v", err)
	}
	if strings.Contains(newSource, "args.i") {
		t.Fatalf("loop control variable must not be parameterized, got: %q", newSource)
	}
}

func TestRewriteCapabilityReferences(t *testing.T) {
	resolver := fakeResolver{resolved: map[string]string{"std.cap_foo": "11111111-1111-1111-1111-111111111111"}}
	tr := New(resolver, nil)

	source := `await mcp.std.cap_foo({ x: 1 });`
	newSource, count, err := tr.RewriteCapabilityReferences(context.Background(), source, Scope{Org: "o", Project: "p"})
	if err != nil {
		t.Fatalf("RewriteCapabilityReferences: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 rewrite, got %d", count)
	}
	if !strings.Contains(newSource, `mcp["$cap:11111111-1111-1111-1111-111111111111"]({ x: 1 })`) {
		t.Fatalf("expected capability reference rewritten, got: %q", newSource)
	}
}

func TestRewriteCapabilityReferences_UnresolvedLeftUntouched(t *testing.T) {
	resolver := fakeResolver{resolved: map[string]string{}}
	tr := New(resolver, nil)

	source := `await mcp.filesystem.read_file({ path: "/tmp/x" });`
	newSource, count, err := tr.RewriteCapabilityReferences(context.Background(), source, Scope{})
	if err != nil {
		t.Fatalf("RewriteCapabilityReferences: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 rewrites for an unresolved genuine tool, got %d", count)
	}
	if newSource != source {
		t.Fatalf("expected source unchanged, got: %q", newSource)
	}
}

func TestNormalizeVariableNames(t *testing.T) {
	source := `file.content.length`
	out := NormalizeVariableNames(source, map[string]string{"file": "n1"})
	if out != "_n1.content.length" {
		t.Fatalf("expected _n1.content.length, got %q", out)
	}
}

func TestNormalizeVariableNames_SkipsPropertyAccess(t *testing.T) {
	source := `result.file`
	out := NormalizeVariableNames(source, map[string]string{"file": "n1"})
	if out != "result.file" {
		t.Fatalf("property access must not be renamed, got %q", out)
	}
}

func TestNormalizeVariableNames_LongestFirst(t *testing.T) {
	source := `fileContent + file`
	out := NormalizeVariableNames(source, map[string]string{
		"file":        "n1",
		"fileContent": "n2",
	})
	if out != "_n2 + _n1" {
		t.Fatalf("expected longest-first replacement, got %q", out)
	}
}
