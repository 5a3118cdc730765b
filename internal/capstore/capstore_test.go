package capstore

import (
	"context"
	"testing"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// fakePersistence is an in-memory stand-in for *store.Store, keyed the same
// way: capabilities by id, with a separate codeHash index.
type fakePersistence struct {
	byID    map[string]*capmodel.Capability
	byHash  map[string]string // codeHash -> id
	deps    []capmodel.CapabilityDependency
	schemas map[string]*capmodel.ToolSchema
	traces  []capmodel.ExecutionTrace
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		byID:    map[string]*capmodel.Capability{},
		byHash:  map[string]string{},
		schemas: map[string]*capmodel.ToolSchema{},
	}
}

func (f *fakePersistence) UpsertCapability(c *capmodel.Capability) error {
	cp := *c
	f.byID[c.ID] = &cp
	f.byHash[c.CodeHash] = c.ID
	return nil
}

func (f *fakePersistence) GetCapabilityByID(id string) (*capmodel.Capability, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakePersistence) FindByCodeHash(codeHash string) (*capmodel.Capability, error) {
	id, ok := f.byHash[codeHash]
	if !ok {
		return nil, nil
	}
	return f.GetCapabilityByID(id)
}

func (f *fakePersistence) RenameCapability(oldID, newID string) error {
	return nil
}

func (f *fakePersistence) UpdateUsage(id string, success bool, durationMs float64) error {
	c, ok := f.byID[id]
	if !ok {
		return nil
	}
	c.ApplyObservation(success, durationMs)
	return nil
}

func (f *fakePersistence) SearchByContext(tools []string, limit int) ([]capmodel.Capability, error) {
	return nil, nil
}

func (f *fakePersistence) SearchByIntent(query []float32, topK int) ([]capmodel.Capability, error) {
	return nil, nil
}

func (f *fakePersistence) UpsertDependency(d *capmodel.CapabilityDependency) error {
	f.deps = append(f.deps, *d)
	return nil
}

func (f *fakePersistence) GetDependencies(fromID string) ([]capmodel.CapabilityDependency, error) {
	var out []capmodel.CapabilityDependency
	for _, d := range f.deps {
		if d.FromCapabilityID == fromID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakePersistence) GetToolSchema(toolID string) (*capmodel.ToolSchema, bool, error) {
	s, ok := f.schemas[toolID]
	return s, ok, nil
}

func (f *fakePersistence) UpsertToolSchema(schema *capmodel.ToolSchema) error {
	f.schemas[schema.ToolID] = schema
	return nil
}

func (f *fakePersistence) InsertExecutionTrace(t *capmodel.ExecutionTrace) error {
	f.traces = append(f.traces, *t)
	return nil
}

func (f *fakePersistence) GetRecentTraces(capabilityID string, limit int) ([]capmodel.ExecutionTrace, error) {
	return f.traces, nil
}

const sampleCode = `await mcp.fs.read({ path: "/tmp/report.txt" });`

func TestSaveCapabilityCreatesNewCapability(t *testing.T) {
	persist := newFakePersistence()
	s := New(persist, nil, nil, nil)

	result, err := s.SaveCapability(context.Background(), SaveInput{
		Code:       sampleCode,
		Intent:     "read a report file",
		DurationMs: 42,
		Success:    true,
		ToolsUsed:  []string{"mcp.fs.read"},
	})
	if err != nil {
		t.Fatalf("SaveCapability: %v", err)
	}
	if result.Capability.ID == "" {
		t.Fatal("expected a generated capability id")
	}
	if result.Capability.CodeHash == "" {
		t.Fatal("expected a computed code hash")
	}
	if result.Capability.UsageCount != 1 || result.Capability.SuccessCount != 1 {
		t.Fatalf("expected first observation folded in, got usage=%d success=%d", result.Capability.UsageCount, result.Capability.SuccessCount)
	}
	if result.Capability.HierarchyLevel != 1 {
		t.Fatalf("expected hierarchy level 1 for a capability with no capability children, got %d", result.Capability.HierarchyLevel)
	}

	stored, err := persist.GetCapabilityByID(result.Capability.ID)
	if err != nil || stored == nil {
		t.Fatalf("expected capability to be persisted, err=%v stored=%v", err, stored)
	}
}

func TestSaveCapabilityDedupesByCodeHash(t *testing.T) {
	persist := newFakePersistence()
	s := New(persist, nil, nil, nil)
	ctx := context.Background()

	first, err := s.SaveCapability(ctx, SaveInput{
		Code: sampleCode, Intent: "read a report file", Success: true, DurationMs: 10,
	})
	if err != nil {
		t.Fatalf("SaveCapability (1st): %v", err)
	}

	second, err := s.SaveCapability(ctx, SaveInput{
		Code: sampleCode, Intent: "read a report file", Success: true, DurationMs: 20,
	})
	if err != nil {
		t.Fatalf("SaveCapability (2nd): %v", err)
	}

	if second.Capability.ID != first.Capability.ID {
		t.Fatalf("expected identical code to fold into the same capability, got %s then %s", first.Capability.ID, second.Capability.ID)
	}
	if second.Capability.UsageCount != 2 {
		t.Fatalf("expected usage count 2 after second save, got %d", second.Capability.UsageCount)
	}
}

func TestSaveCapabilityInsertsContainsEdgeForKnownChildTool(t *testing.T) {
	persist := newFakePersistence()
	persist.byID["fs.read"] = &capmodel.Capability{ID: "fs.read", HierarchyLevel: 0}

	s := New(persist, nil, nil, nil)
	result, err := s.SaveCapability(context.Background(), SaveInput{
		Code: sampleCode, Intent: "read a report file", Success: true,
	})
	if err != nil {
		t.Fatalf("SaveCapability: %v", err)
	}

	found := false
	for _, d := range persist.deps {
		if d.FromCapabilityID == result.Capability.ID && d.ToCapabilityID == "fs.read" && d.EdgeType == capmodel.DepContains {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a contains edge to the resolved child capability, deps=%+v", persist.deps)
	}
}

func TestSaveCapabilityPersistsSanitizedTrace(t *testing.T) {
	persist := newFakePersistence()
	s := New(persist, nil, nil, nil)

	result, err := s.SaveCapability(context.Background(), SaveInput{
		Code: sampleCode, Intent: "read a report file", Success: true,
		TraceData: &capmodel.ExecutionTrace{
			InitialContext: map[string]any{"api_key": "sk-secret"},
		},
	})
	if err != nil {
		t.Fatalf("SaveCapability: %v", err)
	}
	if result.Trace == nil {
		t.Fatal("expected a persisted trace")
	}
	if result.Trace.InitialContext["api_key"] != "[redacted]" {
		t.Fatalf("expected trace secret redaction, got %v", result.Trace.InitialContext["api_key"])
	}
	if result.Trace.CapabilityID != result.Capability.ID {
		t.Fatalf("expected trace linked to saved capability, got %q", result.Trace.CapabilityID)
	}
	if len(persist.traces) != 1 {
		t.Fatalf("expected exactly one trace persisted, got %d", len(persist.traces))
	}
}

func TestResolveReferenceReturnsFalseForUnknownCapability(t *testing.T) {
	persist := newFakePersistence()
	s := New(persist, nil, nil, nil)

	id, found, err := s.ResolveReference(context.Background(), "org", "proj", "mcp.fs", "write")
	if err != nil {
		t.Fatalf("ResolveReference: %v", err)
	}
	if found {
		t.Fatalf("expected unknown reference to report not found, got id=%q", id)
	}
}

func TestResolveReferenceFindsStoredCapability(t *testing.T) {
	persist := newFakePersistence()
	persist.byID["mcp.fs.write"] = &capmodel.Capability{ID: "mcp.fs.write"}
	s := New(persist, nil, nil, nil)

	id, found, err := s.ResolveReference(context.Background(), "org", "proj", "mcp.fs", "write")
	if err != nil {
		t.Fatalf("ResolveReference: %v", err)
	}
	if !found || id != "mcp.fs.write" {
		t.Fatalf("expected to resolve mcp.fs.write, got id=%q found=%v", id, found)
	}
}

func TestUpdateUsageDelegatesToPersistence(t *testing.T) {
	persist := newFakePersistence()
	persist.byID["cap-1"] = &capmodel.Capability{ID: "cap-1"}
	s := New(persist, nil, nil, nil)

	if err := s.UpdateUsage("cap-1", true, 50); err != nil {
		t.Fatalf("UpdateUsage: %v", err)
	}
	if persist.byID["cap-1"].UsageCount != 1 {
		t.Fatalf("expected usage delegated to persistence, got %+v", persist.byID["cap-1"])
	}
}

func TestTransitiveReliabilityFallsBackToSuccessRate(t *testing.T) {
	persist := newFakePersistence()
	persist.byID["cap-1"] = &capmodel.Capability{ID: "cap-1", SuccessRate: 0.77}
	s := New(persist, nil, nil, nil)

	got, err := s.TransitiveReliability("cap-1")
	if err != nil {
		t.Fatalf("TransitiveReliability: %v", err)
	}
	if got != 0.77 {
		t.Fatalf("expected fallback to stored success rate, got %v", got)
	}
}

func TestTransitiveReliabilityUnknownCapabilityIsFullyReliable(t *testing.T) {
	persist := newFakePersistence()
	s := New(persist, nil, nil, nil)

	got, err := s.TransitiveReliability("missing")
	if err != nil {
		t.Fatalf("TransitiveReliability: %v", err)
	}
	if got != 1.0 {
		t.Fatalf("expected unknown capability to be treated as fully reliable, got %v", got)
	}
}
