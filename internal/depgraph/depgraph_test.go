package depgraph

import (
	"context"
	"testing"
	"time"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

type fakeStore struct {
	deps         []capmodel.CapabilityDependency
	capabilities map[string]*capmodel.Capability
}

func newFakeStore() *fakeStore {
	return &fakeStore{capabilities: map[string]*capmodel.Capability{}}
}

func (f *fakeStore) UpsertDependency(d *capmodel.CapabilityDependency) error {
	for i := range f.deps {
		existing := &f.deps[i]
		if existing.FromCapabilityID == d.FromCapabilityID && existing.ToCapabilityID == d.ToCapabilityID && existing.EdgeType == d.EdgeType {
			*existing = *d
			return nil
		}
	}
	f.deps = append(f.deps, *d)
	return nil
}

func (f *fakeStore) RemoveDependency(fromID, toID string, edgeType capmodel.DependencyEdgeType) error {
	out := f.deps[:0]
	for _, d := range f.deps {
		if d.FromCapabilityID == fromID && d.ToCapabilityID == toID && d.EdgeType == edgeType {
			continue
		}
		out = append(out, d)
	}
	f.deps = out
	return nil
}

func (f *fakeStore) GetDependencies(fromID string) ([]capmodel.CapabilityDependency, error) {
	var out []capmodel.CapabilityDependency
	for _, d := range f.deps {
		if d.FromCapabilityID == fromID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) GetDependenciesTo(toID string) ([]capmodel.CapabilityDependency, error) {
	var out []capmodel.CapabilityDependency
	for _, d := range f.deps {
		if d.ToCapabilityID == toID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAllDependencies() ([]capmodel.CapabilityDependency, error) {
	return f.deps, nil
}

func (f *fakeStore) GetOutgoingDependencyIDs(fromID string) ([]string, error) {
	var out []string
	for _, d := range f.deps {
		if d.FromCapabilityID == fromID {
			out = append(out, d.ToCapabilityID)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCapabilityByID(id string) (*capmodel.Capability, error) {
	return f.capabilities[id], nil
}

func TestAddDependencyRejectsSelfReference(t *testing.T) {
	g := New(newFakeStore(), nil, nil, 0)
	_, _, err := g.AddDependency(context.Background(), "cap-a", "cap-a", capmodel.DepDependency, capmodel.SourceObserved)
	if err == nil {
		t.Fatal("expected error for self-referencing dependency")
	}
}

func TestAddDependencyPromotesAtObservedThreshold(t *testing.T) {
	store := newFakeStore()
	g := New(store, nil, nil, 0)
	ctx := context.Background()

	var d *capmodel.CapabilityDependency
	for i := 0; i < capmodel.ObservedThreshold; i++ {
		var err error
		d, _, err = g.AddDependency(ctx, "cap-a", "cap-b", capmodel.DepDependency, capmodel.SourceInferred)
		if err != nil {
			t.Fatalf("AddDependency: %v", err)
		}
	}
	if d.EdgeSource != capmodel.SourceObserved {
		t.Fatalf("expected promotion to observed after %d observations, got %s", capmodel.ObservedThreshold, d.EdgeSource)
	}
}

func TestAddDependencyWarnsOnContainsCycle(t *testing.T) {
	store := newFakeStore()
	g := New(store, nil, nil, 0)
	ctx := context.Background()

	if _, _, err := g.AddDependency(ctx, "cap-a", "cap-b", capmodel.DepContains, capmodel.SourceObserved); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	_, warning, err := g.AddDependency(ctx, "cap-b", "cap-a", capmodel.DepContains, capmodel.SourceObserved)
	if err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	if warning == nil {
		t.Fatal("expected a cycle warning for reverse-contains edge")
	}
}

func TestTransitiveReliabilityTakesMinAcrossChain(t *testing.T) {
	store := newFakeStore()
	store.capabilities["cap-a"] = &capmodel.Capability{ID: "cap-a", SuccessRate: 0.9}
	store.capabilities["cap-b"] = &capmodel.Capability{ID: "cap-b", SuccessRate: 0.4}
	store.deps = append(store.deps, capmodel.CapabilityDependency{
		FromCapabilityID: "cap-a", ToCapabilityID: "cap-b", EdgeType: capmodel.DepDependency,
	})

	g := New(store, nil, nil, 0)
	score, err := g.TransitiveReliability("cap-a")
	if err != nil {
		t.Fatalf("TransitiveReliability: %v", err)
	}
	if score != 0.4 {
		t.Fatalf("expected transitive reliability to take min (0.4), got %v", score)
	}
}

func TestTransitiveReliabilityIsCached(t *testing.T) {
	store := newFakeStore()
	store.capabilities["cap-a"] = &capmodel.Capability{ID: "cap-a", SuccessRate: 0.8}

	g := New(store, nil, nil, 0)
	first, err := g.TransitiveReliability("cap-a")
	if err != nil {
		t.Fatalf("TransitiveReliability: %v", err)
	}

	store.capabilities["cap-a"].SuccessRate = 0.1
	second, err := g.TransitiveReliability("cap-a")
	if err != nil {
		t.Fatalf("TransitiveReliability (cached): %v", err)
	}
	if first != second {
		t.Fatalf("expected cached value to be returned within TTL, got %v then %v", first, second)
	}
}

func TestTransitiveReliabilityHandlesCycleWithoutInfiniteRecursion(t *testing.T) {
	store := newFakeStore()
	store.capabilities["cap-a"] = &capmodel.Capability{ID: "cap-a", SuccessRate: 0.7}
	store.capabilities["cap-b"] = &capmodel.Capability{ID: "cap-b", SuccessRate: 0.9}
	store.deps = append(store.deps,
		capmodel.CapabilityDependency{FromCapabilityID: "cap-a", ToCapabilityID: "cap-b", EdgeType: capmodel.DepDependency},
		capmodel.CapabilityDependency{FromCapabilityID: "cap-b", ToCapabilityID: "cap-a", EdgeType: capmodel.DepDependency},
	)

	g := New(store, nil, nil, 0)
	done := make(chan struct{})
	go func() {
		if _, err := g.TransitiveReliability("cap-a"); err != nil {
			t.Errorf("TransitiveReliability: %v", err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TransitiveReliability did not terminate on a dependency cycle")
	}
}

func TestEffectiveConfidenceDecaysAfterStaleAfter(t *testing.T) {
	g := New(newFakeStore(), nil, nil, 24*time.Hour)
	d := capmodel.CapabilityDependency{
		ConfidenceScore: 1.0,
		LastObserved:    time.Now().Add(-400 * 24 * time.Hour),
	}
	if got := g.EffectiveConfidence(d); got != 0.5 {
		t.Fatalf("expected decay floor of 0.5 for very stale dependency, got %v", got)
	}

	fresh := capmodel.CapabilityDependency{ConfidenceScore: 1.0, LastObserved: time.Now()}
	if got := g.EffectiveConfidence(fresh); got != 1.0 {
		t.Fatalf("expected no decay for fresh dependency, got %v", got)
	}
}

func TestFindCyclesDetectsReverseContainsPairs(t *testing.T) {
	store := newFakeStore()
	store.deps = append(store.deps,
		capmodel.CapabilityDependency{FromCapabilityID: "cap-a", ToCapabilityID: "cap-b", EdgeType: capmodel.DepContains},
		capmodel.CapabilityDependency{FromCapabilityID: "cap-b", ToCapabilityID: "cap-a", EdgeType: capmodel.DepContains},
		capmodel.CapabilityDependency{FromCapabilityID: "cap-c", ToCapabilityID: "cap-d", EdgeType: capmodel.DepContains},
	)
	g := New(store, nil, nil, 0)

	cycles, err := g.FindCycles()
	if err != nil {
		t.Fatalf("FindCycles: %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("expected exactly one cycle, got %d: %+v", len(cycles), cycles)
	}
}

func TestGetAllDependenciesFiltersByMinConfidence(t *testing.T) {
	store := newFakeStore()
	store.deps = append(store.deps,
		capmodel.CapabilityDependency{FromCapabilityID: "a", ToCapabilityID: "b", EdgeType: capmodel.DepSequence, ConfidenceScore: 0.1},
		capmodel.CapabilityDependency{FromCapabilityID: "a", ToCapabilityID: "c", EdgeType: capmodel.DepDependency, ConfidenceScore: 0.9},
	)
	g := New(store, nil, nil, 0)

	all, err := g.GetAllDependencies(0.3)
	if err != nil {
		t.Fatalf("GetAllDependencies: %v", err)
	}
	if len(all) != 1 || all[0].ToCapabilityID != "c" {
		t.Fatalf("expected only high-confidence edge to survive filter, got %+v", all)
	}
}
