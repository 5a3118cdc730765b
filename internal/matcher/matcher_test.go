package matcher

import (
	"context"
	"testing"

	"github.com/antigravity-dev/capcore/internal/capmodel"
	"github.com/antigravity-dev/capcore/internal/toolcfg"
)

type fakeIntentStore struct {
	results []capmodel.Capability
}

func (f fakeIntentStore) SearchByIntent(query []float32, topK int) ([]capmodel.Capability, error) {
	return f.results, nil
}

type fakeReliability struct {
	values map[string]float64
}

func (f fakeReliability) TransitiveReliability(capID string) (float64, error) {
	return f.values[capID], nil
}

func cap(id string, embedding []float32, successRate float64) capmodel.Capability {
	return capmodel.Capability{ID: id, IntentEmbedding: embedding, SuccessRate: successRate}
}

func TestMatchFiltersBelowMinSemanticScore(t *testing.T) {
	store := fakeIntentStore{results: []capmodel.Capability{
		cap("cap-orthogonal", []float32{0, 1, 0}, 0.8),
	}}
	m := New(store, nil, nil, toolcfg.Scoring{BaseFactor: 0.6})

	candidates, err := m.Match(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected orthogonal embedding to be filtered out, got %+v", candidates)
	}
}

func TestMatchBoostsHighReliabilityCandidate(t *testing.T) {
	store := fakeIntentStore{results: []capmodel.Capability{
		cap("cap-reliable", []float32{1, 0, 0}, 0.95),
	}}
	m := New(store, nil, nil, toolcfg.Scoring{BaseFactor: 0.6})

	candidates, err := m.Match(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(candidates))
	}
	if candidates[0].ReliabilityFactor != 1.20*0.95 {
		t.Fatalf("expected boost factor 1.20 scaled by transitive reliability 0.95, got %v", candidates[0].ReliabilityFactor)
	}
	if candidates[0].Score > 0.95 {
		t.Fatalf("expected score clamped at 0.95, got %v", candidates[0].Score)
	}
}

func TestMatchPenalizesLowReliabilityCandidate(t *testing.T) {
	store := fakeIntentStore{results: []capmodel.Capability{
		cap("cap-unreliable", []float32{1, 0, 0}, 0.3),
	}}
	m := New(store, nil, nil, toolcfg.Scoring{BaseFactor: 0.6})

	candidates, err := m.Match(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if candidates[0].ReliabilityFactor != 0.10*0.3 {
		t.Fatalf("expected penalty factor 0.10 scaled by transitive reliability 0.3, got %v", candidates[0].ReliabilityFactor)
	}
	if candidates[0].Decision != DecisionFilteredByReliability {
		t.Fatalf("expected filtering for a reliability factor below FilterThreshold, got %v", candidates[0].Decision)
	}
}

func TestMatchUsesReliabilitySourceOverSuccessRate(t *testing.T) {
	store := fakeIntentStore{results: []capmodel.Capability{
		cap("cap-a", []float32{1, 0, 0}, 0.95), // would boost on its own SuccessRate
	}}
	reliability := fakeReliability{values: map[string]float64{"cap-a": 0.2}} // but graph says unreliable
	m := New(store, reliability, nil, toolcfg.Scoring{BaseFactor: 0.6})

	candidates, err := m.Match(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if candidates[0].ReliabilityFactor != 1.20*0.2 {
		t.Fatalf("expected dependency-graph reliability (0.2) to scale the SuccessRate-derived base factor (1.20), got factor %v", candidates[0].ReliabilityFactor)
	}
}

func TestMatchSortsDescendingByScore(t *testing.T) {
	store := fakeIntentStore{results: []capmodel.Capability{
		cap("cap-low", []float32{1, 0, 0}, 0.3),
		cap("cap-high", []float32{1, 0, 0}, 0.95),
	}}
	m := New(store, nil, nil, toolcfg.Scoring{BaseFactor: 0.6})

	candidates, err := m.Match(context.Background(), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Capability.ID != "cap-high" {
		t.Fatalf("expected cap-high ranked first, got %s", candidates[0].Capability.ID)
	}
}

func TestBestReturnsNilWhenNoneAccepted(t *testing.T) {
	candidates := []Candidate{
		{Decision: DecisionRejectedByThreshold, Score: 0.1},
		{Decision: DecisionFilteredByReliability, Score: 0.4},
	}
	if got := Best(candidates); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestBestReturnsHighestAccepted(t *testing.T) {
	candidates := []Candidate{
		{Decision: DecisionAccepted, Score: 0.8, Capability: capmodel.Capability{ID: "first"}},
		{Decision: DecisionAccepted, Score: 0.6, Capability: capmodel.Capability{ID: "second"}},
	}
	best := Best(candidates)
	if best == nil || best.Capability.ID != "first" {
		t.Fatalf("expected first candidate (already sorted descending), got %+v", best)
	}
}
