package core

import (
	"context"
	"testing"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

type fakeSweepLister struct {
	caps    map[string]*capmodel.Capability
	upserts int
}

func (f *fakeSweepLister) ListCapabilities() ([]capmodel.Capability, error) {
	out := make([]capmodel.Capability, 0, len(f.caps))
	for _, c := range f.caps {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeSweepLister) UpsertCapability(c *capmodel.Capability) error {
	f.upserts++
	cp := *c
	f.caps[c.ID] = &cp
	return nil
}

type fakeGraphAccessor struct {
	children map[string][]string
}

func (f *fakeGraphAccessor) GetOutgoingDependencyIDs(capID string, limit int, edgeType capmodel.DependencyEdgeType) ([]string, error) {
	return f.children[capID], nil
}

func TestReliabilitySweepRecomputesUnderLeveledCapability(t *testing.T) {
	lister := &fakeSweepLister{caps: map[string]*capmodel.Capability{
		"cap-parent": {ID: "cap-parent", HierarchyLevel: 1},
		"cap-child":  {ID: "cap-child", HierarchyLevel: 3},
	}}
	graph := &fakeGraphAccessor{children: map[string][]string{
		"cap-parent": {"cap-child"},
	}}

	sweep := NewReliabilitySweep(lister, graph, nil)
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := lister.caps["cap-parent"].HierarchyLevel; got != 4 {
		t.Fatalf("expected parent recomputed to child level + 1 (4), got %d", got)
	}
	// cap-child has no contains edges, so it is also recomputed (3 -> 1).
	if got := lister.caps["cap-child"].HierarchyLevel; got != 1 {
		t.Fatalf("expected childless capability recomputed to level 1, got %d", got)
	}
	if lister.upserts != 2 {
		t.Fatalf("expected exactly two upserts for the two changed capabilities, got %d", lister.upserts)
	}
}

func TestReliabilitySweepSkipsAlreadyCorrectLevels(t *testing.T) {
	lister := &fakeSweepLister{caps: map[string]*capmodel.Capability{
		"cap-leaf": {ID: "cap-leaf", HierarchyLevel: 1},
	}}
	graph := &fakeGraphAccessor{children: map[string][]string{}}

	sweep := NewReliabilitySweep(lister, graph, nil)
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lister.upserts != 0 {
		t.Fatalf("expected no upserts when level is already correct, got %d", lister.upserts)
	}
}
