// Package depgraph implements the Dependency Graph: typed, evidence-weighted
// edges between capabilities, transitive reliability scoring, and cycle
// diagnostics, per spec.md 4.5.
//
// Grounded on the teacher's internal/graph/dag.go (edge upserts, recursive
// reachability) generalized from a task DAG to a capability dependency
// graph, and internal/dispatch's cooldown/TTL idiom for the
// transitive-reliability cache.
package depgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/antigravity-dev/capcore/internal/capmodel"
	"github.com/antigravity-dev/capcore/internal/errs"
	"github.com/antigravity-dev/capcore/internal/eventbus"
)

// DependencyStore is the persistence surface depgraph needs. A
// *store.Store satisfies this interface structurally.
type DependencyStore interface {
	UpsertDependency(d *capmodel.CapabilityDependency) error
	RemoveDependency(fromID, toID string, edgeType capmodel.DependencyEdgeType) error
	GetDependencies(fromID string) ([]capmodel.CapabilityDependency, error)
	GetDependenciesTo(toID string) ([]capmodel.CapabilityDependency, error)
	GetAllDependencies() ([]capmodel.CapabilityDependency, error)
	GetOutgoingDependencyIDs(fromID string) ([]string, error)
	GetCapabilityByID(id string) (*capmodel.Capability, error)
}

// Direction selects which endpoint GetDependencies filters by.
type Direction string

const (
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
	DirectionBoth Direction = "both"
)

const reliabilityCacheTTL = 60 * time.Second

// Graph is the Dependency Graph collaborator. One Graph instance owns the
// transitive-reliability cache; construct one per process.
type Graph struct {
	store     DependencyStore
	events    eventbus.Publisher
	logger    *slog.Logger
	staleAfter time.Duration

	mu    sync.Mutex
	cache map[string]reliabilityEntry
}

type reliabilityEntry struct {
	value     float64
	expiresAt time.Time
}

// New returns a Graph. events/logger may be nil (defaults to Noop/slog.Default).
func New(store DependencyStore, events eventbus.Publisher, logger *slog.Logger, staleAfter time.Duration) *Graph {
	if events == nil {
		events = eventbus.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if staleAfter <= 0 {
		staleAfter = 30 * 24 * time.Hour
	}
	return &Graph{store: store, events: events, logger: logger, staleAfter: staleAfter, cache: map[string]reliabilityEntry{}}
}

// AddDependency upserts a typed edge from->to, promoting inferred->observed
// at the observation threshold and warning on a contains-cycle.
func (g *Graph) AddDependency(ctx context.Context, from, to string, edgeType capmodel.DependencyEdgeType, source capmodel.EdgeSource) (*capmodel.CapabilityDependency, *errs.CycleWarning, error) {
	if from == "" || to == "" {
		return nil, nil, &errs.InvalidDependencyError{From: from, To: to, EdgeType: string(edgeType), Reason: "from/to capability id is required"}
	}
	if from == to {
		return nil, nil, &errs.InvalidDependencyError{From: from, To: to, EdgeType: string(edgeType), Reason: "a capability cannot depend on itself"}
	}

	existing, err := g.findEdge(from, to, edgeType)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	d := existing
	if d == nil {
		d = &capmodel.CapabilityDependency{
			FromCapabilityID: from,
			ToCapabilityID:   to,
			EdgeType:         edgeType,
			EdgeSource:       source,
			ObservedCount:    1,
			CreatedAt:        now,
		}
	} else {
		d.ObservedCount++
	}
	d.LastObserved = now
	d.MaybePromote()
	d.RecomputeConfidence()

	if err := g.store.UpsertDependency(d); err != nil {
		return nil, nil, fmt.Errorf("depgraph: %w: %v", errs.ErrPersistence, err)
	}
	g.invalidateCache()
	g.events.Publish(ctx, eventbus.EventCapabilityDependencyCreated, map[string]any{"from": from, "to": to, "edgeType": string(edgeType)})

	var warning *errs.CycleWarning
	if edgeType == capmodel.DepContains {
		reverse, err := g.findEdge(to, from, capmodel.DepContains)
		if err == nil && reverse != nil {
			warning = &errs.CycleWarning{From: from, To: to}
			g.logger.Warn("contains cycle detected", "from", from, "to", to)
		}
	}

	return d, warning, nil
}

// UpdateDependency increments an existing edge's observed count without
// inserting a new one; it returns an InvalidDependencyError if the edge does
// not exist.
func (g *Graph) UpdateDependency(ctx context.Context, from, to string, edgeType capmodel.DependencyEdgeType, increment int) (*capmodel.CapabilityDependency, error) {
	existing, err := g.findEdge(from, to, edgeType)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &errs.InvalidDependencyError{From: from, To: to, EdgeType: string(edgeType), Reason: "dependency does not exist"}
	}
	if increment <= 0 {
		increment = 1
	}
	existing.ObservedCount += increment
	existing.LastObserved = time.Now().UTC()
	existing.MaybePromote()
	existing.RecomputeConfidence()
	if err := g.store.UpsertDependency(existing); err != nil {
		return nil, fmt.Errorf("depgraph: %w: %v", errs.ErrPersistence, err)
	}
	g.invalidateCache()
	return existing, nil
}

// RemoveDependency deletes an edge and invalidates the reliability cache.
func (g *Graph) RemoveDependency(ctx context.Context, from, to string, edgeType capmodel.DependencyEdgeType) error {
	if err := g.store.RemoveDependency(from, to, edgeType); err != nil {
		return fmt.Errorf("depgraph: %w: %v", errs.ErrPersistence, err)
	}
	g.invalidateCache()
	g.events.Publish(ctx, eventbus.EventCapabilityDependencyRemoved, map[string]any{"from": from, "to": to, "edgeType": string(edgeType)})
	return nil
}

// GetDependencies returns edges touching capID in the requested direction.
func (g *Graph) GetDependencies(capID string, direction Direction) ([]capmodel.CapabilityDependency, error) {
	switch direction {
	case DirectionTo:
		return g.store.GetDependenciesTo(capID)
	case DirectionBoth:
		from, err := g.store.GetDependencies(capID)
		if err != nil {
			return nil, err
		}
		to, err := g.store.GetDependenciesTo(capID)
		if err != nil {
			return nil, err
		}
		return append(from, to...), nil
	default:
		return g.store.GetDependencies(capID)
	}
}

// GetAllDependencies returns every dependency with confidence at or above
// minConfidence (default 0.3 per spec.md 4.5).
func (g *Graph) GetAllDependencies(minConfidence float64) ([]capmodel.CapabilityDependency, error) {
	if minConfidence <= 0 {
		minConfidence = 0.3
	}
	all, err := g.store.GetAllDependencies()
	if err != nil {
		return nil, err
	}
	var out []capmodel.CapabilityDependency
	for _, d := range all {
		if d.ConfidenceScore >= minConfidence {
			out = append(out, d)
		}
	}
	return out, nil
}

// GetOutgoingDependencyIDs returns up to limit outgoing ids of the given
// edge type (default "dependency"), per spec.md 4.5.
func (g *Graph) GetOutgoingDependencyIDs(capID string, limit int, edgeType capmodel.DependencyEdgeType) ([]string, error) {
	if edgeType == "" {
		edgeType = capmodel.DepDependency
	}
	deps, err := g.store.GetDependencies(capID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, d := range deps {
		if d.EdgeType != edgeType {
			continue
		}
		out = append(out, d.ToCapabilityID)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// TransitiveReliability computes
// min(1.0, A.successRate, transitiveReliability(B) for B in outgoing deps
// of type=dependency), cached with a 60-second TTL invalidated on any
// dependency write.
func (g *Graph) TransitiveReliability(capID string) (float64, error) {
	g.mu.Lock()
	if entry, ok := g.cache[capID]; ok && time.Now().Before(entry.expiresAt) {
		g.mu.Unlock()
		return entry.value, nil
	}
	g.mu.Unlock()

	value, err := g.computeTransitiveReliability(capID, map[string]bool{})
	if err != nil {
		return 0, fmt.Errorf("depgraph: %w", err)
	}

	g.mu.Lock()
	g.cache[capID] = reliabilityEntry{value: value, expiresAt: time.Now().Add(reliabilityCacheTTL)}
	g.mu.Unlock()
	return value, nil
}

func (g *Graph) computeTransitiveReliability(capID string, visiting map[string]bool) (float64, error) {
	if visiting[capID] {
		// A dependency cycle in the "dependency" edge type: treat as fully
		// reliable rather than recursing forever.
		return 1.0, nil
	}
	visiting[capID] = true

	cap, err := g.store.GetCapabilityByID(capID)
	if err != nil {
		return 0, fmt.Errorf("depgraph: %w: %v", errs.ErrPersistence, err)
	}
	if cap == nil {
		return 1.0, nil
	}

	ids, err := g.GetOutgoingDependencyIDs(capID, 0, capmodel.DepDependency)
	if err != nil {
		return 0, err
	}

	min := cap.SuccessRate
	if min > 1.0 {
		min = 1.0
	}
	for _, id := range ids {
		child, err := g.computeTransitiveReliability(id, visiting)
		if err != nil {
			return 0, err
		}
		if child < min {
			min = child
		}
	}
	if min > 1.0 {
		min = 1.0
	}
	return min, nil
}

func (g *Graph) findEdge(from, to string, edgeType capmodel.DependencyEdgeType) (*capmodel.CapabilityDependency, error) {
	deps, err := g.store.GetDependencies(from)
	if err != nil {
		return nil, fmt.Errorf("depgraph: %w: %v", errs.ErrPersistence, err)
	}
	for i := range deps {
		if deps[i].ToCapabilityID == to && deps[i].EdgeType == edgeType {
			return &deps[i], nil
		}
	}
	return nil, nil
}

func (g *Graph) invalidateCache() {
	g.mu.Lock()
	g.cache = map[string]reliabilityEntry{}
	g.mu.Unlock()
}

// EffectiveConfidence applies read-time staleness decay to a stored
// dependency's confidence without mutating the stored value, per
// SPEC_FULL.md's confidence-decay Open Question resolution.
func (g *Graph) EffectiveConfidence(d capmodel.CapabilityDependency) float64 {
	stale := time.Since(d.LastObserved)
	if stale <= g.staleAfter {
		return d.ConfidenceScore
	}
	daysStale := stale.Hours() / 24
	decay := 1 - daysStale/365
	if decay < 0.5 {
		decay = 0.5
	}
	return d.ConfidenceScore * decay
}

// FindCycles returns every contains-reversal paradox currently stored:
// pairs (a,b) where both a-contains->b and b-contains->a exist.
func (g *Graph) FindCycles() ([]errs.CycleWarning, error) {
	all, err := g.store.GetAllDependencies()
	if err != nil {
		return nil, fmt.Errorf("depgraph: %w: %v", errs.ErrPersistence, err)
	}
	contains := map[string]bool{}
	for _, d := range all {
		if d.EdgeType == capmodel.DepContains {
			contains[d.FromCapabilityID+"\x00"+d.ToCapabilityID] = true
		}
	}
	seen := map[string]bool{}
	var out []errs.CycleWarning
	for _, d := range all {
		if d.EdgeType != capmodel.DepContains {
			continue
		}
		reverseKey := d.ToCapabilityID + "\x00" + d.FromCapabilityID
		pairKey := d.FromCapabilityID + "\x00" + d.ToCapabilityID
		if seen[pairKey] || seen[reverseKey] {
			continue
		}
		if contains[reverseKey] {
			seen[pairKey] = true
			seen[reverseKey] = true
			out = append(out, errs.CycleWarning{From: d.FromCapabilityID, To: d.ToCapabilityID})
		}
	}
	return out, nil
}
