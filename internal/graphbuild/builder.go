// Package graphbuild implements the Edge Builder: a pure derivation of typed
// edges (sequence, conditional, loop-body, fork/join, provides) from an
// analyzed StaticStructure's nodes.
//
// Grounded on the teacher's internal/graph/dag.go edge-construction and
// cycle-check style (recursive CTE reachability check, edge-key dedup via a
// PRIMARY KEY pair) generalized here to an in-memory edge-key set since the
// Edge Builder itself never touches persistence.
package graphbuild

import (
	"context"
	"log/slog"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// ToolSchemaLookup resolves a tool id to its cached input/output schema, for
// provides-edge inference. Implementations may hit the store's tool_schema
// table; the Builder memoizes lookups within a single BuildEdges call.
type ToolSchemaLookup interface {
	ToolSchema(ctx context.Context, toolID string) (*capmodel.ToolSchema, bool, error)
}

// Builder derives edges from an analyzed graph. It holds no state between
// calls to BuildEdges other than its collaborators.
type Builder struct {
	schemas ToolSchemaLookup
	logger  *slog.Logger
}

// New returns a Builder. schemas may be nil, in which case no provides edges
// are ever emitted (step 6 is skipped silently).
func New(schemas ToolSchemaLookup, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{schemas: schemas, logger: logger}
}

// BuildEdges runs the six-stage algorithm from spec.md 4.2 over structure's
// nodes, returning the deduplicated edge list. It does not mutate structure.
func (b *Builder) BuildEdges(ctx context.Context, structure *capmodel.StaticStructure) ([]capmodel.Edge, error) {
	if structure == nil || len(structure.Nodes) == 0 {
		return nil, nil
	}

	nodes := structure.Nodes
	byID := indexByID(nodes)
	keys := capmodel.NewEdgeKeySet()
	var edges []capmodel.Edge

	emit := func(e capmodel.Edge) {
		if keys.Add(e) {
			edges = append(edges, e)
		}
	}

	chainRoot := computeChainRoots(nodes)

	// 1. Chained edges first.
	for i := range nodes {
		n := &nodes[i]
		if n.Meta.ChainedFrom == "" {
			continue
		}
		if _, ok := byID[n.Meta.ChainedFrom]; !ok {
			continue
		}
		emit(capmodel.Edge{From: n.Meta.ChainedFrom, To: n.ID, Type: capmodel.EdgeSequence})
	}

	// 2. Sequence edges within scope, data-dependency gated.
	groups := groupByScope(nodes)
	for _, group := range groups {
		for i, b := range group {
			if !isSequenceable(b) {
				continue
			}
			for j := 0; j < i; j++ {
				a := group[j]
				if !isSequenceable(a) {
					continue
				}
				if !referencesNode(b, a.ID) {
					continue
				}
				to := b.ID
				if root, ok := chainRoot[b.ID]; ok {
					to = root
				}
				emit(capmodel.Edge{From: a.ID, To: to, Type: capmodel.EdgeSequence})
			}
		}
	}

	// 3. Conditional edges: earliest node per sub-scope of each Decision.
	for i := range nodes {
		d := &nodes[i]
		if d.Kind != capmodel.NodeDecision {
			continue
		}
		for _, outcome := range []string{"true", "false"} {
			scope := d.ID + ":" + outcome
			if target, ok := earliestInScope(nodes, scope); ok {
				emit(capmodel.Edge{From: d.ID, To: target, Type: capmodel.EdgeConditional, Outcome: outcome})
			}
		}
		for _, scope := range caseScopesOf(nodes, d.ID) {
			if target, ok := earliestInScope(nodes, scope.key); ok {
				emit(capmodel.Edge{From: d.ID, To: target, Type: capmodel.EdgeConditional, Outcome: scope.outcome})
			}
		}
	}

	// 4. Loop body edges.
	for i := range nodes {
		l := &nodes[i]
		if l.Kind != capmodel.NodeLoop {
			continue
		}
		if target, ok := earliestInScope(nodes, l.ID); ok {
			emit(capmodel.Edge{From: l.ID, To: target, Type: capmodel.EdgeLoopBody})
		}
	}

	// 5. Fork/Join edges.
	for i := range nodes {
		f := &nodes[i]
		if f.Kind != capmodel.NodeFork {
			continue
		}
		join, ok := matchingJoin(nodes, f)
		children := directScopeChildren(nodes, f.ID)
		for _, c := range children {
			emit(capmodel.Edge{From: f.ID, To: c.ID, Type: capmodel.EdgeSequence})
			if ok {
				emit(capmodel.Edge{From: c.ID, To: join.ID, Type: capmodel.EdgeSequence})
			}
		}
	}

	// 6. Provides edges.
	if b.schemas != nil {
		provided, err := b.buildProvidesEdges(ctx, nodes)
		if err != nil {
			return nil, err
		}
		for _, e := range provided {
			emit(e)
		}
	}

	return edges, nil
}

func indexByID(nodes []capmodel.Node) map[string]*capmodel.Node {
	out := make(map[string]*capmodel.Node, len(nodes))
	for i := range nodes {
		out[nodes[i].ID] = &nodes[i]
	}
	return out
}

// groupByScope partitions nodes by ParentScope, preserving traversal order
// within each group.
func groupByScope(nodes []capmodel.Node) map[string][]capmodel.Node {
	out := map[string][]capmodel.Node{}
	for _, n := range nodes {
		out[n.ParentScope] = append(out[n.ParentScope], n)
	}
	return out
}

// isSequenceable reports whether a node participates in sequence/conditional
// ordering: executable task, decision, or capability nodes.
func isSequenceable(n capmodel.Node) bool {
	if !n.Meta.Executable {
		return false
	}
	switch n.Kind {
	case capmodel.NodeTask, capmodel.NodeDecision, capmodel.NodeCapability:
		return true
	default:
		return false
	}
}

// referencesNode reports whether b's arguments contain a Reference
// expression whose root is a.ID.
func referencesNode(b capmodel.Node, aID string) bool {
	for _, v := range b.Arguments {
		if v.Kind == capmodel.ArgReference && v.ReferenceRoot() == aID {
			return true
		}
	}
	return false
}

// computeChainRoots maps every node in a method chain to the chain's root,
// its first (innermost) link, by following ChainedFrom links back to the
// link that has none.
func computeChainRoots(nodes []capmodel.Node) map[string]string {
	parent := map[string]string{}
	for _, n := range nodes {
		if n.Meta.ChainedFrom != "" {
			parent[n.ID] = n.Meta.ChainedFrom
		}
	}
	root := map[string]string{}
	var resolve func(id string) string
	resolve = func(id string) string {
		if r, ok := root[id]; ok {
			return r
		}
		p, ok := parent[id]
		if !ok {
			root[id] = id
			return id
		}
		r := resolve(p)
		root[id] = r
		return r
	}
	for _, n := range nodes {
		resolve(n.ID)
	}
	return root
}

// earliestInScope returns the id of the node with the lowest Position whose
// ParentScope equals scope.
func earliestInScope(nodes []capmodel.Node, scope string) (string, bool) {
	best := ""
	bestPos := -1
	for _, n := range nodes {
		if n.ParentScope != scope {
			continue
		}
		if bestPos == -1 || n.Position < bestPos {
			bestPos = n.Position
			best = n.ID
		}
	}
	return best, bestPos != -1
}

type caseScope struct {
	key     string
	outcome string
}

// caseScopesOf discovers every "<decisionId>:case:<value>" scope actually
// present among nodes (the analyzer only created scopes it used).
func caseScopesOf(nodes []capmodel.Node, decisionID string) []caseScope {
	prefix := decisionID + ":case:"
	seen := map[string]bool{}
	var out []caseScope
	for _, n := range nodes {
		if len(n.ParentScope) > len(prefix) && n.ParentScope[:len(prefix)] == prefix {
			if !seen[n.ParentScope] {
				seen[n.ParentScope] = true
				out = append(out, caseScope{key: n.ParentScope, outcome: n.ParentScope[len(decisionID)+1:]})
			}
		}
	}
	return out
}

// directScopeChildren returns nodes whose ParentScope equals scope, in
// position order.
func directScopeChildren(nodes []capmodel.Node, scope string) []capmodel.Node {
	var out []capmodel.Node
	for _, n := range nodes {
		if n.ParentScope == scope {
			out = append(out, n)
		}
	}
	return out
}

// matchingJoin finds the next Join node with position greater than fork's
// that shares fork's own ParentScope (the join closing this fork block).
func matchingJoin(nodes []capmodel.Node, fork *capmodel.Node) (*capmodel.Node, bool) {
	var best *capmodel.Node
	for i := range nodes {
		n := &nodes[i]
		if n.Kind != capmodel.NodeJoin || n.ParentScope != fork.ParentScope {
			continue
		}
		if n.Position <= fork.Position {
			continue
		}
		if best == nil || n.Position < best.Position {
			best = n
		}
	}
	return best, best != nil
}
