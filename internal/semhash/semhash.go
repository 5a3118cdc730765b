// Package semhash computes the Capability Store's semantic content hash: a
// 256-bit digest of a StaticStructure that is invariant to variable naming,
// node-id assignment, and the relative order of independent statements
// within a scope, per spec.md 4.4.
//
// Grounded on the teacher's crypto/rand + math/big id-generation style in
// internal/graph/dag.go: a stdlib cryptographic primitive used directly,
// with no ecosystem hashing library in the retrieval pack offering anything
// beyond what crypto/sha256 already provides for a fixed-width content
// digest — see DESIGN.md.
package semhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// Hash computes the semantic hash of a StaticStructure. If the structure is
// empty, it falls back to hashing the normalized source text instead.
func Hash(structure *capmodel.StaticStructure, normalizedSource string) string {
	if structure.IsEmpty() {
		return hashString("source:" + normalizedSource)
	}
	order := canonicalOrder(structure.Nodes)
	return hashString(canonicalSerialize(structure, order))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// canonicalOrder returns a topological ordering of structure.Nodes,
// remapped so each node's position in the slice is its canonical index.
// Among nodes with no ordering constraint between them (independent
// statements), ties are broken by a content signature rather than original
// array position, so reordering independent statements in the source does
// not change the resulting order.
func canonicalOrder(nodes []capmodel.Node) []capmodel.Node {
	byID := make(map[string]*capmodel.Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	// A node "depends on" another when it appears in a strictly later
	// position within the same parentScope and references it (coarse
	// approximation of the edge builder's own data-dependency detection,
	// sufficient to linearize deterministically).
	children := map[string][]string{} // id -> ids that must come after it
	indegree := map[string]int{}
	for _, n := range nodes {
		indegree[n.ID] = 0
	}
	for _, n := range nodes {
		for _, v := range n.Arguments {
			if v.Kind == capmodel.ArgReference {
				root := v.ReferenceRoot()
				if _, ok := byID[root]; ok && root != n.ID {
					children[root] = append(children[root], n.ID)
					indegree[n.ID]++
				}
			}
		}
		// A node nested in another's scope depends on that container.
		if scopeOwner, ok := scopeOwnerID(n.ParentScope); ok {
			if _, exists := byID[scopeOwner]; exists {
				children[scopeOwner] = append(children[scopeOwner], n.ID)
				indegree[n.ID]++
			}
		}
	}

	ready := []string{}
	for _, n := range nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	var orderedIDs []string
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return contentSignature(byID[ready[i]]) < contentSignature(byID[ready[j]])
		})
		next := ready[0]
		ready = ready[1:]
		orderedIDs = append(orderedIDs, next)
		for _, childID := range children[next] {
			indegree[childID]--
			if indegree[childID] == 0 {
				ready = append(ready, childID)
			}
		}
	}
	// Any remaining nodes (cycle, or missed by the approximation) are
	// appended in original order as a safety net — correctness over
	// elegance when the coarse dependency graph above can't fully resolve.
	seen := map[string]bool{}
	for _, id := range orderedIDs {
		seen[id] = true
	}
	for _, n := range nodes {
		if !seen[n.ID] {
			orderedIDs = append(orderedIDs, n.ID)
		}
	}

	out := make([]capmodel.Node, len(orderedIDs))
	for i, id := range orderedIDs {
		out[i] = *byID[id]
	}
	return out
}

// scopeOwnerID extracts the owning node id from a parentScope key, which is
// "<id>", "<id>:true", "<id>:false", or "<id>:case:<value>".
func scopeOwnerID(scope string) (string, bool) {
	if scope == "" {
		return "", false
	}
	if idx := strings.IndexByte(scope, ':'); idx >= 0 {
		return scope[:idx], true
	}
	return scope, true
}

// contentSignature is a content-based tie-breaker independent of node id or
// original position, used to order otherwise-independent nodes
// deterministically.
func contentSignature(n *capmodel.Node) string {
	var b strings.Builder
	b.WriteString(string(n.Kind))
	b.WriteByte('|')
	b.WriteString(n.Tool)
	b.WriteByte('|')
	b.WriteString(n.Code)
	b.WriteByte('|')
	b.WriteString(n.Condition)
	b.WriteByte('|')
	b.WriteString(string(n.LoopKind))
	b.WriteByte('|')
	argNames := make([]string, 0, len(n.Arguments))
	for name := range n.Arguments {
		argNames = append(argNames, name)
	}
	sort.Strings(argNames)
	for _, name := range argNames {
		b.WriteString(name)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", n.Arguments[name])
	}
	return b.String()
}

// canonicalSerialize builds the deterministic string hashed into the
// semantic digest: each node in canonical order, its kind/tool/condition/
// loopKind, and its arguments with reference expressions remapped so the
// leading identifier is the node's canonical index rather than its
// presentation id (so `const x=1;use(x)` and `const y=1;use(y)` serialize
// identically).
func canonicalSerialize(structure *capmodel.StaticStructure, ordered []capmodel.Node) string {
	indexOf := make(map[string]int, len(ordered))
	for i, n := range ordered {
		indexOf[n.ID] = i
	}

	var b strings.Builder
	for i, n := range ordered {
		fmt.Fprintf(&b, "N%d:%s:%s:%s:%s:%s;", i, n.Kind, n.Tool, n.Code, n.Condition, n.LoopKind)
		argNames := make([]string, 0, len(n.Arguments))
		for name := range n.Arguments {
			argNames = append(argNames, name)
		}
		sort.Strings(argNames)
		for _, name := range argNames {
			v := n.Arguments[name]
			fmt.Fprintf(&b, "A:%s=%s;", name, canonicalArgValue(v, indexOf))
		}
	}

	edges := make([]capmodel.Edge, len(structure.Edges))
	copy(edges, structure.Edges)
	sort.Slice(edges, func(i, j int) bool {
		ei, ej := edges[i], edges[j]
		fi, fj := remappedIndex(ei.From, indexOf), remappedIndex(ej.From, indexOf)
		if fi != fj {
			return fi < fj
		}
		ti, tj := remappedIndex(ei.To, indexOf), remappedIndex(ej.To, indexOf)
		if ti != tj {
			return ti < tj
		}
		return string(ei.Type)+ei.Outcome < string(ej.Type)+ej.Outcome
	})
	for _, e := range edges {
		fmt.Fprintf(&b, "E:%d->%d:%s:%s:%s;", remappedIndex(e.From, indexOf), remappedIndex(e.To, indexOf), e.Type, e.Outcome, e.CoverageKind)
	}

	return b.String()
}

func remappedIndex(id string, indexOf map[string]int) int {
	if i, ok := indexOf[id]; ok {
		return i
	}
	return -1
}

func canonicalArgValue(v capmodel.ArgValue, indexOf map[string]int) string {
	switch v.Kind {
	case capmodel.ArgLiteral:
		return fmt.Sprintf("lit:%v", v.Literal)
	case capmodel.ArgParameter:
		return "param:" + v.ParamName
	case capmodel.ArgReference:
		root := v.ReferenceRoot()
		if idx, ok := indexOf[root]; ok {
			rest := strings.TrimPrefix(v.Expression, root)
			return fmt.Sprintf("ref:%d%s", idx, rest)
		}
		return "ref:free:" + v.Expression
	default:
		return "unknown"
	}
}
