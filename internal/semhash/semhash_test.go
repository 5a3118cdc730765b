package semhash

import (
	"testing"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

func TestHashFallsBackToSourceForEmptyStructure(t *testing.T) {
	empty := &capmodel.StaticStructure{}
	h1 := Hash(empty, "const x = 1;")
	h2 := Hash(empty, "const y = 2;")
	if h1 == h2 {
		t.Fatal("expected different source text to hash differently when falling back")
	}
	if len(h1) != 64 {
		t.Fatalf("expected a 64-char hex sha256 digest, got length %d", len(h1))
	}
}

func TestHashIsInvariantToNodeIDRenaming(t *testing.T) {
	build := func(idSuffix string) *capmodel.StaticStructure {
		taskID := "n1" + idSuffix
		return &capmodel.StaticStructure{
			Nodes: []capmodel.Node{
				{ID: taskID, Kind: capmodel.NodeTask, Tool: "fs.read", Arguments: capmodel.ArgMap{
					"path": {Kind: capmodel.ArgLiteral, Literal: "/tmp/x"},
				}},
			},
		}
	}

	h1 := Hash(build("a"), "norm")
	h2 := Hash(build("b"), "norm")
	if h1 != h2 {
		t.Fatalf("expected node-id renaming to not affect the hash, got %s vs %s", h1, h2)
	}
}

func TestHashIsInvariantToIndependentStatementOrder(t *testing.T) {
	nodeA := capmodel.Node{ID: "n1", Kind: capmodel.NodeTask, Tool: "fs.read", Arguments: capmodel.ArgMap{
		"path": {Kind: capmodel.ArgLiteral, Literal: "/tmp/a"},
	}}
	nodeB := capmodel.Node{ID: "n2", Kind: capmodel.NodeTask, Tool: "fs.read", Arguments: capmodel.ArgMap{
		"path": {Kind: capmodel.ArgLiteral, Literal: "/tmp/b"},
	}}

	forward := &capmodel.StaticStructure{Nodes: []capmodel.Node{nodeA, nodeB}}
	reversed := &capmodel.StaticStructure{Nodes: []capmodel.Node{nodeB, nodeA}}

	if Hash(forward, "x") != Hash(reversed, "x") {
		t.Fatal("expected independent statement reordering to not affect the hash")
	}
}

func TestHashDiffersForDifferentLiterals(t *testing.T) {
	build := func(path string) *capmodel.StaticStructure {
		return &capmodel.StaticStructure{
			Nodes: []capmodel.Node{
				{ID: "n1", Kind: capmodel.NodeTask, Tool: "fs.read", Arguments: capmodel.ArgMap{
					"path": {Kind: capmodel.ArgLiteral, Literal: path},
				}},
			},
		}
	}

	h1 := Hash(build("/tmp/a"), "x")
	h2 := Hash(build("/tmp/b"), "x")
	if h1 == h2 {
		t.Fatal("expected different literal arguments to produce different hashes")
	}
}

func TestHashRemapsReferenceExpressionsToCanonicalIndex(t *testing.T) {
	build := func(producerID, consumerID string) *capmodel.StaticStructure {
		return &capmodel.StaticStructure{
			Nodes: []capmodel.Node{
				{ID: producerID, Kind: capmodel.NodeTask, Tool: "fs.read"},
				{ID: consumerID, Kind: capmodel.NodeTask, Tool: "fs.write", Arguments: capmodel.ArgMap{
					"content": {Kind: capmodel.ArgReference, Expression: producerID + ".data"},
				}},
			},
		}
	}

	h1 := Hash(build("n1", "n2"), "x")
	h2 := Hash(build("p1", "p2"), "x")
	if h1 != h2 {
		t.Fatalf("expected reference expressions to be remapped to canonical index, got %s vs %s", h1, h2)
	}
}
