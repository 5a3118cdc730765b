package capmodel

import "testing"

func TestEdgeKeySetDedupesIdenticalEdges(t *testing.T) {
	set := NewEdgeKeySet()
	e := Edge{From: "n1", To: "n2", Type: EdgeSequence}

	if !set.Add(e) {
		t.Fatal("expected the first occurrence to be added")
	}
	if set.Add(e) {
		t.Fatal("expected a duplicate edge to be rejected")
	}
}

func TestEdgeKeyDistinguishesByOutcome(t *testing.T) {
	base := Edge{From: "n1", To: "n2", Type: EdgeConditional}
	trueBranch := base
	trueBranch.Outcome = "true"
	falseBranch := base
	falseBranch.Outcome = "false"

	if trueBranch.Key() == falseBranch.Key() {
		t.Fatal("expected different outcomes to produce different keys")
	}
}
