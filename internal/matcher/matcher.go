// Package matcher implements the Matcher half of the Dependency Graph &
// Matcher component: given an intent embedding, rank semantically similar
// capabilities by a reliability-adjusted score and bucket each candidate
// into an accept/filter/reject decision, per spec.md 4.5.
//
// Grounded on the teacher's internal/learner scoring pass (a semantic
// score blended with an observed-outcome multiplier, bucketed into
// decision classes) generalized from task-learner candidates to stored
// capabilities.
package matcher

import (
	"context"
	"math"
	"sort"

	"github.com/antigravity-dev/capcore/internal/capmodel"
	"github.com/antigravity-dev/capcore/internal/eventbus"
	"github.com/antigravity-dev/capcore/internal/toolcfg"
)

// Decision classifies where a scored candidate landed.
type Decision string

const (
	DecisionAccepted              Decision = "accepted"
	DecisionFilteredByReliability Decision = "filtered_by_reliability"
	DecisionRejectedByThreshold   Decision = "rejected_by_threshold"
)

// IntentStore is the semantic-search surface the Matcher needs.
type IntentStore interface {
	SearchByIntent(query []float32, topK int) ([]capmodel.Capability, error)
}

// ReliabilitySource supplies the transitive reliability factor for a
// candidate, falling back to the candidate's own SuccessRate when a
// dependency graph is not wired in.
type ReliabilitySource interface {
	TransitiveReliability(capID string) (float64, error)
}

// Candidate is one scored capability.
type Candidate struct {
	Capability        capmodel.Capability
	SemanticScore     float64
	ReliabilityFactor float64
	Score             float64
	Decision          Decision
}

// Matcher ranks capabilities against an intent embedding.
type Matcher struct {
	store        IntentStore
	reliability  ReliabilitySource
	events       eventbus.Publisher
	cfg          toolcfg.Scoring
}

// New constructs a Matcher. reliability may be nil, in which case each
// candidate's own SuccessRate stands in for transitive reliability.
func New(store IntentStore, reliability ReliabilitySource, events eventbus.Publisher, cfg toolcfg.Scoring) *Matcher {
	if events == nil {
		events = eventbus.Noop{}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinSemanticScore <= 0 {
		cfg.MinSemanticScore = 0.65
	}
	if cfg.PenaltyThreshold <= 0 {
		cfg.PenaltyThreshold = 0.50
	}
	if cfg.BoostThreshold <= 0 {
		cfg.BoostThreshold = 0.90
	}
	if cfg.PenaltyFactor <= 0 {
		cfg.PenaltyFactor = 0.10
	}
	if cfg.BoostFactor <= 0 {
		cfg.BoostFactor = 1.20
	}
	if cfg.FilterThreshold <= 0 {
		cfg.FilterThreshold = 0.20
	}
	if cfg.SuggestionThreshold <= 0 {
		cfg.SuggestionThreshold = 0.70
	}
	return &Matcher{store: store, reliability: reliability, events: events, cfg: cfg}
}

// Match returns every candidate above MinSemanticScore, scored and
// bucketed, sorted by descending score. The best accepted candidate, if
// any, is reported via the capability.matched event.
func (m *Matcher) Match(ctx context.Context, intentEmbedding []float32) ([]Candidate, error) {
	results, err := m.store.SearchByIntent(intentEmbedding, m.cfg.TopK)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(results))
	for _, cap := range results {
		semanticScore := cosineSimilarity(intentEmbedding, cap.IntentEmbedding)
		if semanticScore < m.cfg.MinSemanticScore {
			continue
		}

		baseFactor := m.cfg.BaseFactor
		if baseFactor == 0 {
			baseFactor = 1.0
		}
		switch {
		case cap.SuccessRate < m.cfg.PenaltyThreshold:
			baseFactor = m.cfg.PenaltyFactor
		case cap.SuccessRate > m.cfg.BoostThreshold:
			baseFactor = m.cfg.BoostFactor
		}

		transitiveReliability := cap.SuccessRate
		if m.reliability != nil {
			if v, err := m.reliability.TransitiveReliability(cap.ID); err == nil {
				transitiveReliability = v
			}
		}

		reliabilityFactor := baseFactor * transitiveReliability

		score := semanticScore * reliabilityFactor
		if score > 0.95 {
			score = 0.95
		}

		decision := DecisionRejectedByThreshold
		switch {
		case score >= m.cfg.SuggestionThreshold:
			decision = DecisionAccepted
		case reliabilityFactor < m.cfg.FilterThreshold && score < m.cfg.SuggestionThreshold:
			decision = DecisionFilteredByReliability
		}

		c := Candidate{
			Capability:        cap,
			SemanticScore:     semanticScore,
			ReliabilityFactor: reliabilityFactor,
			Score:             score,
			Decision:          decision,
		}
		candidates = append(candidates, c)

		m.events.Publish(ctx, eventbus.EventAlgorithmScored, map[string]any{
			"capabilityId":      cap.ID,
			"semanticScore":     semanticScore,
			"reliabilityFactor": reliabilityFactor,
			"score":             score,
			"decision":          string(decision),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if best := bestAccepted(candidates); best != nil {
		m.events.Publish(ctx, eventbus.EventCapabilityMatched, map[string]any{
			"capabilityId": best.Capability.ID,
			"score":        best.Score,
		})
	}

	return candidates, nil
}

// Best returns the highest-scoring accepted candidate, or nil if none of
// the candidates were accepted.
func Best(candidates []Candidate) *Candidate {
	return bestAccepted(candidates)
}

func bestAccepted(candidates []Candidate) *Candidate {
	for i := range candidates {
		if candidates[i].Decision == DecisionAccepted {
			return &candidates[i]
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
