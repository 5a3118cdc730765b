package capmodel

import "time"

// RiskCategory buckets a capability by the maximum scope of the tools it uses.
type RiskCategory string

const (
	RiskSafe      RiskCategory = "safe"
	RiskModerate  RiskCategory = "moderate"
	RiskDangerous RiskCategory = "dangerous"
)

// Capability is the stored, immutable-id record produced by a save.
type Capability struct {
	ID               string          `json:"id"`
	CodeSnippet      string          `json:"codeSnippet"`
	CodeHash         string          `json:"codeHash"`
	IntentEmbedding  []float32       `json:"intentEmbedding,omitempty"`
	ParametersSchema map[string]any  `json:"parametersSchema"`
	StaticStructure  StaticStructure `json:"staticStructure"`

	UsageCount   int     `json:"usageCount"`
	SuccessCount int     `json:"successCount"`
	SuccessRate  float64 `json:"successRate"`
	AvgDurationMs float64 `json:"avgDurationMs"`

	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`

	HierarchyLevel int          `json:"hierarchyLevel"`
	RiskCategory   RiskCategory `json:"riskCategory"`

	Description string   `json:"description,omitempty"`
	ToolsUsed   []string `json:"toolsUsed,omitempty"`
}

// RecomputeSuccessRate keeps the successRate == successCount/usageCount
// invariant. Call after any mutation of UsageCount/SuccessCount.
func (c *Capability) RecomputeSuccessRate() {
	if c.UsageCount <= 0 {
		c.SuccessRate = 0
		return
	}
	c.SuccessRate = float64(c.SuccessCount) / float64(c.UsageCount)
}

// ApplyObservation folds one more usage observation into the running
// averages: usageCount += 1, successCount += success?1:0, avgDurationMs
// recomputed as an incremental mean.
func (c *Capability) ApplyObservation(success bool, durationMs float64) {
	prevCount := c.UsageCount
	c.UsageCount++
	if success {
		c.SuccessCount++
	}
	c.RecomputeSuccessRate()
	if prevCount == 0 {
		c.AvgDurationMs = durationMs
		return
	}
	c.AvgDurationMs = (c.AvgDurationMs*float64(prevCount) + durationMs) / float64(c.UsageCount)
}

// EdgeSource classifies how a CapabilityDependency's existence was learned.
type EdgeSource string

const (
	SourceTemplate EdgeSource = "template"
	SourceInferred EdgeSource = "inferred"
	SourceObserved EdgeSource = "observed"
)

// DependencyEdgeType enumerates the typed relations between capabilities.
type DependencyEdgeType string

const (
	DepDependency  DependencyEdgeType = "dependency"
	DepContains    DependencyEdgeType = "contains"
	DepProvides    DependencyEdgeType = "provides"
	DepAlternative DependencyEdgeType = "alternative"
	DepSequence    DependencyEdgeType = "sequence"
)

// TypeWeight returns the base confidence weight for an edge type.
func TypeWeight(t DependencyEdgeType) float64 {
	switch t {
	case DepDependency:
		return 1.0
	case DepContains:
		return 0.8
	case DepProvides:
		return 0.7
	case DepAlternative:
		return 0.6
	case DepSequence:
		return 0.5
	default:
		return 0
	}
}

// SourceModifier returns the confidence multiplier for an edge source.
func SourceModifier(s EdgeSource) float64 {
	switch s {
	case SourceObserved:
		return 1.0
	case SourceInferred:
		return 0.7
	case SourceTemplate:
		return 0.5
	default:
		return 0
	}
}

// ObservedThreshold is the observation count at which an inferred edge is
// promoted to observed.
const ObservedThreshold = 3

// CapabilityDependency is a typed, evidence-weighted edge between two
// capabilities.
type CapabilityDependency struct {
	FromCapabilityID string             `json:"fromCapabilityId"`
	ToCapabilityID   string             `json:"toCapabilityId"`
	EdgeType         DependencyEdgeType `json:"edgeType"`
	EdgeSource       EdgeSource         `json:"edgeSource"`
	ObservedCount    int                `json:"observedCount"`
	ConfidenceScore  float64            `json:"confidenceScore"`
	CreatedAt        time.Time          `json:"createdAt"`
	LastObserved     time.Time          `json:"lastObserved"`
}

// RecomputeConfidence sets ConfidenceScore = typeWeight * sourceModifier,
// clamped to [0,1].
func (d *CapabilityDependency) RecomputeConfidence() {
	v := TypeWeight(d.EdgeType) * SourceModifier(d.EdgeSource)
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	d.ConfidenceScore = v
}

// MaybePromote promotes edgeSource inferred -> observed once ObservedCount
// reaches ObservedThreshold, monotonically (never demoted). Returns true if
// a promotion happened this call.
func (d *CapabilityDependency) MaybePromote() bool {
	if d.EdgeSource == SourceInferred && d.ObservedCount >= ObservedThreshold {
		d.EdgeSource = SourceObserved
		d.RecomputeConfidence()
		return true
	}
	return false
}
