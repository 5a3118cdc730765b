package capmodel

import "time"

// DecisionOutcome records which branch a Decision node took during a
// recorded execution, for inferDecisions-style reconciliation.
type DecisionOutcome struct {
	NodeID    string `json:"nodeId"`
	Outcome   string `json:"outcome"`
	Condition string `json:"condition"`
}

// ExecutionTrace is a runtime record bound to a capability. It must be
// sanitized before persistence: no oversized or secret-like values may
// escape the trace boundary (see internal/trace).
type ExecutionTrace struct {
	ID              string            `json:"id"`
	CapabilityID    string            `json:"capabilityId"`
	IntentText      string            `json:"intentText"`
	IntentEmbedding []float32         `json:"intentEmbedding,omitempty"`
	InitialContext  map[string]any    `json:"initialContext,omitempty"`
	ExecutedPath    []string          `json:"executedPath"`
	Decisions       []DecisionOutcome `json:"decisions,omitempty"`
	TaskResults     map[string]any    `json:"taskResults,omitempty"`
	Success         bool              `json:"success"`
	DurationMs      float64           `json:"durationMs"`
	Priority        float64           `json:"priority"`
	ParentTraceID   string            `json:"parentTraceId,omitempty"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// DefaultPriority is applied when a trace does not specify one.
const DefaultPriority = 0.5
