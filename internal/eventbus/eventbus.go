// Package eventbus declares the fire-and-forget event sink the Capability
// Learning Core publishes lifecycle events to: capability saves, matcher
// decisions, dependency promotions. Grounded on the teacher's health-event
// recording in internal/store.RecordHealthEvent — a best-effort side
// channel, never on the critical path of a save or match.
package eventbus

import "context"

// Event names published across the pipeline, per spec.md 6.
const (
	EventCapabilityLearned           = "capability.learned"
	EventCapabilityZoneCreated       = "capability.zone.created"
	EventCapabilityZoneUpdated       = "capability.zone.updated"
	EventCapabilityDependencyCreated = "capability.dependency.created"
	EventCapabilityDependencyRemoved = "capability.dependency.removed"
	EventCapabilityMatched           = "capability.matched"
	EventAlgorithmScored             = "algorithm.scored"
	EventExecutionTraceSaved         = "execution.trace.saved"
	EventCapabilityPermissionUpdated = "capability.permission.updated"
	EventCapabilityReferenceAmbiguous = "capability.reference.ambiguous"
)

// Publisher is a fire-and-forget event sink. Implementations must not block
// the caller meaningfully and must not return an error that aborts the
// save/match pipeline — failures are the publisher's own problem to log.
type Publisher interface {
	Publish(ctx context.Context, event string, fields map[string]any)
}

// Noop discards every event, used when no event sink is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, map[string]any) {}
