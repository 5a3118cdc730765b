package core

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/antigravity-dev/capcore/internal/capstore"
)

// LearnActivities holds the Core dependency a Temporal activity method
// needs. Kept separate from Core itself because activity methods must be
// registered by value/pointer receiver on a plain struct, not on a type
// that also exposes non-activity methods workflow code might call
// directly — mirrors the teacher's internal/temporal.Activities split from
// its DAG/store fields.
type LearnActivities struct {
	Core *Core
}

// SaveCapabilityActivity runs SaveCapability as a Temporal activity so a
// workflow recording an agent's executed plan can learn from it durably,
// with Temporal's own retry policy covering embedding/store hiccups
// instead of ad hoc retry loops in caller code.
func (a *LearnActivities) SaveCapabilityActivity(ctx context.Context, in capstore.SaveInput) (*capstore.SaveResult, error) {
	return a.Core.SaveCapability(ctx, in)
}

// LearnWorkflow wraps SaveCapabilityActivity in a durable workflow: a
// caller that wants "this capability is saved, or I am told clearly why
// not, even across a worker crash" uses this instead of calling
// Core.SaveCapability directly. It changes nothing about save semantics;
// it only adds Temporal's retry/visibility guarantees on top.
func LearnWorkflow(ctx workflow.Context, in capstore.SaveInput) (*capstore.SaveResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
		},
	}
	actCtx := workflow.WithActivityOptions(ctx, ao)

	var la *LearnActivities
	var result capstore.SaveResult
	if err := workflow.ExecuteActivity(actCtx, la.SaveCapabilityActivity, in).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("core: learn workflow: %w", err)
	}
	return &result, nil
}
