package core

import (
	"context"
	"log/slog"

	"github.com/robfig/cron"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// sweepLister is the persistence surface the reliability sweep needs
// beyond what capstore.Persistence already exposes.
type sweepLister interface {
	ListCapabilities() ([]capmodel.Capability, error)
	UpsertCapability(c *capmodel.Capability) error
}

// ReliabilitySweep periodically recomputes every capability's
// hierarchyLevel from its current `contains` edges: a capability learned
// before one of its dependencies existed can be under-leveled until this
// sweep catches up. Grounded on the teacher's internal/scheduler tick loop,
// swapped for github.com/robfig/cron's Schedule parsing instead of a
// hand-rolled ticker.
type ReliabilitySweep struct {
	lister sweepLister
	graph  GraphAccessor
	logger *slog.Logger
	cron   *cron.Cron
}

// GraphAccessor is the minimal dependency-graph surface the sweep needs to
// find each capability's outgoing `contains` ids.
type GraphAccessor interface {
	GetOutgoingDependencyIDs(capID string, limit int, edgeType capmodel.DependencyEdgeType) ([]string, error)
}

// NewReliabilitySweep constructs a sweep. Call Start to begin running it on
// the given cron schedule (e.g. "@every 1h").
func NewReliabilitySweep(lister sweepLister, graph GraphAccessor, logger *slog.Logger) *ReliabilitySweep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReliabilitySweep{lister: lister, graph: graph, logger: logger, cron: cron.New()}
}

// Start schedules the sweep and begins running it in the background.
func (r *ReliabilitySweep) Start(schedule string) error {
	return r.cron.AddFunc(schedule, func() {
		if err := r.Run(context.Background()); err != nil {
			r.logger.Warn("reliability sweep failed", "error", err)
		}
	})
}

// StartAsync begins the cron scheduler's goroutine after Start has
// registered at least one schedule.
func (r *ReliabilitySweep) StartAsync() {
	r.cron.Start()
}

// Stop halts the cron scheduler.
func (r *ReliabilitySweep) Stop() {
	r.cron.Stop()
}

// Run performs one sweep pass synchronously.
func (r *ReliabilitySweep) Run(ctx context.Context) error {
	caps, err := r.lister.ListCapabilities()
	if err != nil {
		return err
	}

	levels := make(map[string]int, len(caps))
	for _, c := range caps {
		levels[c.ID] = c.HierarchyLevel
	}

	changed := 0
	for i := range caps {
		c := &caps[i]
		childIDs, err := r.graph.GetOutgoingDependencyIDs(c.ID, 0, capmodel.DepContains)
		if err != nil {
			r.logger.Warn("reliability sweep: failed to read dependencies", "capability", c.ID, "error", err)
			continue
		}
		maxChild := 0
		for _, id := range childIDs {
			if lvl := levels[id]; lvl > maxChild {
				maxChild = lvl
			}
		}
		newLevel := maxChild + 1
		if newLevel != c.HierarchyLevel {
			c.HierarchyLevel = newLevel
			if err := r.lister.UpsertCapability(c); err != nil {
				r.logger.Warn("reliability sweep: failed to persist recomputed level", "capability", c.ID, "error", err)
				continue
			}
			changed++
		}
	}

	if changed > 0 {
		r.logger.Info("reliability sweep recomputed hierarchy levels", "changed", changed, "total", len(caps))
	}
	return nil
}
