// Package core wires the Capability Learning Core's components together
// behind the two operations spec.md 6 exposes externally: saveCapability
// and the intent/context match lookup. Grounded on the teacher's
// internal/chief facade, which wires config, store, and collaborators
// behind a small set of top-level operations.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/antigravity-dev/capcore/internal/capmodel"
	"github.com/antigravity-dev/capcore/internal/capstore"
	"github.com/antigravity-dev/capcore/internal/depgraph"
	"github.com/antigravity-dev/capcore/internal/embed"
	"github.com/antigravity-dev/capcore/internal/eventbus"
	"github.com/antigravity-dev/capcore/internal/matcher"
	"github.com/antigravity-dev/capcore/internal/store"
	"github.com/antigravity-dev/capcore/internal/toolcfg"
	"github.com/antigravity-dev/capcore/internal/transform"
)

// Core is the top-level Capability Learning Core collaborator.
type Core struct {
	Store   *capstore.Store
	Graph   *depgraph.Graph
	Matcher *matcher.Matcher
	Sweep   *ReliabilitySweep
	Config  toolcfg.Manager
	logger  *slog.Logger
	db      *store.Store
}

// Open opens the sqlite-backed store at cfg.Storage.DSN and wires every
// collaborator around it.
func Open(cfg *toolcfg.Config, events eventbus.Publisher, embedder embed.Embedder, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = eventbus.Noop{}
	}

	db, err := store.Open(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("core: open store: %w", err)
	}

	capStore := capstore.New(db, embedder, events, logger)
	graph := depgraph.New(db, events, logger, cfg.Scoring.StaleAfter.Duration)
	m := matcher.New(db, graph, events, cfg.Scoring)
	sweep := NewReliabilitySweep(db, graph, logger)

	return &Core{
		Store:   capStore,
		Graph:   graph,
		Matcher: m,
		Sweep:   sweep,
		Config:  toolcfg.NewManager(cfg),
		logger:  logger,
		db:      db,
	}, nil
}

// Close releases the underlying database handle.
func (c *Core) Close() error {
	return c.db.Close()
}

// SaveCapability is the facade spec.md 6 calls saveCapability: it runs the
// full learn pipeline (transform, hash, embed, upsert, dependency wiring,
// trace persistence, event emission) and returns the learned capability.
func (c *Core) SaveCapability(ctx context.Context, in capstore.SaveInput) (*capstore.SaveResult, error) {
	return c.Store.SaveCapability(ctx, in)
}

// MatchIntent scores stored capabilities against a free-text intent, already
// embedded by the caller's embedding collaborator, and returns every scored
// candidate with its decision.
func (c *Core) MatchIntent(ctx context.Context, intentEmbedding []float32) ([]matcher.Candidate, error) {
	return c.Matcher.Match(ctx, intentEmbedding)
}

// MatchContext finds capabilities whose tool usage overlaps the given
// available-tools context, per spec.md 4.4's search-by-context contract.
func (c *Core) MatchContext(tools []string, limit int) ([]capmodel.Capability, error) {
	return c.Store.SearchByContext(tools, limit)
}

// Scope re-exports transform.Scope so callers of core don't need to import
// internal/transform directly just to build a SaveInput.
type Scope = transform.Scope
