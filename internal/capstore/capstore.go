// Package capstore implements the Capability Store & Semantic Hasher: the
// saveCapability upsert pipeline (spec.md 4.4), capability/dependency
// lookup facades, and capability-reference resolution for the Code
// Transformer.
//
// Grounded on the teacher's internal/graph.DAG (random-suffix id
// generation, a persistence-backed collaborator wrapping a *store.Store)
// and internal/store's UPSERT-by-natural-key conventions, generalized from
// tasks to capabilities.
package capstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/capcore/internal/analyzer"
	"github.com/antigravity-dev/capcore/internal/capmodel"
	"github.com/antigravity-dev/capcore/internal/embed"
	"github.com/antigravity-dev/capcore/internal/errs"
	"github.com/antigravity-dev/capcore/internal/eventbus"
	"github.com/antigravity-dev/capcore/internal/graphbuild"
	"github.com/antigravity-dev/capcore/internal/semhash"
	"github.com/antigravity-dev/capcore/internal/trace"
	"github.com/antigravity-dev/capcore/internal/transform"
)

// Persistence is the subset of *store.Store the Capability Store needs.
type Persistence interface {
	UpsertCapability(c *capmodel.Capability) error
	GetCapabilityByID(id string) (*capmodel.Capability, error)
	FindByCodeHash(codeHash string) (*capmodel.Capability, error)
	RenameCapability(oldID, newID string) error
	UpdateUsage(id string, success bool, durationMs float64) error
	SearchByContext(tools []string, limit int) ([]capmodel.Capability, error)
	SearchByIntent(query []float32, topK int) ([]capmodel.Capability, error)

	UpsertDependency(d *capmodel.CapabilityDependency) error
	GetDependencies(fromID string) ([]capmodel.CapabilityDependency, error)

	GetToolSchema(toolID string) (*capmodel.ToolSchema, bool, error)
	UpsertToolSchema(schema *capmodel.ToolSchema) error

	InsertExecutionTrace(t *capmodel.ExecutionTrace) error
	GetRecentTraces(capabilityID string, limit int) ([]capmodel.ExecutionTrace, error)
}

// SaveInput is the input to SaveCapability, mirroring spec.md 6's
// saveCapability(code, intent, durationMs, success, description?,
// toolsUsed?, staticStructure?, traceData?) function signature.
type SaveInput struct {
	Code            string
	Intent          string
	DurationMs      float64
	Success         bool
	Description     string
	ToolsUsed       []string
	StaticStructure *capmodel.StaticStructure // optional pre-computed structure; recomputed if nil
	Scope           transform.Scope

	// TraceData, if non-nil, is persisted as a sanitized ExecutionTrace
	// associated with the saved capability.
	TraceData *capmodel.ExecutionTrace
}

// SaveResult is what SaveCapability returns: the upserted capability and,
// if trace data was supplied, the trace actually persisted.
type SaveResult struct {
	Capability capmodel.Capability
	Trace      *capmodel.ExecutionTrace
}

// toolSchemaAdapter satisfies graphbuild.ToolSchemaLookup over a
// context-free Persistence.GetToolSchema.
type toolSchemaAdapter struct {
	store Persistence
}

func (a toolSchemaAdapter) ToolSchema(_ context.Context, toolID string) (*capmodel.ToolSchema, bool, error) {
	return a.store.GetToolSchema(toolID)
}

// Store is the Capability Store & Semantic Hasher collaborator.
type Store struct {
	persist     Persistence
	analyzer    *analyzer.Analyzer
	builder     *graphbuild.Builder
	transformer *transform.Transformer
	embedder    embed.Embedder
	events      eventbus.Publisher
	logger      *slog.Logger
}

// New wires a Store together. embedder/events/logger may be nil, falling
// back to a Noop embedder, a Noop publisher, and slog.Default respectively.
func New(persist Persistence, embedder embed.Embedder, events eventbus.Publisher, logger *slog.Logger) *Store {
	if embedder == nil {
		embedder = embed.Noop{}
	}
	if events == nil {
		events = eventbus.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	az := analyzer.New(logger)
	s := &Store{
		persist:  persist,
		analyzer: az,
		embedder: embedder,
		events:   events,
		logger:   logger,
	}
	s.builder = graphbuild.New(toolSchemaAdapter{store: persist}, logger)
	s.transformer = transform.New(s, logger)
	return s
}

// ResolveReference implements transform.CapabilityResolver: it resolves an
// mcp.<namespace>.<action> reference to a stored capability id. Namespace
// resolution ignores org/project scoping today (a single shared registry),
// matching the teacher's single-tenant internal/graph.DAG; scope is
// threaded through the signature so a future multi-tenant registry can
// use it without an interface change.
func (s *Store) ResolveReference(ctx context.Context, org, project, namespace, action string) (string, bool, error) {
	candidateID := namespace + "." + action
	cap, err := s.persist.GetCapabilityByID(candidateID)
	if err != nil {
		return "", false, fmt.Errorf("capstore: resolve reference: %w", err)
	}
	if cap == nil {
		return "", false, nil
	}

	if schema, found, _ := s.persist.GetToolSchema(candidateID); found && schema != nil {
		s.logger.Warn("capability reference is ambiguous with a registered tool schema", "namespace", namespace, "action", action)
		s.events.Publish(ctx, eventbus.EventCapabilityReferenceAmbiguous, map[string]any{
			"namespace": namespace,
			"action":    action,
		})
	}

	return cap.ID, true, nil
}

// SaveCapability runs the eleven-step upsert pipeline from spec.md 4.4.
func (s *Store) SaveCapability(ctx context.Context, in SaveInput) (*SaveResult, error) {
	// Step 1: transform capability references against the caller's scope.
	transformed, _, err := s.transformer.RewriteCapabilityReferences(ctx, in.Code, in.Scope)
	if err != nil {
		return nil, fmt.Errorf("capstore: rewrite capability references: %w", err)
	}

	structure := in.StaticStructure
	if structure == nil {
		structure = s.analyzer.Analyze(transformed)
	}

	// Step 2: literal parameterization, if the analyzer produced bindings.
	var paramSchema map[string]any
	if len(structure.LiteralBindings) > 0 {
		paramSource, schema, err := s.transformer.ParameterizeLiterals(transformed, structure.LiteralBindings)
		if err != nil {
			s.logger.Warn("capstore: literal parameterization failed, keeping transformed source", "error", err)
		} else {
			transformed = paramSource
			paramSchema = schema
		}
	}

	// Step 3: rebuild the static structure from the transformed code so
	// node ids/positions line up with what actually gets hashed and stored.
	structure = s.analyzer.Analyze(transformed)

	// Step 4: normalize variable names using the rebuilt bindings.
	normalized := transform.NormalizeVariableNames(transformed, structure.VariableBindings)

	edges, err := s.builder.BuildEdges(ctx, structure)
	if err != nil {
		return nil, fmt.Errorf("capstore: build edges: %w", err)
	}
	structure.Edges = edges

	// Step 5: compute the semantic hash.
	codeHash := semhash.Hash(structure, normalized)

	// Step 6: compute the intent embedding.
	embedding, err := s.embedder.Embed(ctx, in.Intent)
	if err != nil {
		return nil, fmt.Errorf("capstore: %w: %v", errs.ErrEmbedding, err)
	}

	// Step 7: UPSERT by codeHash, folding in incremental usage stats.
	existing, err := s.persist.FindByCodeHash(codeHash)
	if err != nil {
		return nil, fmt.Errorf("capstore: %w: %v", errs.ErrPersistence, err)
	}

	var cap capmodel.Capability
	isNew := existing == nil
	if existing != nil {
		cap = *existing
	} else {
		id, err := generateCapabilityID()
		if err != nil {
			return nil, fmt.Errorf("capstore: generate capability id: %w", err)
		}
		cap = capmodel.Capability{
			ID:        id,
			CreatedAt: time.Now().UTC(),
		}
	}

	cap.CodeSnippet = normalized
	cap.CodeHash = codeHash
	cap.StaticStructure = *structure
	if len(embedding) > 0 {
		cap.IntentEmbedding = embedding
	}
	if paramSchema != nil {
		cap.ParametersSchema = mergeSchemas(cap.ParametersSchema, paramSchema)
	}
	if in.Description != "" {
		cap.Description = in.Description
	}
	if len(in.ToolsUsed) > 0 {
		cap.ToolsUsed = mergeTools(cap.ToolsUsed, in.ToolsUsed)
	}
	cap.RiskCategory = classifyRisk(cap.ToolsUsed)

	cap.ApplyObservation(in.Success, in.DurationMs)

	// Step 8: insert `contains` dependency edges for resolved task tool ids
	// that are themselves stored capabilities. Event payloads are collected
	// here but not published until the capability write below succeeds.
	childLevels := []int{0}
	var depEvents []map[string]any
	for _, n := range structure.Nodes {
		if n.Kind != capmodel.NodeTask || n.Tool == "" {
			continue
		}
		child, err := s.persist.GetCapabilityByID(n.Tool)
		if err != nil || child == nil {
			continue
		}
		dep := &capmodel.CapabilityDependency{
			FromCapabilityID: cap.ID,
			ToCapabilityID:   child.ID,
			EdgeType:         capmodel.DepContains,
			EdgeSource:       capmodel.SourceTemplate,
			ObservedCount:    1,
			CreatedAt:        time.Now().UTC(),
			LastObserved:     time.Now().UTC(),
		}
		dep.RecomputeConfidence()
		if err := s.persist.UpsertDependency(dep); err != nil {
			s.logger.Warn("capstore: failed to insert contains edge", "from", cap.ID, "to", child.ID, "error", err)
			continue
		}
		depEvents = append(depEvents, map[string]any{
			"from": cap.ID, "to": child.ID, "edgeType": string(capmodel.DepContains),
		})
		childLevels = append(childLevels, child.HierarchyLevel)
	}

	// Step 9: hierarchyLevel = max(childLevels) + 1.
	maxChild := 0
	for _, lvl := range childLevels {
		if lvl > maxChild {
			maxChild = lvl
		}
	}
	cap.HierarchyLevel = maxChild + 1

	if err := s.persist.UpsertCapability(&cap); err != nil {
		return nil, fmt.Errorf("capstore: %w: %v", errs.ErrPersistence, err)
	}

	result := &SaveResult{Capability: cap}

	// Step 10: delegate trace data to the trace store, if provided. The
	// trace-saved event is published last, after Step 11's events below.
	var traceEvent map[string]any
	if in.TraceData != nil {
		t := *in.TraceData
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.CapabilityID = cap.ID
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		sanitized := trace.Sanitize(t)
		if err := s.persist.InsertExecutionTrace(&sanitized); err != nil {
			s.logger.Warn("capstore: failed to persist execution trace", "error", err)
		} else {
			result.Trace = &sanitized
			traceEvent = map[string]any{"traceId": sanitized.ID, "capabilityId": cap.ID}
		}
	}

	// Step 11: emit events, in order: learned, zone, dependency.created (one
	// per new contains edge), trace.saved.
	s.events.Publish(ctx, eventbus.EventCapabilityLearned, map[string]any{
		"capabilityId": cap.ID, "codeHash": cap.CodeHash, "isNew": isNew,
	})
	if isNew {
		s.events.Publish(ctx, eventbus.EventCapabilityZoneCreated, map[string]any{"capabilityId": cap.ID})
	} else {
		s.events.Publish(ctx, eventbus.EventCapabilityZoneUpdated, map[string]any{"capabilityId": cap.ID})
	}
	for _, payload := range depEvents {
		s.events.Publish(ctx, eventbus.EventCapabilityDependencyCreated, payload)
	}
	if traceEvent != nil {
		s.events.Publish(ctx, eventbus.EventExecutionTraceSaved, traceEvent)
	}

	return result, nil
}

// FindByID is a thin facade over the persistence layer's id lookup
// (following rename aliases).
func (s *Store) FindByID(id string) (*capmodel.Capability, error) {
	return s.persist.GetCapabilityByID(id)
}

// SearchByIntent is a thin facade over the persistence layer's cosine
// similarity search.
func (s *Store) SearchByIntent(embedding []float32, topK int) ([]capmodel.Capability, error) {
	return s.persist.SearchByIntent(embedding, topK)
}

// SearchByContext is a thin facade over the persistence layer's
// tool-overlap search.
func (s *Store) SearchByContext(tools []string, limit int) ([]capmodel.Capability, error) {
	return s.persist.SearchByContext(tools, limit)
}

// UpdateUsage records an observed outcome against a previously saved
// capability without re-running the full save pipeline.
func (s *Store) UpdateUsage(id string, success bool, durationMs float64) error {
	return s.persist.UpdateUsage(id, success, durationMs)
}

// TransitiveReliability satisfies matcher.ReliabilitySource by delegating
// to the capability's own stored successRate; the full transitive
// computation lives in internal/depgraph.Graph, which wraps the same
// Persistence and should be preferred when a dependency graph is wired in.
func (s *Store) TransitiveReliability(capID string) (float64, error) {
	cap, err := s.persist.GetCapabilityByID(capID)
	if err != nil {
		return 0, err
	}
	if cap == nil {
		return 1.0, nil
	}
	return cap.SuccessRate, nil
}

func generateCapabilityID() (string, error) {
	const maxSuffix = int64(0x10000000000) // 16^10
	n, err := rand.Int(rand.Reader, big.NewInt(maxSuffix))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("cap-%010x", n), nil
}

func mergeSchemas(existing, incoming map[string]any) map[string]any {
	if existing == nil {
		return incoming
	}
	out := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	// literal-derived properties take precedence over the previously
	// stored schema.
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

func mergeTools(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range incoming {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func classifyRisk(tools []string) capmodel.RiskCategory {
	risk := capmodel.RiskSafe
	for _, t := range tools {
		lower := strings.ToLower(t)
		switch {
		case strings.Contains(lower, "delete") || strings.Contains(lower, "exec") || strings.Contains(lower, "payment"):
			return capmodel.RiskDangerous
		case strings.Contains(lower, "write") || strings.Contains(lower, "update") || strings.Contains(lower, "send"):
			risk = capmodel.RiskModerate
		}
	}
	return risk
}
