package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// capabilitySchema holds every table the Capability Learning Core needs.
const capabilitySchema = `
CREATE TABLE IF NOT EXISTS capabilities (
	id TEXT PRIMARY KEY,
	code_snippet TEXT NOT NULL,
	code_hash TEXT NOT NULL,
	intent_embedding BLOB,
	parameters_schema TEXT NOT NULL DEFAULT '{}',
	static_structure TEXT NOT NULL DEFAULT '{}',
	usage_count INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	success_rate REAL NOT NULL DEFAULT 0,
	avg_duration_ms REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	last_used DATETIME NOT NULL DEFAULT (datetime('now')),
	hierarchy_level INTEGER NOT NULL DEFAULT 0,
	risk_category TEXT NOT NULL DEFAULT 'safe',
	description TEXT NOT NULL DEFAULT '',
	tools_used TEXT NOT NULL DEFAULT '[]'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_capabilities_code_hash ON capabilities(code_hash);
CREATE INDEX IF NOT EXISTS idx_capabilities_risk ON capabilities(risk_category);

CREATE TABLE IF NOT EXISTS capability_aliases (
	old_id TEXT PRIMARY KEY,
	new_id TEXT NOT NULL,
	renamed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS capability_dependencies (
	from_capability_id TEXT NOT NULL,
	to_capability_id TEXT NOT NULL,
	edge_type TEXT NOT NULL,
	edge_source TEXT NOT NULL,
	observed_count INTEGER NOT NULL DEFAULT 0,
	confidence_score REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	last_observed DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (from_capability_id, to_capability_id, edge_type)
);

CREATE INDEX IF NOT EXISTS idx_capability_deps_from ON capability_dependencies(from_capability_id);
CREATE INDEX IF NOT EXISTS idx_capability_deps_to ON capability_dependencies(to_capability_id);

CREATE TABLE IF NOT EXISTS tool_schemas (
	tool_id TEXT PRIMARY KEY,
	input_schema TEXT NOT NULL DEFAULT '{}',
	output_schema TEXT NOT NULL DEFAULT '{}',
	cached_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS execution_traces (
	id TEXT PRIMARY KEY,
	capability_id TEXT NOT NULL,
	intent_text TEXT NOT NULL DEFAULT '',
	intent_embedding BLOB,
	initial_context TEXT NOT NULL DEFAULT '{}',
	executed_path TEXT NOT NULL DEFAULT '[]',
	decisions TEXT NOT NULL DEFAULT '[]',
	task_results TEXT NOT NULL DEFAULT '{}',
	success BOOLEAN NOT NULL DEFAULT 0,
	duration_ms REAL NOT NULL DEFAULT 0,
	priority REAL NOT NULL DEFAULT 0.5,
	parent_trace_id TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_execution_traces_capability ON execution_traces(capability_id, created_at);
`

// UpsertCapability inserts or fully replaces a capability row, keyed by id.
// This is the only write path into the capabilities table (spec.md 3: a
// capability is never mutated except through an upsert or RenameCapability).
func (s *Store) UpsertCapability(c *capmodel.Capability) error {
	paramsJSON, err := json.Marshal(c.ParametersSchema)
	if err != nil {
		return fmt.Errorf("store: marshal parameters schema: %w", err)
	}
	structJSON, err := json.Marshal(c.StaticStructure)
	if err != nil {
		return fmt.Errorf("store: marshal static structure: %w", err)
	}
	toolsJSON, err := json.Marshal(c.ToolsUsed)
	if err != nil {
		return fmt.Errorf("store: marshal tools used: %w", err)
	}
	embedding := encodeEmbedding(c.IntentEmbedding)

	_, err = s.db.Exec(`
		INSERT INTO capabilities (
			id, code_snippet, code_hash, intent_embedding, parameters_schema, static_structure,
			usage_count, success_count, success_rate, avg_duration_ms,
			created_at, last_used, hierarchy_level, risk_category, description, tools_used
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code_snippet=excluded.code_snippet,
			code_hash=excluded.code_hash,
			intent_embedding=excluded.intent_embedding,
			parameters_schema=excluded.parameters_schema,
			static_structure=excluded.static_structure,
			usage_count=excluded.usage_count,
			success_count=excluded.success_count,
			success_rate=excluded.success_rate,
			avg_duration_ms=excluded.avg_duration_ms,
			last_used=excluded.last_used,
			hierarchy_level=excluded.hierarchy_level,
			risk_category=excluded.risk_category,
			description=excluded.description,
			tools_used=excluded.tools_used`,
		c.ID, c.CodeSnippet, c.CodeHash, embedding, string(paramsJSON), string(structJSON),
		c.UsageCount, c.SuccessCount, c.SuccessRate, c.AvgDurationMs,
		formatTime(c.CreatedAt), formatTime(c.LastUsed), c.HierarchyLevel, string(c.RiskCategory), c.Description, string(toolsJSON),
	)
	if err != nil {
		return fmt.Errorf("store: upsert capability: %w", err)
	}
	return nil
}

const capabilityCols = `id, code_snippet, code_hash, intent_embedding, parameters_schema, static_structure,
	usage_count, success_count, success_rate, avg_duration_ms, created_at, last_used,
	hierarchy_level, risk_category, description, tools_used`

// GetCapabilityByID loads a capability, following one alias redirect if id
// was renamed away.
func (s *Store) GetCapabilityByID(id string) (*capmodel.Capability, error) {
	cap, err := s.scanOneCapability(`SELECT `+capabilityCols+` FROM capabilities WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if cap != nil {
		return cap, nil
	}
	var redirect string
	err = s.db.QueryRow(`SELECT new_id FROM capability_aliases WHERE old_id = ?`, id).Scan(&redirect)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: resolve capability alias: %w", err)
	}
	return s.scanOneCapability(`SELECT `+capabilityCols+` FROM capabilities WHERE id = ?`, redirect)
}

// FindByCodeHash looks up a capability by its exact content hash, the save
// pipeline's first dedup check.
func (s *Store) FindByCodeHash(codeHash string) (*capmodel.Capability, error) {
	return s.scanOneCapability(`SELECT `+capabilityCols+` FROM capabilities WHERE code_hash = ?`, codeHash)
}

// RenameCapability writes an alias row so future GetCapabilityByID(oldID)
// calls redirect to newID, without mutating the capability's own row.
func (s *Store) RenameCapability(oldID, newID string) error {
	if strings.TrimSpace(oldID) == "" || strings.TrimSpace(newID) == "" {
		return fmt.Errorf("store: rename capability: old and new id are required")
	}
	_, err := s.db.Exec(
		`INSERT INTO capability_aliases (old_id, new_id) VALUES (?, ?)
		 ON CONFLICT(old_id) DO UPDATE SET new_id=excluded.new_id, renamed_at=datetime('now')`,
		oldID, newID,
	)
	if err != nil {
		return fmt.Errorf("store: rename capability: %w", err)
	}
	return nil
}

// UpdateUsage folds one execution observation into a capability's running
// usage/success/duration averages.
func (s *Store) UpdateUsage(id string, success bool, durationMs float64) error {
	c, err := s.GetCapabilityByID(id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("store: update usage: capability %s not found", id)
	}
	c.ApplyObservation(success, durationMs)
	c.LastUsed = time.Now().UTC()
	return s.UpsertCapability(c)
}

// maxContextTools/maxContextToolNameLen bound SearchByContext's input per
// spec.md 4.4, so a runaway caller can't force a full-table scan keyed on
// thousands of junk tool names.
const (
	maxContextTools        = 100
	maxContextToolNameLen  = 256
	defaultContextOverlap   = 0.3
)

// SearchByContext ranks capabilities by
// overlap = |toolsUsed(candidate) ∩ tools| / |toolsUsed(candidate)|,
// keeping only candidates at or above defaultContextOverlap, ordered by
// overlap descending then usage count descending — the coarse pre-filter
// ahead of embedding similarity scoring in internal/matcher.
func (s *Store) SearchByContext(tools []string, limit int) ([]capmodel.Capability, error) {
	if len(tools) > maxContextTools {
		tools = tools[:maxContextTools]
	}
	want := map[string]bool{}
	for _, t := range tools {
		if len(t) > maxContextToolNameLen {
			t = t[:maxContextToolNameLen]
		}
		want[t] = true
	}

	all, err := s.scanCapabilities(`SELECT ` + capabilityCols + ` FROM capabilities`)
	if err != nil {
		return nil, err
	}
	if len(want) == 0 {
		return truncateCaps(all, limit), nil
	}

	type scored struct {
		cap     capmodel.Capability
		overlap float64
	}
	var matched []scored
	for _, c := range all {
		if len(c.ToolsUsed) == 0 {
			continue
		}
		hits := 0
		for _, t := range c.ToolsUsed {
			if want[t] {
				hits++
			}
		}
		overlap := float64(hits) / float64(len(c.ToolsUsed))
		if overlap >= defaultContextOverlap {
			matched = append(matched, scored{cap: c, overlap: overlap})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].overlap != matched[j].overlap {
			return matched[i].overlap > matched[j].overlap
		}
		return matched[i].cap.UsageCount > matched[j].cap.UsageCount
	})

	out := make([]capmodel.Capability, len(matched))
	for i, m := range matched {
		out[i] = m.cap
	}
	return truncateCaps(out, limit), nil
}

// ListCapabilities returns every stored capability, used by the periodic
// hierarchy-level reliability sweep.
func (s *Store) ListCapabilities() ([]capmodel.Capability, error) {
	return s.scanCapabilities(`SELECT ` + capabilityCols + ` FROM capabilities`)
}

// SearchByIntent scores every stored capability's intent embedding against
// query by cosine similarity and returns the top-K. modernc.org/sqlite has
// no vector index extension, so this brute-forces in Go the way a small
// corpus (thousands, not millions, of capabilities) is expected to run; the
// Matcher is the caller responsible for any further threshold filtering.
func (s *Store) SearchByIntent(query []float32, topK int) ([]capmodel.Capability, error) {
	all, err := s.scanCapabilities(`SELECT ` + capabilityCols + ` FROM capabilities`)
	if err != nil {
		return nil, err
	}
	type scored struct {
		cap   capmodel.Capability
		score float64
	}
	var out []scored
	for _, c := range all {
		if len(c.IntentEmbedding) == 0 {
			continue
		}
		out = append(out, scored{cap: c, score: cosineSimilarity(query, c.IntentEmbedding)})
	}
	sortScoredDesc(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	result := make([]capmodel.Capability, len(out))
	for i, s := range out {
		result[i] = s.cap
	}
	return result, nil
}

func sortScoredDesc(s []struct {
	cap   capmodel.Capability
	score float64
}) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].score < s[j].score; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func truncateCaps(caps []capmodel.Capability, limit int) []capmodel.Capability {
	if limit > 0 && len(caps) > limit {
		return caps[:limit]
	}
	return caps
}

func (s *Store) scanOneCapability(query string, args ...any) (*capmodel.Capability, error) {
	caps, err := s.scanCapabilities(query, args...)
	if err != nil {
		return nil, err
	}
	if len(caps) == 0 {
		return nil, nil
	}
	return &caps[0], nil
}

func (s *Store) scanCapabilities(query string, args ...any) ([]capmodel.Capability, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query capabilities: %w", err)
	}
	defer rows.Close()

	var out []capmodel.Capability
	for rows.Next() {
		var c capmodel.Capability
		var embedding []byte
		var paramsJSON, structJSON, toolsJSON, riskCategory string
		var createdAt, lastUsed string
		if err := rows.Scan(
			&c.ID, &c.CodeSnippet, &c.CodeHash, &embedding, &paramsJSON, &structJSON,
			&c.UsageCount, &c.SuccessCount, &c.SuccessRate, &c.AvgDurationMs,
			&createdAt, &lastUsed, &c.HierarchyLevel, &riskCategory, &c.Description, &toolsJSON,
		); err != nil {
			return nil, fmt.Errorf("store: scan capability: %w", err)
		}
		c.IntentEmbedding = decodeEmbedding(embedding)
		c.RiskCategory = capmodel.RiskCategory(riskCategory)
		if err := json.Unmarshal([]byte(paramsJSON), &c.ParametersSchema); err != nil {
			return nil, fmt.Errorf("store: unmarshal parameters schema: %w", err)
		}
		if err := json.Unmarshal([]byte(structJSON), &c.StaticStructure); err != nil {
			return nil, fmt.Errorf("store: unmarshal static structure: %w", err)
		}
		if err := json.Unmarshal([]byte(toolsJSON), &c.ToolsUsed); err != nil {
			return nil, fmt.Errorf("store: unmarshal tools used: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		c.LastUsed = parseTime(lastUsed)
		out = append(out, c)
	}
	return out, rows.Err()
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[4*i] = byte(bits)
		buf[4*i+1] = byte(bits >> 8)
		buf[4*i+2] = byte(bits >> 16)
		buf[4*i+3] = byte(bits >> 24)
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		bits := uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.DateTime)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.DateTime, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// UpsertDependency records or refreshes a typed dependency edge between two
// capabilities, per spec.md 4.5.
func (s *Store) UpsertDependency(d *capmodel.CapabilityDependency) error {
	_, err := s.db.Exec(`
		INSERT INTO capability_dependencies (
			from_capability_id, to_capability_id, edge_type, edge_source,
			observed_count, confidence_score, created_at, last_observed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_capability_id, to_capability_id, edge_type) DO UPDATE SET
			edge_source=excluded.edge_source,
			observed_count=excluded.observed_count,
			confidence_score=excluded.confidence_score,
			last_observed=excluded.last_observed`,
		d.FromCapabilityID, d.ToCapabilityID, string(d.EdgeType), string(d.EdgeSource),
		d.ObservedCount, d.ConfidenceScore, formatTime(d.CreatedAt), formatTime(d.LastObserved),
	)
	if err != nil {
		return fmt.Errorf("store: upsert dependency: %w", err)
	}
	return nil
}

// RemoveDependency deletes one typed edge between two capabilities.
func (s *Store) RemoveDependency(fromID, toID string, edgeType capmodel.DependencyEdgeType) error {
	_, err := s.db.Exec(
		`DELETE FROM capability_dependencies WHERE from_capability_id = ? AND to_capability_id = ? AND edge_type = ?`,
		fromID, toID, string(edgeType),
	)
	if err != nil {
		return fmt.Errorf("store: remove dependency: %w", err)
	}
	return nil
}

const dependencyCols = `from_capability_id, to_capability_id, edge_type, edge_source, observed_count, confidence_score, created_at, last_observed`

// GetDependencies returns the typed edges originating at fromID.
func (s *Store) GetDependencies(fromID string) ([]capmodel.CapabilityDependency, error) {
	return s.scanDependencies(`SELECT `+dependencyCols+` FROM capability_dependencies WHERE from_capability_id = ?`, fromID)
}

// GetDependenciesTo returns the typed edges terminating at toID.
func (s *Store) GetDependenciesTo(toID string) ([]capmodel.CapabilityDependency, error) {
	return s.scanDependencies(`SELECT `+dependencyCols+` FROM capability_dependencies WHERE to_capability_id = ?`, toID)
}

// GetAllDependencies returns every dependency edge, for depgraph's in-memory
// reachability/cycle analysis.
func (s *Store) GetAllDependencies() ([]capmodel.CapabilityDependency, error) {
	return s.scanDependencies(`SELECT ` + dependencyCols + ` FROM capability_dependencies`)
}

// GetOutgoingDependencyIDs returns only the to-ids of fromID's dependencies,
// a cheap projection used by transitive reliability walks.
func (s *Store) GetOutgoingDependencyIDs(fromID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT to_capability_id FROM capability_dependencies WHERE from_capability_id = ?`, fromID)
	if err != nil {
		return nil, fmt.Errorf("store: query outgoing dependency ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan outgoing dependency id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) scanDependencies(query string, args ...any) ([]capmodel.CapabilityDependency, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query dependencies: %w", err)
	}
	defer rows.Close()

	var out []capmodel.CapabilityDependency
	for rows.Next() {
		var d capmodel.CapabilityDependency
		var edgeType, edgeSource, createdAt, lastObserved string
		if err := rows.Scan(&d.FromCapabilityID, &d.ToCapabilityID, &edgeType, &edgeSource, &d.ObservedCount, &d.ConfidenceScore, &createdAt, &lastObserved); err != nil {
			return nil, fmt.Errorf("store: scan dependency: %w", err)
		}
		d.EdgeType = capmodel.DependencyEdgeType(edgeType)
		d.EdgeSource = capmodel.EdgeSource(edgeSource)
		d.CreatedAt = parseTime(createdAt)
		d.LastObserved = parseTime(lastObserved)
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertToolSchema caches a tool's input/output schema for provides-edge
// inference and literal-parameterization type hints.
func (s *Store) UpsertToolSchema(schema *capmodel.ToolSchema) error {
	inputJSON, err := json.Marshal(schema.InputSchema)
	if err != nil {
		return fmt.Errorf("store: marshal tool input schema: %w", err)
	}
	outputJSON, err := json.Marshal(schema.OutputSchema)
	if err != nil {
		return fmt.Errorf("store: marshal tool output schema: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO tool_schemas (tool_id, input_schema, output_schema, cached_at) VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(tool_id) DO UPDATE SET input_schema=excluded.input_schema, output_schema=excluded.output_schema, cached_at=datetime('now')`,
		schema.ToolID, string(inputJSON), string(outputJSON),
	)
	if err != nil {
		return fmt.Errorf("store: upsert tool schema: %w", err)
	}
	return nil
}

// GetToolSchema loads a cached tool schema, implementing
// internal/graphbuild.ToolSchemaLookup.
func (s *Store) GetToolSchema(toolID string) (*capmodel.ToolSchema, bool, error) {
	var inputJSON, outputJSON string
	err := s.db.QueryRow(`SELECT input_schema, output_schema FROM tool_schemas WHERE tool_id = ?`, toolID).Scan(&inputJSON, &outputJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get tool schema: %w", err)
	}
	schema := &capmodel.ToolSchema{ToolID: toolID}
	if err := json.Unmarshal([]byte(inputJSON), &schema.InputSchema); err != nil {
		return nil, false, fmt.Errorf("store: unmarshal tool input schema: %w", err)
	}
	if err := json.Unmarshal([]byte(outputJSON), &schema.OutputSchema); err != nil {
		return nil, false, fmt.Errorf("store: unmarshal tool output schema: %w", err)
	}
	return schema, true, nil
}

// InsertExecutionTrace appends one already-sanitized trace row; traces are
// append-only and never upserted.
func (s *Store) InsertExecutionTrace(t *capmodel.ExecutionTrace) error {
	contextJSON, err := json.Marshal(t.InitialContext)
	if err != nil {
		return fmt.Errorf("store: marshal trace initial context: %w", err)
	}
	pathJSON, err := json.Marshal(t.ExecutedPath)
	if err != nil {
		return fmt.Errorf("store: marshal trace executed path: %w", err)
	}
	decisionsJSON, err := json.Marshal(t.Decisions)
	if err != nil {
		return fmt.Errorf("store: marshal trace decisions: %w", err)
	}
	resultsJSON, err := json.Marshal(t.TaskResults)
	if err != nil {
		return fmt.Errorf("store: marshal trace task results: %w", err)
	}
	embedding := encodeEmbedding(t.IntentEmbedding)

	_, err = s.db.Exec(
		`INSERT INTO execution_traces (
			id, capability_id, intent_text, intent_embedding, initial_context, executed_path,
			decisions, task_results, success, duration_ms, priority, parent_trace_id, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CapabilityID, t.IntentText, embedding, string(contextJSON), string(pathJSON),
		string(decisionsJSON), string(resultsJSON), t.Success, t.DurationMs, t.Priority, t.ParentTraceID, t.ErrorMessage, formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert execution trace: %w", err)
	}
	return nil
}

// GetRecentTraces returns the most recent traces for a capability.
func (s *Store) GetRecentTraces(capabilityID string, limit int) ([]capmodel.ExecutionTrace, error) {
	rows, err := s.db.Query(
		`SELECT id, capability_id, intent_text, intent_embedding, initial_context, executed_path,
			decisions, task_results, success, duration_ms, priority, parent_trace_id, error_message, created_at
		 FROM execution_traces WHERE capability_id = ? ORDER BY created_at DESC LIMIT ?`,
		capabilityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query execution traces: %w", err)
	}
	defer rows.Close()

	var out []capmodel.ExecutionTrace
	for rows.Next() {
		var t capmodel.ExecutionTrace
		var embedding []byte
		var contextJSON, pathJSON, decisionsJSON, resultsJSON, createdAt string
		if err := rows.Scan(
			&t.ID, &t.CapabilityID, &t.IntentText, &embedding, &contextJSON, &pathJSON,
			&decisionsJSON, &resultsJSON, &t.Success, &t.DurationMs, &t.Priority, &t.ParentTraceID, &t.ErrorMessage, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan execution trace: %w", err)
		}
		t.IntentEmbedding = decodeEmbedding(embedding)
		t.CreatedAt = parseTime(createdAt)
		if err := json.Unmarshal([]byte(contextJSON), &t.InitialContext); err != nil {
			return nil, fmt.Errorf("store: unmarshal trace initial context: %w", err)
		}
		if err := json.Unmarshal([]byte(pathJSON), &t.ExecutedPath); err != nil {
			return nil, fmt.Errorf("store: unmarshal trace executed path: %w", err)
		}
		if err := json.Unmarshal([]byte(decisionsJSON), &t.Decisions); err != nil {
			return nil, fmt.Errorf("store: unmarshal trace decisions: %w", err)
		}
		if err := json.Unmarshal([]byte(resultsJSON), &t.TaskResults); err != nil {
			return nil, fmt.Errorf("store: unmarshal trace task results: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
