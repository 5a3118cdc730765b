package graphbuild

import (
	"context"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// buildProvidesEdges implements spec.md 4.2 step 6: for every ordered pair
// of task nodes (p, c) with p.position < c.position, classify the coverage
// of c's required inputs by p's outputs via a property-name intersection.
// Tool-schema lookups are memoized for the duration of this call.
func (b *Builder) buildProvidesEdges(ctx context.Context, nodes []capmodel.Node) ([]capmodel.Edge, error) {
	cache := map[string]*capmodel.ToolSchema{}
	lookup := func(toolID string) (*capmodel.ToolSchema, error) {
		if s, ok := cache[toolID]; ok {
			return s, nil
		}
		s, found, err := b.schemas.ToolSchema(ctx, toolID)
		if err != nil {
			return nil, err
		}
		if !found {
			s = nil
		}
		cache[toolID] = s
		return s, nil
	}

	var tasks []capmodel.Node
	for _, n := range nodes {
		if n.Kind == capmodel.NodeTask && n.Tool != "" {
			tasks = append(tasks, n)
		}
	}

	var out []capmodel.Edge
	for i, p := range tasks {
		producerSchema, err := lookup(p.Tool)
		if err != nil {
			return nil, err
		}
		if producerSchema == nil {
			continue
		}
		outputs := producerSchema.OutputPropertyNames()
		if len(outputs) == 0 {
			continue
		}
		for j := i + 1; j < len(tasks); j++ {
			c := tasks[j]
			if p.Position >= c.Position {
				continue
			}
			consumerSchema, err := lookup(c.Tool)
			if err != nil {
				return nil, err
			}
			if consumerSchema == nil {
				continue
			}
			inputs := consumerSchema.InputPropertyNames()
			if len(inputs) == 0 {
				continue
			}
			coverage, ok := classifyCoverage(outputs, inputs, consumerSchema.RequiredInputs())
			if !ok {
				continue
			}
			out = append(out, capmodel.Edge{
				From:         p.ID,
				To:           c.ID,
				Type:         capmodel.EdgeProvides,
				CoverageKind: coverage,
			})
		}
	}
	return out, nil
}

// classifyCoverage implements the strict/partial/optional classification
// from spec.md 4.2: based on the intersection of producer outputs and
// consumer inputs, weighed against the consumer's required input set.
func classifyCoverage(outputs, inputs, required map[string]bool) (capmodel.Coverage, bool) {
	intersection := map[string]bool{}
	for name := range inputs {
		if outputs[name] {
			intersection[name] = true
		}
	}
	if len(intersection) == 0 {
		return "", false
	}

	if len(required) == 0 {
		return capmodel.CoverageOptional, true
	}

	coveredRequired := 0
	for name := range required {
		if intersection[name] {
			coveredRequired++
		}
	}
	switch {
	case coveredRequired == len(required):
		return capmodel.CoverageStrict, true
	case coveredRequired > 0:
		return capmodel.CoveragePartial, true
	default:
		return capmodel.CoverageOptional, true
	}
}
