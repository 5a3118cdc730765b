package transform

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/antigravity-dev/capcore/internal/analyzer"
	"github.com/antigravity-dev/capcore/internal/errs"
)

// RewriteCapabilityReferences implements spec.md 4.3 "Capability reference
// rewrite": every mcp.<ns>.<action> call whose <ns>.<action> resolves
// against the registry for scope is replaced with mcp["$cap:<uuid>"],
// leaving the call's arguments untouched. Already-transformed references
// ($cap: subscripts) are structurally distinct (subscript_expression, not
// member_expression) and are never matched here.
func (t *Transformer) RewriteCapabilityReferences(ctx context.Context, source string, scope Scope) (string, int, error) {
	if t.resolver == nil {
		return source, 0, nil
	}

	tree, wrapped, baseOffset, err := analyzer.Parse(source)
	if err != nil {
		// ParseError policy: callers of saveCapability never see this as a
		// transform failure in isolation — the analyzer's own empty-structure
		// fallback already governs overall save behavior. Here we simply
		// leave the source untouched.
		t.logger.Warn("transform: parse failed during capability reference rewrite", "error", err)
		return source, 0, nil
	}
	root := tree.RootNode()

	var spans []span
	var walk func(n *sitter.Node) error
	walk = func(n *sitter.Node) error {
		if n == nil {
			return nil
		}
		if n.Type() == "call_expression" {
			fn := n.ChildByFieldName("function")
			if fn != nil && fn.Type() == "member_expression" {
				if ns, action, ok := mcpNamespaceAction(wrapped, fn); ok {
					capID, found, rerr := t.resolver.ResolveReference(ctx, scope.Org, scope.Project, ns, action)
					if rerr != nil {
						return &errs.TransformResolutionError{Namespace: ns, Action: action}
					}
					if found {
						start := rebase(int(fn.StartByte()), baseOffset)
						end := rebase(int(fn.EndByte()), baseOffset)
						spans = append(spans, span{start: start, end: end, replace: `mcp["$cap:` + capID + `"]`})
					}
				}
			}
		}
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			if err := walk(n.NamedChild(i)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return source, 0, err
	}

	return spliceSpans(source, spans), len(spans), nil
}

// rebase converts a wrapped-buffer byte offset back to the original
// source's coordinate space.
func rebase(pos int, baseOffset uint32) int {
	p := pos - int(baseOffset)
	if p < 0 {
		return 0
	}
	return p
}

// mcpNamespaceAction recognizes mcp.<ns>.<action> and returns its two
// segments.
func mcpNamespaceAction(src []byte, fn *sitter.Node) (ns, action string, ok bool) {
	object := fn.ChildByFieldName("object")
	property := fn.ChildByFieldName("property")
	if object == nil || property == nil || object.Type() != "member_expression" {
		return "", "", false
	}
	nsObject := object.ChildByFieldName("object")
	nsProperty := object.ChildByFieldName("property")
	if nsObject == nil || nsProperty == nil || nsObject.Type() != "identifier" {
		return "", "", false
	}
	if string(src[nsObject.StartByte():nsObject.EndByte()]) != "mcp" {
		return "", "", false
	}
	return string(src[nsProperty.StartByte():nsProperty.EndByte()]), string(src[property.StartByte():property.EndByte()]), true
}
