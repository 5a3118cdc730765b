package analyzer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// paramRoots are the recognized roots of a Parameter member expression:
// args.x, params.x, input.x.
var paramRoots = map[string]bool{"args": true, "params": true, "input": true}

// extractArgs builds an ArgMap from a call's first argument, per spec.md
// 4.1 "Argument extraction". Non-object-literal first arguments yield a nil
// map (the caller records no structured arguments).
func (c *analysisCtx) extractArgs(argsNode *sitter.Node) capmodel.ArgMap {
	if argsNode == nil || argsNode.NamedChildCount() == 0 {
		return nil
	}
	first := argsNode.NamedChild(0)
	if first.Type() != "object" {
		return nil
	}

	out := capmodel.ArgMap{}
	for i := 0; i < int(first.NamedChildCount()); i++ {
		pair := first.NamedChild(i)
		switch pair.Type() {
		case "pair":
			key := stripQuotes(c.text(pair.ChildByFieldName("key")))
			val := pair.ChildByFieldName("value")
			out[key] = c.resolveArgValue(key, val)
		case "spread_element":
			c.logger.Debug("analyzer: spread argument cannot be statically resolved")
		}
	}
	return out
}

func (c *analysisCtx) resolveArgValue(propName string, val *sitter.Node) capmodel.ArgValue {
	if val == nil {
		return capmodel.ArgValue{Kind: capmodel.ArgLiteral, Literal: nil}
	}

	switch val.Type() {
	case "template_string":
		if !hasTemplateSubstitution(val) {
			s := stripTemplateQuotes(c.text(val))
			c.bindLiteral(propName, s)
			return capmodel.ArgValue{Kind: capmodel.ArgLiteral, Literal: s}
		}
		return capmodel.ArgValue{Kind: capmodel.ArgReference, Expression: c.text(val)}

	case "member_expression":
		root, rest := splitMemberRoot(c, val)
		if paramRoots[root] {
			return capmodel.ArgValue{Kind: capmodel.ArgParameter, ParamName: rest}
		}
		if nodeID, ok := c.resolveVarToNode(root); ok {
			expr := nodeID
			if rest != "" {
				expr += "." + rest
			}
			return capmodel.ArgValue{Kind: capmodel.ArgReference, Expression: expr}
		}
		return capmodel.ArgValue{Kind: capmodel.ArgReference, Expression: c.text(val)}

	case "identifier":
		name := c.text(val)
		if nodeID, ok := c.resolveVarToNode(name); ok {
			return capmodel.ArgValue{Kind: capmodel.ArgReference, Expression: nodeID}
		}
		return capmodel.ArgValue{Kind: capmodel.ArgReference, Expression: name}

	default:
		if v, ok := c.evalLiteral(val); ok {
			c.bindLiteral(propName, v)
			return capmodel.ArgValue{Kind: capmodel.ArgLiteral, Literal: v}
		}
		// Not statically resolvable (e.g. a call expression result) — keep
		// the raw expression text as a best-effort reference.
		return capmodel.ArgValue{Kind: capmodel.ArgReference, Expression: c.text(val)}
	}
}

// splitMemberRoot returns the leading identifier of a member expression and
// the remaining dotted path, e.g. "file.content.length" -> ("file",
// "content.length").
func splitMemberRoot(c *analysisCtx, n *sitter.Node) (root, rest string) {
	full := c.text(n)
	idx := strings.IndexByte(full, '.')
	if idx < 0 {
		return full, ""
	}
	return full[:idx], full[idx+1:]
}

func hasTemplateSubstitution(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if n.NamedChild(i).Type() == "template_substitution" {
			return true
		}
	}
	return false
}

func stripTemplateQuotes(s string) string {
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		return s[1 : len(s)-1]
	}
	return s
}
