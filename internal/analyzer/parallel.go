package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// isPromiseAllCall recognizes Promise.all(...) and Promise.allSettled(...).
func isPromiseAllCall(c *analysisCtx, fn *sitter.Node) bool {
	if fn.Type() != "member_expression" {
		return false
	}
	object := fn.ChildByFieldName("object")
	property := fn.ChildByFieldName("property")
	if object == nil || property == nil || object.Type() != "identifier" || c.text(object) != "Promise" {
		return false
	}
	name := c.text(property)
	return name == "all" || name == "allSettled"
}

// handleParallelBlock implements spec.md 4.1 "Parallel blocks": a Fork node,
// per-branch recursion, then a matching Join node. Two source patterns are
// recognized for the argument: a literal array (one branch per element) and
// a `.map(fn)` call (unrolled to N identical branches when the mapped array
// is a literal of known length, otherwise a single pattern-template branch).
func (c *analysisCtx) handleParallelBlock(call, argsNode *sitter.Node) handlerResult {
	forkID := c.addNode(capmodel.Node{Kind: capmodel.NodeFork}).ID

	if argsNode != nil && argsNode.NamedChildCount() > 0 {
		arg := argsNode.NamedChild(0)
		c.withScope(forkID, func() {
			switch {
			case arg.Type() == "array":
				c.visitArrayBranches(arg)
			case arg.Type() == "call_expression" && isMapCall(c, arg):
				c.visitMapBranches(arg)
			default:
				// Unrecognized shape: best-effort single branch.
				c.visit(arg)
			}
		})
	}

	joinID := c.addNode(capmodel.Node{Kind: capmodel.NodeJoin}).ID
	return handlerResult{handled: true, nodeID: joinID}
}

func (c *analysisCtx) visitArrayBranches(array *sitter.Node) {
	for i := 0; i < int(array.NamedChildCount()); i++ {
		c.visit(array.NamedChild(i))
	}
}

// isMapCall recognizes `<expr>.map(fn)`.
func isMapCall(c *analysisCtx, n *sitter.Node) bool {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" {
		return false
	}
	return c.text(fn.ChildByFieldName("property")) == "map"
}

// visitMapBranches implements the open question resolution from spec.md 9:
// a literal mapped array of length N unrolls to N identical branches; a
// dynamic array yields one representative branch tagged patternTemplate,
// which downstream executors must treat as a loop rather than a fan-out.
func (c *analysisCtx) visitMapBranches(mapCall *sitter.Node) {
	fn := mapCall.ChildByFieldName("function")
	mappedArray := fn.ChildByFieldName("object")
	callbackArgs := mapCall.ChildByFieldName("arguments")
	if callbackArgs == nil || callbackArgs.NamedChildCount() == 0 {
		return
	}
	callback := callbackArgs.NamedChild(0)
	body := callbackBody(callback)
	if body == nil {
		return
	}

	if mappedArray != nil && mappedArray.Type() == "array" {
		n := int(mappedArray.NamedChildCount())
		for i := 0; i < n; i++ {
			c.visitCallbackBodyBranch(body, false)
		}
		return
	}
	c.visitCallbackBodyBranch(body, true)
}

// visitCallbackBodyBranch walks a callback body's statements as one fork
// branch, marking every node it produces as a pattern template when the
// source array length is unknown.
func (c *analysisCtx) visitCallbackBodyBranch(body *sitter.Node, patternTemplate bool) {
	before := len(c.nodes)
	if body.Type() == "statement_block" {
		c.visitChildren(body)
	} else {
		c.visit(body)
	}
	if patternTemplate {
		for i := before; i < len(c.nodes); i++ {
			c.nodes[i].Meta.PatternTemplate = true
		}
	}
}

// callbackBody returns the function body of an arrow function or function
// expression passed as a .map() callback.
func callbackBody(callback *sitter.Node) *sitter.Node {
	if callback == nil {
		return nil
	}
	switch callback.Type() {
	case "arrow_function", "function_expression":
		return callback.ChildByFieldName("body")
	}
	return nil
}
