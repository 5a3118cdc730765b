package analyzer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// capRefPrefix is the stable marker recognized both here (skip
// already-transformed references) and by the Code Transformer when it
// rewrites a resolved capability call into mcp["$cap:<uuid>"](args).
const capRefPrefix = "$cap:"

func init() {
	register("call_expression", handleCallExpression)
	register("binary_expression", handleBinaryExpression)
}

// handleCallExpression is the entry point for every call site: Promise.all
// parallel blocks, mcp.<ns>.<action> real tool calls, already-transformed
// $cap: capability invocations, pure pseudo-tool method calls, and method
// chains. Unrecognized calls fall through to default recursion so nested
// task calls inside their arguments are still discovered.
func handleCallExpression(ctx *analysisCtx, n *sitter.Node) handlerResult {
	span := ctx.span(n)
	if ctx.processedSpans[span] {
		return handlerResult{handled: true}
	}

	fn := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")
	if fn == nil {
		return handlerResult{handled: false}
	}

	if isPromiseAllCall(ctx, fn) {
		return ctx.handleParallelBlock(n, argsNode)
	}

	switch fn.Type() {
	case "subscript_expression":
		if capID, ok := capabilityRefID(ctx, fn); ok {
			ctx.processedSpans[span] = true
			id := ctx.addNode(capmodel.Node{Kind: capmodel.NodeCapability, CapabilityID: capID, Code: ctx.text(n)}).ID
			ctx.visitArgsForNestedCalls(argsNode)
			return handlerResult{handled: true, nodeID: id}
		}
	case "member_expression":
		object := fn.ChildByFieldName("object")
		property := fn.ChildByFieldName("property")
		methodName := ctx.text(property)

		if object != nil && object.Type() == "call_expression" {
			nodeID := ctx.handleChainLink(n, object, methodName, argsNode)
			return handlerResult{handled: true, nodeID: nodeID}
		}

		if toolID, ok := mcpToolID(ctx, fn); ok {
			ctx.processedSpans[span] = true
			id := ctx.emitTaskNode(toolID, ctx.text(n), argsNode, false)
			return handlerResult{handled: true, nodeID: id}
		}

		receiverText := ctx.text(object)
		if toolID, ok := resolvePseudoTool(receiverText, methodName); ok {
			ctx.processedSpans[span] = true
			id := ctx.emitPureTaskNode(toolID, n, argsNode)
			return handlerResult{handled: true, nodeID: id}
		}
	}

	return handlerResult{handled: false}
}

// handleChainLink processes one link of a method chain (a.filter(x).map(y)):
// it recurses into the object subtree first (deeper links), then emits a
// task node for this link with Meta.ChainedFrom set to the parent link's
// node id. Only the outermost link in the chain keeps the full source span;
// inner links are trimmed to their method-only fragment.
func (c *analysisCtx) handleChainLink(call, object *sitter.Node, methodName string, argsNode *sitter.Node) string {
	objSpan := c.span(object)
	c.processedSpans[objSpan] = true

	parentID := ""
	if res := c.safeInvokeChain(object); res != "" {
		parentID = res
	}

	receiverText := c.text(object.ChildByFieldName("function"))
	toolID, ok := resolvePseudoTool(receiverText, methodName)
	if !ok {
		toolID = pseudoToolPrefix + methodName
	}

	id := c.emitPureTaskNode(toolID, call, argsNode)
	c.setChainedFrom(id, parentID)
	for i := range c.nodes {
		if parentID == "" || c.nodes[i].ID != parentID || c.nodes[i].Kind != capmodel.NodeTask {
			continue
		}
		// The link below this one is intermediate: trim it to its
		// method-only fragment ".method(args)". This link keeps its full
		// span unless an outer link trims it in turn.
		trimmed := c.text(object)
		if objFn := object.ChildByFieldName("function"); objFn != nil && objFn.Type() == "member_expression" {
			trimmed = "." + c.text(objFn.ChildByFieldName("property")) + c.text(object.ChildByFieldName("arguments"))
		}
		c.nodes[i].Code = trimmed
	}
	return id
}

// safeInvokeChain processes a nested call_expression that is itself a chain
// link (or the chain root), returning its node id.
func (c *analysisCtx) safeInvokeChain(n *sitter.Node) string {
	res := c.safeInvoke(registry["call_expression"], n)
	return res.nodeID
}

func (c *analysisCtx) setChainedFrom(nodeID, parentID string) {
	if parentID == "" {
		return
	}
	for i := range c.nodes {
		if c.nodes[i].ID == nodeID {
			c.nodes[i].Meta.ChainedFrom = parentID
			return
		}
	}
}

func (c *analysisCtx) setCode(nodeID, code string) {
	for i := range c.nodes {
		if c.nodes[i].ID == nodeID {
			c.nodes[i].Code = code
			return
		}
	}
}

// visitArgsForNestedCalls recurses into call arguments even when the call
// site itself was fully handled (e.g. a $cap: reference), so task calls
// passed as arguments are still discovered.
func (c *analysisCtx) visitArgsForNestedCalls(argsNode *sitter.Node) {
	if argsNode == nil {
		return
	}
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		c.visit(argsNode.NamedChild(i))
	}
}

// emitTaskNode creates and appends a Task node for a real (non-pure) tool
// call, extracting its arguments per spec.md 4.1.
func (c *analysisCtx) emitTaskNode(toolID, code string, argsNode *sitter.Node, pure bool) string {
	n := capmodel.Node{
		Kind:      capmodel.NodeTask,
		Tool:      toolID,
		Code:      code,
		Arguments: c.extractArgs(argsNode),
	}
	n.Meta.Pure = pure
	return c.addNode(n).ID
}

// emitPureTaskNode creates a pure pseudo-tool task and recurses into any
// callback argument under bumped nesting, per "tasks inside a callback body
// of an array operation are not independently executable".
func (c *analysisCtx) emitPureTaskNode(toolID string, call, argsNode *sitter.Node) string {
	code := c.text(call)
	id := c.emitTaskNode(toolID, code, nil, isPureSafe(code))
	for i := range c.nodes {
		if c.nodes[i].ID == id {
			c.nodes[i].Arguments = c.extractPositionalArgs(argsNode)
		}
	}
	c.withNesting(toolID, func() {
		c.visitArgsForNestedCalls(argsNode)
	})
	return id
}

// extractPositionalArgs captures non-object-literal arguments to a pure
// pseudo-tool (e.g. the callback in arr.filter(x => x > 0)) as a minimal
// ArgMap keyed positionally, so the code body is still reachable for
// nested-call recursion without misinterpreting it as a tool's named args.
func (c *analysisCtx) extractPositionalArgs(argsNode *sitter.Node) capmodel.ArgMap {
	if argsNode == nil || argsNode.NamedChildCount() == 0 {
		return nil
	}
	out := capmodel.ArgMap{}
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		arg := argsNode.NamedChild(i)
		out[itoa(i)] = capmodel.ArgValue{Kind: capmodel.ArgReference, Expression: c.text(arg)}
	}
	return out
}

// mcpToolID recognizes mcp.<ns>.<action>(...) and returns "<ns>.<action>".
func mcpToolID(c *analysisCtx, fn *sitter.Node) (string, bool) {
	object := fn.ChildByFieldName("object")
	property := fn.ChildByFieldName("property")
	if object == nil || property == nil || object.Type() != "member_expression" {
		return "", false
	}
	nsObject := object.ChildByFieldName("object")
	nsProperty := object.ChildByFieldName("property")
	if nsObject == nil || nsProperty == nil || nsObject.Type() != "identifier" || c.text(nsObject) != "mcp" {
		return "", false
	}
	return c.text(nsProperty) + "." + c.text(property), true
}

// capabilityRefID recognizes mcp["$cap:<uuid>"] and returns the uuid. An
// already-transformed reference (name starting with capRefPrefix) is
// skipped by the Code Transformer; here the analyzer simply classifies it
// as a Capability node rather than a Task.
func capabilityRefID(c *analysisCtx, fn *sitter.Node) (string, bool) {
	object := fn.ChildByFieldName("object")
	index := fn.ChildByFieldName("index")
	if object == nil || index == nil || object.Type() != "identifier" || c.text(object) != "mcp" {
		return "", false
	}
	if index.Type() != "string" {
		return "", false
	}
	key := unquoteJS(c.text(index))
	if !strings.HasPrefix(key, capRefPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, capRefPrefix), true
}

// handleBinaryExpression emits a pure pseudo-tool task for a recognized
// binary operator, per spec.md 4.1/6.
func handleBinaryExpression(ctx *analysisCtx, n *sitter.Node) handlerResult {
	op := ctx.text(n.ChildByFieldName("operator"))
	toolID, ok := resolveBinaryOperator(op)
	if !ok {
		return handlerResult{handled: false}
	}
	code := ctx.text(n)
	id := ctx.emitTaskNode(toolID, code, nil, isPureSafe(code))
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	c := ctx
	for i := range c.nodes {
		if c.nodes[i].ID == id {
			args := capmodel.ArgMap{}
			args["left"] = c.resolveArgValue("left", left)
			args["right"] = c.resolveArgValue("right", right)
			c.nodes[i].Arguments = args
		}
	}
	c.withNesting(toolID, func() {
		c.visit(left)
		c.visit(right)
	})
	return handlerResult{handled: true, nodeID: id}
}
