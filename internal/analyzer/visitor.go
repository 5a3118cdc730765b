package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// handlerResult is returned by a per-node-kind handler. handled=true
// suppresses the default recursive walk for that subtree.
type handlerResult struct {
	handled bool
	nodeID  string
}

// handler processes one AST node and optionally emits capmodel nodes/edges
// into ctx. Unknown node kinds fall through to the default recursive walk.
type handler func(ctx *analysisCtx, n *sitter.Node) handlerResult

// registry maps a tree-sitter node type to its handler. Populated in
// init() so handler files can each contribute their own entries.
var registry = map[string]handler{}

func register(kind string, h handler) {
	registry[kind] = h
}

// visit dispatches a single node to its registered handler, or recurses by
// default. Any panic inside a handler is recovered, logged, and the
// structure completes without that node — matching the "per-node
// exceptions never fail the whole analysis" contract.
func (c *analysisCtx) visit(n *sitter.Node) {
	if n == nil {
		return
	}
	kind := n.Type()
	h, ok := registry[kind]
	if !ok {
		c.visitChildren(n)
		return
	}

	res := c.safeInvoke(h, n)
	if !res.handled {
		c.visitChildren(n)
	}
}

func (c *analysisCtx) safeInvoke(h handler, n *sitter.Node) (res handlerResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("analyzer: handler panic, skipping subtree", "kind", n.Type(), "panic", r)
			res = handlerResult{}
		}
	}()
	return h(c, n)
}

// visitChildren walks every named child of n in order. Unnamed tokens
// (punctuation, keywords) carry no structure and are skipped.
func (c *analysisCtx) visitChildren(n *sitter.Node) {
	if n == nil {
		return
	}
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		c.visit(n.NamedChild(i))
	}
}
