package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

func init() {
	register("for_statement", handleForStatement)
	register("for_in_statement", handleForInStatement)
	register("while_statement", handleWhileStatement)
	register("do_statement", handleDoStatement)
}

// handleForStatement emits a Loop node for a classic for(;;) loop. The loop
// control variable declared in the initializer is shadowed so it is never
// captured as a removable literal binding, then the body is recursed under
// the loop's own scope — no back-edge is modeled, per spec.md 4.1 "Loops".
func handleForStatement(ctx *analysisCtx, n *sitter.Node) handlerResult {
	init := n.ChildByFieldName("initializer")
	cond := n.ChildByFieldName("condition")
	body := n.ChildByFieldName("body")

	shadowDeclaredNames(ctx, init)

	id := ctx.addNode(capmodel.Node{
		Kind:      capmodel.NodeLoop,
		LoopKind:  capmodel.LoopFor,
		Condition: ctx.text(cond),
		Code:      ctx.text(n),
	}).ID

	ctx.withScope(id, func() {
		ctx.visit(body)
	})
	return handlerResult{handled: true, nodeID: id}
}

// handleForInStatement covers both for...of and for...in, which tree-sitter
// models as the same grammar node distinguished only by the connecting
// keyword token.
func handleForInStatement(ctx *analysisCtx, n *sitter.Node) handlerResult {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	body := n.ChildByFieldName("body")

	shadowDeclaredNames(ctx, left)

	kind := capmodel.LoopForOf
	if forInOperator(ctx, n) == "in" {
		kind = capmodel.LoopForIn
	}

	id := ctx.addNode(capmodel.Node{
		Kind:      capmodel.NodeLoop,
		LoopKind:  kind,
		Condition: ctx.text(right),
		Code:      ctx.text(n),
	}).ID

	ctx.withScope(id, func() {
		ctx.visit(body)
	})
	return handlerResult{handled: true, nodeID: id}
}

// forInOperator scans the unnamed children between the left and right
// fields for the literal "of"/"in" keyword token.
func forInOperator(c *analysisCtx, n *sitter.Node) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if !ch.IsNamed() {
			switch c.text(ch) {
			case "of":
				return "of"
			case "in":
				return "in"
			}
		}
	}
	return "of"
}

// handleWhileStatement emits a Loop node for a while(...) loop.
func handleWhileStatement(ctx *analysisCtx, n *sitter.Node) handlerResult {
	cond := n.ChildByFieldName("condition")
	body := n.ChildByFieldName("body")
	id := ctx.addNode(capmodel.Node{
		Kind:      capmodel.NodeLoop,
		LoopKind:  capmodel.LoopWhile,
		Condition: ctx.text(cond),
		Code:      ctx.text(n),
	}).ID
	ctx.withScope(id, func() {
		ctx.visit(body)
	})
	return handlerResult{handled: true, nodeID: id}
}

// handleDoStatement emits a Loop node for a do { ... } while(...) loop.
func handleDoStatement(ctx *analysisCtx, n *sitter.Node) handlerResult {
	cond := n.ChildByFieldName("condition")
	body := n.ChildByFieldName("body")
	id := ctx.addNode(capmodel.Node{
		Kind:      capmodel.NodeLoop,
		LoopKind:  capmodel.LoopDoWhile,
		Condition: ctx.text(cond),
		Code:      ctx.text(n),
	}).ID
	ctx.withScope(id, func() {
		ctx.visit(body)
	})
	return handlerResult{handled: true, nodeID: id}
}

// shadowDeclaredNames marks every identifier declared by a for-loop
// initializer or for-in/for-of left-hand side as shadowed, so it is never
// mistaken for a removable literal binding in an enclosing scope.
func shadowDeclaredNames(c *analysisCtx, n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier":
		c.shadowedNames[c.text(n)] = true
	case "variable_declaration", "lexical_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			decl := n.NamedChild(i)
			if decl.Type() == "variable_declarator" {
				if name := decl.ChildByFieldName("name"); name != nil {
					shadowDeclaredNames(c, name)
				}
			}
		}
	case "array_pattern", "object_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			shadowDeclaredNames(c, n.NamedChild(i))
		}
	}
}
