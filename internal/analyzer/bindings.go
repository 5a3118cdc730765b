package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"
)

func init() {
	register("variable_declarator", handleDeclarator)
	register("formal_parameters", handleFormalParameters)
	register("catch_clause", handleCatchClause)
}

// handleDeclarator implements the two binding flavors from spec.md 4.1:
// node binding (initializer creates a new task node) and literal binding
// (initializer is statically evaluable). Declarators whose name is already
// shadowed (loop control var / function param) are left alone; those are
// excluded from removable literal declarations.
func handleDeclarator(ctx *analysisCtx, n *sitter.Node) handlerResult {
	nameNode := n.ChildByFieldName("name")
	valueNode := n.ChildByFieldName("value")
	if nameNode == nil || nameNode.Type() != "identifier" {
		// Destructuring patterns aren't statically bindable; recurse into
		// the initializer only so any task calls inside it are still found.
		if valueNode != nil {
			ctx.visit(valueNode)
		}
		return handlerResult{handled: true}
	}
	name := ctx.text(nameNode)

	if valueNode == nil {
		return handlerResult{handled: true}
	}

	beforePos := len(ctx.nodes)
	ctx.visit(valueNode)
	if len(ctx.nodes) > beforePos {
		// The initializer produced at least one task/capability node — bind
		// the declared name to the last (outermost) node it created at this
		// nesting level, not to a node nested inside one of its callbacks.
		bound := ctx.nodes[len(ctx.nodes)-1].ID
		for i := len(ctx.nodes) - 1; i >= beforePos; i-- {
			if ctx.nodes[i].Meta.NestingLevel == ctx.nestingLevel {
				bound = ctx.nodes[i].ID
				break
			}
		}
		ctx.bindNode(name, bound)
		return handlerResult{handled: true}
	}

	if !ctx.shadowedNames[name] {
		if v, ok := ctx.evalLiteral(valueNode); ok {
			ctx.bindLiteral(name, v)
		}
	}
	return handlerResult{handled: true}
}

// handleFormalParameters marks every parameter name as shadowed so a
// same-named literal binding elsewhere is never treated as removable.
func handleFormalParameters(ctx *analysisCtx, n *sitter.Node) handlerResult {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		switch p.Type() {
		case "identifier":
			ctx.shadowedNames[ctx.text(p)] = true
		case "required_parameter", "optional_parameter":
			if id := p.ChildByFieldName("pattern"); id != nil && id.Type() == "identifier" {
				ctx.shadowedNames[ctx.text(id)] = true
			}
		}
	}
	return handlerResult{handled: false}
}

// handleCatchClause shadows the caught error binding name.
func handleCatchClause(ctx *analysisCtx, n *sitter.Node) handlerResult {
	if p := n.ChildByFieldName("parameter"); p != nil && p.Type() == "identifier" {
		ctx.shadowedNames[ctx.text(p)] = true
	}
	return handlerResult{handled: false}
}
