package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

func init() {
	register("if_statement", handleIfStatement)
	register("switch_statement", handleSwitchStatement)
	register("ternary_expression", handleTernaryExpression)
}

// handleIfStatement emits a Decision node and recurses into the consequence
// and alternative under the "<id>:true" / "<id>:false" scopes, per spec.md
// 4.1 "Decisions".
func handleIfStatement(ctx *analysisCtx, n *sitter.Node) handlerResult {
	cond := n.ChildByFieldName("condition")
	consequence := n.ChildByFieldName("consequence")
	alternative := n.ChildByFieldName("alternative")

	id := ctx.addNode(capmodel.Node{Kind: capmodel.NodeDecision, Condition: ctx.text(cond)}).ID

	ctx.withScope(id+":true", func() {
		ctx.visit(consequence)
	})
	if alternative != nil {
		scope := id + ":false"
		ctx.withScope(scope, func() {
			// A chained "else if" is itself an if_statement; visit handles
			// it, landing its own Decision node directly in this scope.
			ctx.visit(alternative)
		})
	}
	return handlerResult{handled: true, nodeID: id}
}

// handleSwitchStatement emits a Decision node per spec.md 4.1, scoping each
// case body under "<id>:case:<value>" and the default body under
// "<id>:case:default".
func handleSwitchStatement(ctx *analysisCtx, n *sitter.Node) handlerResult {
	value := n.ChildByFieldName("value")
	id := ctx.addNode(capmodel.Node{Kind: capmodel.NodeDecision, Condition: ctx.text(value)}).ID

	body := n.ChildByFieldName("body")
	if body == nil {
		return handlerResult{handled: true, nodeID: id}
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		clause := body.NamedChild(i)
		switch clause.Type() {
		case "switch_case":
			caseValue := clause.ChildByFieldName("value")
			scope := id + ":case:" + ctx.text(caseValue)
			ctx.withScope(scope, func() {
				ctx.visitSwitchClauseBody(clause)
			})
		case "switch_default":
			scope := id + ":case:default"
			ctx.withScope(scope, func() {
				ctx.visitSwitchClauseBody(clause)
			})
		}
	}
	return handlerResult{handled: true, nodeID: id}
}

// visitSwitchClauseBody walks a switch_case/switch_default's statement
// list, skipping the "value" field child (already consumed as the scope
// key) and any bare break_statement (control flow, not structure).
func (c *analysisCtx) visitSwitchClauseBody(clause *sitter.Node) {
	valueNode := clause.ChildByFieldName("value")
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		stmt := clause.NamedChild(i)
		if stmt == valueNode || stmt.Type() == "break_statement" {
			continue
		}
		c.visit(stmt)
	}
}

// handleTernaryExpression treats `cond ? a : b` as a Decision with the same
// true/false scoping as an if statement.
func handleTernaryExpression(ctx *analysisCtx, n *sitter.Node) handlerResult {
	cond := n.ChildByFieldName("condition")
	consequence := n.ChildByFieldName("consequence")
	alternative := n.ChildByFieldName("alternative")

	id := ctx.addNode(capmodel.Node{Kind: capmodel.NodeDecision, Condition: ctx.text(cond)}).ID

	ctx.withScope(id+":true", func() {
		ctx.visit(consequence)
	})
	ctx.withScope(id+":false", func() {
		ctx.visit(alternative)
	})
	return handlerResult{handled: true, nodeID: id}
}
