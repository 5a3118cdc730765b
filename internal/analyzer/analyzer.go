// Package analyzer implements the AST Analyzer: it parses a snippet with a
// tree-sitter grammar and walks the resulting concrete syntax tree into a
// capmodel.StaticStructure of tasks, decisions, forks/joins, and loops.
//
// Grounded on the tree-sitter based lineage analyzer pattern (generic
// visitor + field-based child lookup) used across the retrieval pack; see
// DESIGN.md for the specific source file.
package analyzer

import (
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// wrapperPrefix/wrapperSuffix admit free-form statement lists into the
// grammar by wrapping them in an async function declaration. baseOffset is
// subtracted from every AST byte position before slicing the original
// source, so callers of Analyze never see wrapper-relative spans.
const (
	wrapperPrefix = "async function _w() {\n"
	wrapperSuffix = "\n}"
)

// Analyzer parses and walks snippets into StaticStructures. It holds no
// mutable state between calls to Analyze: every call resets its context on
// its own goroutine stack, making concurrent Analyze calls race-free.
type Analyzer struct {
	logger *slog.Logger
}

// New returns an Analyzer that logs parse/handler failures to logger. A nil
// logger falls back to slog.Default().
func New(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

// Analyze implements the AST Analyzer contract: it never fails on malformed
// input. A parse error or panic inside a handler is logged at warn and
// yields an empty (or partially complete) structure rather than propagating.
func (a *Analyzer) Analyze(source string) *capmodel.StaticStructure {
	structure := &capmodel.StaticStructure{
		VariableBindings: make(map[string]string),
		LiteralBindings:  make(map[string]any),
	}

	wrapped, baseOffset, needsWrap := wrapIfNeeded(source)

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(nil, nil, []byte(wrapped))
	if err != nil {
		a.logger.Warn("analyzer: parse failed", "error", err)
		return structure
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		// Tree-sitter is error-tolerant; a malformed snippet still yields a
		// root with ERROR nodes. We still attempt to walk it — handlers
		// fall through safely on unrecognized shapes — but log a warning.
		a.logger.Warn("analyzer: parse tree contains errors, continuing best-effort")
	}

	src := []byte(wrapped)

	ctx := newAnalysisCtx(src, baseOffset, a.logger)
	body := root
	if needsWrap {
		body = findFunctionBody(root)
		if body == nil {
			body = root
		}
	}

	ctx.visitChildren(body)

	structure.Nodes = ctx.nodes
	structure.Edges = nil // edges are built by the Edge Builder, not here
	structure.VariableBindings = ctx.variableBindings
	structure.LiteralBindings = ctx.literalBindings
	return structure
}

// Wrap exposes the analyzer's free-form-statement wrapping so other
// components (the Code Transformer) parse snippets with byte-identical
// offsets to the AST Analyzer.
func Wrap(source string) (wrapped string, baseOffset uint32, wasWrapped bool) {
	return wrapIfNeeded(source)
}

// wrapIfNeeded wraps free-form statements in an async function so the
// grammar always admits the snippet, per spec.md 4.1 "Inputs". It returns
// the (possibly wrapped) source, the byte offset of the original source's
// start within the wrapped string, and whether wrapping occurred.
func wrapIfNeeded(source string) (wrapped string, baseOffset uint32, wasWrapped bool) {
	trimmed := strings.TrimSpace(source)
	if looksLikeTopLevelDeclaration(trimmed) {
		return source, 0, false
	}
	return wrapperPrefix + source + wrapperSuffix, uint32(len(wrapperPrefix)), true
}

func looksLikeTopLevelDeclaration(s string) bool {
	for _, kw := range []string{"function", "async function", "class ", "export "} {
		if strings.HasPrefix(s, kw) {
			return true
		}
	}
	return false
}

// findFunctionBody locates the statement_block of the synthetic wrapper
// function so traversal starts inside it rather than at the declaration.
func findFunctionBody(root *sitter.Node) *sitter.Node {
	if root == nil {
		return nil
	}
	var walk func(n *sitter.Node) *sitter.Node
	walk = func(n *sitter.Node) *sitter.Node {
		if n == nil {
			return nil
		}
		if n.Type() == "function_declaration" {
			if body := n.ChildByFieldName("body"); body != nil {
				return body
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if found := walk(n.Child(i)); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(root)
}

// Parse parses source (wrapping it if it is free-form statements) and
// returns the resulting tree, the exact byte slice the tree was parsed
// against, and the baseOffset to subtract from AST byte positions to
// recover offsets into the original, unwrapped source. Exported so the Code
// Transformer parses with byte-identical offsets to the Analyzer.
func Parse(source string) (*sitter.Tree, []byte, uint32, error) {
	wrapped, baseOffset, _ := wrapIfNeeded(source)
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(nil, nil, []byte(wrapped))
	if err != nil {
		return nil, nil, 0, errf("parse source: %w", err)
	}
	return tree, []byte(wrapped), baseOffset, nil
}

// errf is a small helper for consistent, package-qualified error wrapping.
func errf(format string, args ...any) error {
	return fmt.Errorf("analyzer: "+format, args...)
}
