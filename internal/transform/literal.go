package transform

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/antigravity-dev/capcore/internal/analyzer"
)

// literalParamCtx accumulates the state threaded through one
// ParameterizeLiterals pass: spans to splice, the merged extracted-literal
// map, and the shadow set (names excluded as loop/param bindings).
type literalParamCtx struct {
	src        []byte
	baseOffset uint32
	bindings   map[string]any
	shadowed   map[string]bool
	spans      []span
	extracted  map[string]any
	seenNames  map[string]bool // names already claimed in the parameter schema
}

// ParameterizeLiterals implements spec.md 4.3 "Literal parameterization":
// removes `var|let|const <name> = <literal>` declarations for names present
// in literalBindings, rewrites every live usage to `args.<name>`, lifts
// additional inline literal arguments found directly inside mcp.*.* call
// sites, and recursively parameterizes nested code-shaped template
// literals. Returns the rewritten source and the JSON Schema describing
// every lifted parameter.
func (t *Transformer) ParameterizeLiterals(source string, literalBindings map[string]any) (string, map[string]any, error) {
	tree, wrapped, baseOffset, err := analyzer.Parse(source)
	if err != nil {
		t.logger.Warn("transform: parse failed during literal parameterization, keeping original source", "error", err)
		return source, map[string]any{}, nil
	}

	ctx := &literalParamCtx{
		src:        wrapped,
		baseOffset: baseOffset,
		bindings:   literalBindings,
		shadowed:   map[string]bool{},
		extracted:  map[string]any{},
		seenNames:  map[string]bool{},
	}
	for name, v := range literalBindings {
		ctx.extracted[name] = v
		ctx.seenNames[name] = true
	}

	root := tree.RootNode()
	ctx.collectShadows(root)

	declSpans := ctx.collectDeclarationSpans(root)
	ctx.spans = append(ctx.spans, declSpans...)
	ctx.collectUsageReplacements(root, declSpans)
	ctx.collectInlineLiftsAndNestedTemplates(root)

	newSource := spliceSpans(source, ctx.spans)
	newSource = stripEmptyLines(newSource)

	return newSource, synthesizeSchema(ctx.extracted), nil
}

// collectShadows marks every loop-control-variable and function-parameter
// identifier as shadowed, mirroring the analyzer's bindings.go rules.
func (c *literalParamCtx) collectShadows(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "formal_parameters":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			p := n.NamedChild(i)
			if p.Type() == "identifier" {
				c.shadowed[c.text(p)] = true
			} else if id := p.ChildByFieldName("pattern"); id != nil && id.Type() == "identifier" {
				c.shadowed[c.text(id)] = true
			}
		}
	case "catch_clause":
		if p := n.ChildByFieldName("parameter"); p != nil && p.Type() == "identifier" {
			c.shadowed[c.text(p)] = true
		}
	case "for_statement":
		c.shadowNamesIn(n.ChildByFieldName("initializer"))
	case "for_in_statement":
		c.shadowNamesIn(n.ChildByFieldName("left"))
	}
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		c.collectShadows(n.NamedChild(i))
	}
}

func (c *literalParamCtx) shadowNamesIn(n *sitter.Node) {
	if n == nil {
		return
	}
	if n.Type() == "identifier" {
		c.shadowed[c.text(n)] = true
		return
	}
	if n.Type() == "variable_declaration" || n.Type() == "lexical_declaration" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			decl := n.NamedChild(i)
			if decl.Type() == "variable_declarator" {
				c.shadowNamesIn(decl.ChildByFieldName("name"))
			}
		}
	}
}

// collectDeclarationSpans finds every removable `var|let|const name = lit`
// statement and returns their full (enclosing-statement) byte spans.
func (c *literalParamCtx) collectDeclarationSpans(n *sitter.Node) []span {
	var out []span
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "lexical_declaration" || n.Type() == "variable_declaration" {
			for i := 0; i < int(n.NamedChildCount()); i++ {
				decl := n.NamedChild(i)
				if decl.Type() != "variable_declarator" {
					continue
				}
				nameNode := decl.ChildByFieldName("name")
				if nameNode == nil || nameNode.Type() != "identifier" {
					continue
				}
				name := c.text(nameNode)
				if _, ok := c.bindings[name]; !ok {
					continue
				}
				if c.shadowed[name] {
					continue
				}
				start := rebase(int(n.StartByte()), c.baseOffset)
				end := rebase(int(n.EndByte()), c.baseOffset)
				out = append(out, span{start: start, end: end, replace: ""})
			}
		}
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(n)
	return out
}

// collectUsageReplacements rewrites every live identifier reference to a
// lifted name as args.<name>, skipping declaration spans, object-literal
// property keys, member-expression property positions, and shadowed names.
func (c *literalParamCtx) collectUsageReplacements(root *sitter.Node, declSpans []span) {
	inDeclSpan := func(pos int) bool {
		for _, s := range declSpans {
			if pos >= s.start && pos < s.end {
				return true
			}
		}
		return false
	}

	var walk func(n *sitter.Node, parent *sitter.Node)
	walk = func(n *sitter.Node, parent *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "identifier" {
			name := c.text(n)
			if _, ok := c.bindings[name]; ok && !c.shadowed[name] {
				if !isKeyOrPropertyPosition(n, parent) {
					start := rebase(int(n.StartByte()), c.baseOffset)
					end := rebase(int(n.EndByte()), c.baseOffset)
					if !inDeclSpan(start) {
						c.spans = append(c.spans, span{start: start, end: end, replace: "args." + name})
					}
				}
			}
		}
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			walk(n.NamedChild(i), n)
		}
	}
	walk(root, nil)
}

// isKeyOrPropertyPosition reports whether n is the key of an object pair or
// the property of a member expression — positions that are not variable
// references even when the identifier text matches a lifted name.
func isKeyOrPropertyPosition(n, parent *sitter.Node) bool {
	if parent == nil {
		return false
	}
	if parent.Type() == "pair" && parent.ChildByFieldName("key") == n {
		return true
	}
	if parent.Type() == "member_expression" && parent.ChildByFieldName("property") == n {
		return true
	}
	return false
}

// collectInlineLiftsAndNestedTemplates walks every mcp.<ns>.<action>(...)
// call site, lifting inline primitive-literal arguments not already covered
// by the declared bindings, and recursively parameterizing any
// code-shaped template-literal argument.
func (c *literalParamCtx) collectInlineLiftsAndNestedTemplates(root *sitter.Node) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call_expression" {
			fn := n.ChildByFieldName("function")
			if fn != nil && fn.Type() == "member_expression" {
				if _, _, ok := mcpNamespaceAction(c.src, fn); ok {
					c.liftInlineArgs(n.ChildByFieldName("arguments"))
				}
			}
		}
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
}

func (c *literalParamCtx) liftInlineArgs(argsNode *sitter.Node) {
	if argsNode == nil || argsNode.NamedChildCount() == 0 {
		return
	}
	first := argsNode.NamedChild(0)
	if first.Type() != "object" {
		return
	}
	for i := 0; i < int(first.NamedChildCount()); i++ {
		pair := first.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		keyNode := pair.ChildByFieldName("key")
		valNode := pair.ChildByFieldName("value")
		if keyNode == nil || valNode == nil {
			continue
		}
		propName := stripQuotesLocal(c.text(keyNode))

		if valNode.Type() == "template_string" && looksLikeCode(c.text(valNode)) {
			c.extractNestedTemplate(valNode, propName)
			continue
		}

		v, ok := simpleLiteral(c.src, valNode)
		if !ok {
			continue
		}
		name := c.uniqueName(propName)
		c.extracted[name] = v
		start := rebase(int(valNode.StartByte()), c.baseOffset)
		end := rebase(int(valNode.EndByte()), c.baseOffset)
		c.spans = append(c.spans, span{start: start, end: end, replace: "args." + name})
	}
}

// extractNestedTemplate recursively parameterizes a template literal whose
// content looks like an embedded code body, merging the inner schema's
// names into the outer map (prefixed by outerName on collision).
func (c *literalParamCtx) extractNestedTemplate(n *sitter.Node, outerName string) {
	raw := c.text(n)
	inner := stripTemplateBackticks(raw)

	innerTransformer := &Transformer{logger: discardLogger()}
	newInner, schema, err := innerTransformer.ParameterizeLiterals(inner, map[string]any{})
	if err != nil {
		return
	}
	for name, v := range flattenSchemaExamples(schema) {
		merged := name
		if c.seenNames[merged] {
			merged = outerName + "_" + name
		}
		c.seenNames[merged] = true
		c.extracted[merged] = v
	}

	start := rebase(int(n.StartByte()), c.baseOffset)
	end := rebase(int(n.EndByte()), c.baseOffset)
	c.spans = append(c.spans, span{start: start, end: end, replace: "`" + newInner + "`"})
}

func (c *literalParamCtx) uniqueName(base string) string {
	name := base
	suffix := 1
	for c.seenNames[name] {
		suffix++
		name = base + "_" + strconv.Itoa(suffix)
	}
	c.seenNames[name] = true
	return name
}

func (c *literalParamCtx) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(c.src[n.StartByte():n.EndByte()])
}

// looksLikeCode applies the spec.md 4.3 heuristic for nested code templates:
// length >= 20 and presence of a code-like marker.
func looksLikeCode(templateText string) bool {
	if len(templateText) < 20 {
		return false
	}
	markers := []string{"await", "=>", "page.", "document.", "window.", "console.", "return", "function", "if (", "for ("}
	for _, m := range markers {
		if strings.Contains(templateText, m) {
			return true
		}
	}
	return false
}

func stripTemplateBackticks(s string) string {
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		return s[1 : len(s)-1]
	}
	return s
}

func stripQuotesLocal(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// simpleLiteral evaluates a primitive literal node (string/number/bool/null)
// without the recursive array/object support the analyzer's evalLiteral
// offers — inline lifting only targets scalar properties directly.
func simpleLiteral(src []byte, n *sitter.Node) (any, bool) {
	text := string(src[n.StartByte():n.EndByte()])
	switch n.Type() {
	case "string":
		return stripQuotesLocal(text), true
	case "number":
		if iv, err := strconv.ParseInt(text, 0, 64); err == nil {
			return iv, true
		}
		if fv, err := strconv.ParseFloat(text, 64); err == nil {
			return fv, true
		}
		return nil, false
	case "true":
		return true, true
	case "false":
		return false, true
	case "null", "undefined":
		return nil, true
	default:
		return nil, false
	}
}

// stripEmptyLines removes blank lines left behind by declaration removal.
func stripEmptyLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// flattenSchemaExamples extracts a name->example-value map back out of a
// synthesized schema, for merging a nested template's lifted literals into
// the outer parameter set.
func flattenSchemaExamples(schema map[string]any) map[string]any {
	out := map[string]any{}
	props, _ := schema["properties"].(map[string]any)
	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		if examples, ok := prop["examples"].([]any); ok && len(examples) > 0 {
			out[name] = examples[0]
		}
	}
	return out
}
