package analyzer

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// evalLiteral attempts to statically evaluate n as a literal expression:
// string / number / boolean / null / array / object / parenthesized
// expression / unary or binary operation over literals / an identifier that
// resolves to an existing literal binding. Returns (value, true) on success.
func (c *analysisCtx) evalLiteral(n *sitter.Node) (any, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Type() {
	case "string":
		return unquoteJS(c.text(n)), true
	case "number":
		txt := c.text(n)
		if iv, err := strconv.ParseInt(txt, 0, 64); err == nil {
			return iv, true
		}
		if fv, err := strconv.ParseFloat(txt, 64); err == nil {
			return fv, true
		}
		return nil, false
	case "true":
		return true, true
	case "false":
		return false, true
	case "null", "undefined":
		return nil, true
	case "array":
		var out []any
		for i := 0; i < int(n.NamedChildCount()); i++ {
			v, ok := c.evalLiteral(n.NamedChild(i))
			if !ok {
				return nil, false
			}
			out = append(out, v)
		}
		return out, true
	case "object":
		out := map[string]any{}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			pair := n.NamedChild(i)
			if pair.Type() != "pair" {
				return nil, false
			}
			keyNode := pair.ChildByFieldName("key")
			valNode := pair.ChildByFieldName("value")
			key := stripQuotes(c.text(keyNode))
			v, ok := c.evalLiteral(valNode)
			if !ok {
				return nil, false
			}
			out[key] = v
		}
		return out, true
	case "parenthesized_expression":
		return c.evalLiteral(n.NamedChild(0))
	case "unary_expression":
		op := c.text(n.Child(0))
		operand, ok := c.evalLiteral(n.ChildByFieldName("argument"))
		if !ok {
			return nil, false
		}
		return applyUnary(op, operand)
	case "binary_expression":
		left, lok := c.evalLiteral(n.ChildByFieldName("left"))
		right, rok := c.evalLiteral(n.ChildByFieldName("right"))
		if !lok || !rok {
			return nil, false
		}
		op := c.text(n.ChildByFieldName("operator"))
		return applyBinary(op, left, right)
	case "identifier":
		if v, ok := c.literalBindings[c.text(n)]; ok {
			return v, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func unquoteJS(raw string) string {
	if len(raw) >= 2 {
		q := raw[0]
		if (q == '"' || q == '\'' || q == '`') && raw[len(raw)-1] == q {
			return raw[1 : len(raw)-1]
		}
	}
	return raw
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func applyUnary(op string, v any) (any, bool) {
	switch op {
	case "-":
		if f, ok := toFloat(v); ok {
			return -f, true
		}
	case "+":
		return v, true
	case "!":
		if b, ok := v.(bool); ok {
			return !b, true
		}
	}
	return nil, false
}

func applyBinary(op string, l, r any) (any, bool) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		if op == "+" {
			if ls, ok := l.(string); ok {
				if rs, ok := r.(string); ok {
					return ls + rs, true
				}
			}
		}
		return nil, false
	}
	switch op {
	case "+":
		return lf + rf, true
	case "-":
		return lf - rf, true
	case "*":
		return lf * rf, true
	case "/":
		if rf == 0 {
			return nil, false
		}
		return lf / rf, true
	case "%":
		if rf == 0 {
			return nil, false
		}
		return float64(int64(lf) % int64(rf)), true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
