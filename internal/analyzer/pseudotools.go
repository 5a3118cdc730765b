package analyzer

import "strings"

// pureArrayMethods, pureStringMethods are recognized method names that
// produce code:<op> pseudo-tool task nodes, per spec.md 4.1.
var pureArrayMethods = map[string]bool{
	"filter": true, "map": true, "reduce": true, "flatMap": true,
	"find": true, "findIndex": true, "some": true, "every": true,
	"sort": true, "reverse": true, "slice": true, "concat": true,
	"join": true, "includes": true, "indexOf": true, "lastIndexOf": true,
}

var pureStringMethods = map[string]bool{
	"split": true, "replace": true, "replaceAll": true, "trim": true,
	"trimStart": true, "trimEnd": true, "toLowerCase": true, "toUpperCase": true,
	"substring": true, "substr": true, "match": true, "matchAll": true,
}

// pureStaticNamespaces maps a well-known static receiver (Object, Math,
// JSON) to its set of recognized pure method names.
var pureStaticNamespaces = map[string]map[string]bool{
	"Object": {"keys": true, "values": true, "entries": true, "fromEntries": true, "assign": true},
	"Math":   {"max": true, "min": true, "abs": true, "floor": true, "ceil": true, "round": true},
	"JSON":   {"parse": true, "stringify": true},
}

// binaryOperatorNames maps a JS binary operator token to the code:<op> name
// used in its pseudo-tool id, per spec.md 6 "Pseudo-tool namespace".
var binaryOperatorNames = map[string]string{
	"+": "add", "-": "subtract", "*": "multiply", "/": "divide", "%": "modulo",
	"**": "exponentiate", "==": "looseEquals", "===": "equals", "!=": "looseNotEquals",
	"!==": "notEquals", "<": "lessThan", "<=": "lessThanOrEqual", ">": "greaterThan",
	">=": "greaterThanOrEqual", "&&": "and", "||": "or", "&": "bitwiseAnd",
	"|": "bitwiseOr", "^": "bitwiseXor", "<<": "leftShift", ">>": "rightShift",
	">>>": "unsignedRightShift",
}

const pseudoToolPrefix = "code:"

// forbiddenPatterns are substrings whose presence in a pure task's code
// disqualifies it from metadata.pure = true. Defense-in-depth alongside the
// sandbox (spec.md 4.1): network calls, subprocess launches, dynamic code
// construction, timers, dynamic imports.
var forbiddenPatterns = []string{
	"fetch(", "XMLHttpRequest", "WebSocket", "net.connect",
	"child_process", "exec(", "spawn(", "execSync",
	"eval(", "new Function(", "Function(",
	"setTimeout(", "setInterval(", "setImmediate(",
	"import(",
}

// isPureSafe validates that code contains none of the forbidden patterns.
func isPureSafe(code string) bool {
	for _, p := range forbiddenPatterns {
		if strings.Contains(code, p) {
			return false
		}
	}
	return true
}

// resolvePseudoTool reports whether (receiverText, methodName) identifies a
// recognized pure pseudo-tool, and returns its code:<op> tool id.
func resolvePseudoTool(receiverText, methodName string) (toolID string, ok bool) {
	if pureArrayMethods[methodName] || pureStringMethods[methodName] {
		return pseudoToolPrefix + methodName, true
	}
	if allowed, known := pureStaticNamespaces[receiverText]; known && allowed[methodName] {
		return pseudoToolPrefix + receiverText + "." + methodName, true
	}
	return "", false
}

// resolveBinaryOperator maps an operator token to its pseudo-tool id.
func resolveBinaryOperator(op string) (toolID string, ok bool) {
	name, known := binaryOperatorNames[op]
	if !known {
		return "", false
	}
	return pseudoToolPrefix + name, true
}
