package transform

import (
	"regexp"
	"sort"
)

// NormalizeVariableNames implements spec.md 4.3 "Variable normalization":
// every occurrence of a tracked binding name is renamed to "_<nodeId>",
// word-boundary matched with a negative-lookbehind-equivalent skip on a
// preceding '.' (property accesses are never renamed). Names are processed
// longest-first so "file" doesn't clobber part of "fileContent".
func NormalizeVariableNames(source string, variableBindings map[string]string) string {
	names := make([]string, 0, len(variableBindings))
	for name := range variableBindings {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	out := source
	for _, name := range names {
		out = renameIdentifier(out, name, "_"+variableBindings[name])
	}
	return out
}

func renameIdentifier(src, name, replacement string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	matches := re.FindAllStringIndex(src, -1)
	if len(matches) == 0 {
		return src
	}

	var spans []span
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && src[start-1] == '.' {
			continue // property access (obj.name) — not a variable reference
		}
		spans = append(spans, span{start: start, end: end, replace: replacement})
	}
	return spliceSpans(src, spans)
}
