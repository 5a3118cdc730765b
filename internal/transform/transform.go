// Package transform implements the Code Transformer: capability reference
// rewriting, literal parameterization, and variable-name normalization over
// a snippet's source text, per spec.md 4.3.
//
// Grounded on the teacher's text-splicing conventions in
// internal/config/config.go (reverse-order, offset-preserving edits) and the
// tree-sitter traversal shape shared with internal/analyzer.
package transform

import (
	"context"
	"io"
	"log/slog"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// discardLogger returns a logger that drops everything, used for the
// recursive nested-template transformer instance so inner-pass warnings
// don't duplicate the outer pass's own logging.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CapabilityResolver resolves an mcp.<ns>.<action> reference against the
// capability registry for a given (org, project) scope.
type CapabilityResolver interface {
	ResolveReference(ctx context.Context, org, project, namespace, action string) (capabilityID string, found bool, err error)
}

// Scope identifies the caller's namespace for capability resolution.
type Scope struct {
	Org     string
	Project string
}

// Transformer applies the Code Transformer's three rewrites in order:
// capability reference rewrite, literal parameterization, variable-name
// normalization.
type Transformer struct {
	resolver CapabilityResolver
	logger   *slog.Logger
}

// New returns a Transformer. resolver may be nil if capability reference
// rewriting will never be invoked (e.g. offline lint tooling).
func New(resolver CapabilityResolver, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{resolver: resolver, logger: logger}
}

// span is a half-open byte range into a source string, with replacement
// text. Used by every splicing pass in this package.
type span struct {
	start, end int
	replace    string
}

// spliceSpans rewrites src by replacing every span's [start,end) range with
// its replacement text. Spans must not overlap; they are applied in
// descending start order so earlier offsets stay valid (the teacher's
// reverse-order splicing convention).
func spliceSpans(src string, spans []span) string {
	if len(spans) == 0 {
		return src
	}
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start > sorted[j].start })

	out := src
	for _, s := range sorted {
		if s.start < 0 || s.end > len(out) || s.start > s.end {
			continue
		}
		out = out[:s.start] + s.replace + out[s.end:]
	}
	return out
}

// textOf returns the verbatim slice of src covered by an AST node. It does
// not subtract the parse's baseOffset: callers that work against the
// wrapped buffer use wrapped-relative offsets throughout a single pass and
// only rebase once at the end.
func textOf(src []byte, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}
