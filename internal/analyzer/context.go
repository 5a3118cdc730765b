package analyzer

import (
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/antigravity-dev/capcore/internal/capmodel"
)

// analysisCtx is the per-analysis, stack-local state the visitor threads
// through recursive descent. It is never shared across goroutines: a fresh
// context is created on every Analyze call (spec.md section 5).
type analysisCtx struct {
	src        []byte
	baseOffset uint32
	logger     *slog.Logger

	nodes    []capmodel.Node
	position int

	counters map[string]int // per-kind id counter: n, d, f, j, l

	parentScope     string
	nestingLevel    int
	parentOperation string

	// variableBindings maps a declared name to the task node id its
	// initializer created ("node binding").
	variableBindings map[string]string
	// literalBindings maps a declared name to its statically evaluated
	// literal value ("literal binding"); these are never persisted as nodes.
	literalBindings map[string]any

	// processedSpans prevents double-processing when traversal revisits a
	// node already consumed by the method-chain walk.
	processedSpans map[[2]uint32]bool

	// shadowedNames holds names excluded from removable literal
	// declarations: loop control variables, function parameters, and catch
	// bindings.
	shadowedNames map[string]bool
}

func newAnalysisCtx(src []byte, baseOffset uint32, logger *slog.Logger) *analysisCtx {
	return &analysisCtx{
		src:               src,
		baseOffset:        baseOffset,
		logger:            logger,
		counters:          make(map[string]int),
		variableBindings:  make(map[string]string),
		literalBindings:   make(map[string]any),
		processedSpans:    make(map[[2]uint32]bool),
		shadowedNames:     make(map[string]bool),
	}
}

// nextID returns a fresh, monotonic id for the given one-letter kind prefix
// ("n", "d", "f", "j", "l").
func (c *analysisCtx) nextID(prefix string) string {
	c.counters[prefix]++
	return prefix + itoa(c.counters[prefix])
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// text returns the verbatim source slice for an AST node.
func (c *analysisCtx) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(c.src[n.StartByte():n.EndByte()])
}

// span returns the (start,end) byte range relative to the original,
// un-wrapped source (baseOffset subtracted), used as a processedSpans key.
func (c *analysisCtx) span(n *sitter.Node) [2]uint32 {
	s, e := n.StartByte(), n.EndByte()
	if s >= c.baseOffset {
		s -= c.baseOffset
	}
	if e >= c.baseOffset {
		e -= c.baseOffset
	}
	return [2]uint32{s, e}
}

// addNode appends a node to the graph, assigning its id and stamping its
// position and scope.
func (c *analysisCtx) addNode(n capmodel.Node) capmodel.Node {
	if n.ID == "" {
		n.ID = c.nextID(kindPrefix(n.Kind))
	}
	n.Position = c.position
	c.position++
	n.ParentScope = c.parentScope
	n.Meta.NestingLevel = c.nestingLevel
	n.Meta.Executable = c.nestingLevel == 0
	n.Meta.ParentOperation = c.parentOperation
	c.nodes = append(c.nodes, n)
	return n
}

// kindPrefix maps a node kind to its presentation-id letter prefix.
func kindPrefix(k capmodel.NodeKind) string {
	switch k {
	case capmodel.NodeDecision:
		return "d"
	case capmodel.NodeFork:
		return "f"
	case capmodel.NodeJoin:
		return "j"
	case capmodel.NodeLoop:
		return "l"
	default:
		return "n"
	}
}

// withScope runs fn with parentScope temporarily set, restoring afterward.
// Used when entering a decision branch, fork block, or loop body.
func (c *analysisCtx) withScope(scope string, fn func()) {
	prev := c.parentScope
	c.parentScope = scope
	fn()
	c.parentScope = prev
}

// withNesting runs fn with nestingLevel/parentOperation bumped, used when
// descending into a pure-operation callback body (e.g. the predicate of
// .filter()) whose inner calls are not independently executable.
func (c *analysisCtx) withNesting(op string, fn func()) {
	prevLevel := c.nestingLevel
	prevOp := c.parentOperation
	c.nestingLevel++
	c.parentOperation = op
	fn()
	c.nestingLevel = prevLevel
	c.parentOperation = prevOp
}

// bindNode records a node-id binding for a declared variable name.
func (c *analysisCtx) bindNode(name, nodeID string) {
	if name == "" {
		return
	}
	c.variableBindings[name] = nodeID
}

// bindLiteral records a literal binding for a declared variable name,
// unless it is shadowed (loop control variable / function parameter).
func (c *analysisCtx) bindLiteral(name string, value any) {
	if name == "" || c.shadowedNames[name] {
		return
	}
	c.literalBindings[name] = value
}

// resolveVarToNode returns the node id a variable name is bound to, if any.
func (c *analysisCtx) resolveVarToNode(name string) (string, bool) {
	id, ok := c.variableBindings[name]
	return id, ok
}
