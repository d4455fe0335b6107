// Package msg implements the Memory-State Graph (MSG): the per-context,
// first-iteration-peeled graph VIVU (C4) produces from a CFG, and that the
// cache/DISP data-flow analyses (C5, C6) annotate with dynamic memory
// penalties before it is folded back into a CFG for the IPET encoder.
package msg

import (
	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
)

// Node is a (CFG node, context stack) pair, per §3: Base carries the
// attributes copied from the CFG node at construction time, CFGNode is the
// back-reference required by the MSG->CFG conversion invariant ("each MSG
// node maps to exactly one CFG node"), Stack is the VIVU call-context stack
// (innermost callee last), and Valid records whether this node's abstract
// memory state has been computed yet.
type Node struct {
	CFGNode core.NodeID
	Base    cfg.Node
	Stack   []cfg.Address
	Valid   bool

	// MemState is an opaque per-DFA abstract memory state (cache Must/May
	// pair, or a DISP/FIFO concrete-state set); it is type-asserted by
	// whichever analysis is running. Exactly one DFA runs per MSG, so a
	// single field (rather than one per memory kind) is enough.
	MemState interface{}

	// Hits/Misses/NCs are the per-BB classification counters the cache DFA
	// accumulates on a node, used later for WCP hit/miss statistics.
	Hits, Misses, NCs uint64
}

// Edge mirrors the CFG edge it was copied from (Base), plus the dynamic
// memory penalty a DFA accumulates on it.
type Edge struct {
	Base           cfg.Edge
	DynamicPenalty uint64
}

// Graph is an MSG: a typed arena graph with a distinguished entry/exit.
type Graph struct {
	*core.Graph[Node, Edge]
	Entry core.NodeID
	Exit  core.NodeID
}

// NewGraph constructs an empty MSG.
func NewGraph() *Graph {
	return &Graph{Graph: core.New[Node, Edge]()}
}
