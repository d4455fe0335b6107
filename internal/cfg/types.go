// Package cfg implements the control-flow graph / memory-state graph data
// model (component C1 of the analysis pipeline): a typed, arena-backed
// graph of basic blocks, call/return points and function entry/exit nodes,
// plus the loop-classification helper that later phases (flow-fact
// enrichment, VIVU, the IPET encoder) depend on.
package cfg

import "github.com/smetzlaff/isptap-sub001/internal/core"

// Address is a 32-bit code address, as produced by the (external) disassembly parser.
type Address = uint32

// ContextID tags a per-call-context copy of a function body created during
// VIVU. 0 means "no context" (a node in the un-inlined CFG).
type ContextID = uint32

// InfiniteBound is the configured sentinel used for an unbounded loop's
// capacity-high / circulation, when no flow fact supplies a concrete bound.
const InfiniteBound int64 = -1

// NodeKind discriminates the CFG/MSG node variants of §3.
type NodeKind int

const (
	BasicBlock NodeKind = iota
	CallPoint
	ReturnPoint
	Entry
	Exit
	Meta
)

func (k NodeKind) String() string {
	switch k {
	case BasicBlock:
		return "BasicBlock"
	case CallPoint:
		return "CallPoint"
	case ReturnPoint:
		return "ReturnPoint"
	case Entry:
		return "Entry"
	case Exit:
		return "Exit"
	case Meta:
		return "Meta"
	default:
		return "Unknown"
	}
}

// EdgeKind discriminates the CFG/MSG edge variants of §3.
type EdgeKind int

const (
	ForwardStep EdgeKind = iota
	ForwardJump
	BackwardJump
	EdgeMeta
	InductingBackEdge
)

func (k EdgeKind) String() string {
	switch k {
	case ForwardStep:
		return "ForwardStep"
	case ForwardJump:
		return "ForwardJump"
	case BackwardJump:
		return "BackwardJump"
	case EdgeMeta:
		return "Meta"
	case InductingBackEdge:
		return "InductingBackEdge"
	default:
		return "Unknown"
	}
}

// FlowCompare is the comparison type of a static flow fact.
type FlowCompare int

const (
	FlowExact FlowCompare = iota
	FlowMax
	FlowMin
)

// StaticFlow records a static-flow-constraint annotation on an edge. Edges
// that share the same ID (when Present) are combined into a single ILP
// constraint by the IPET encoder (§4.7).
type StaticFlow struct {
	Present bool
	ID      int
	Cmp     FlowCompare
	Bound   int64
}

// Node carries every attribute the pipeline needs for a CFG or MSG node.
// Using one concrete struct (rather than a bag of per-attribute property
// maps, as the original implementation did) makes every field here
// statically typed and makes missing-attribute bugs a compile error instead
// of a map-miss at runtime.
type Node struct {
	Kind NodeKind

	// Addr is the node's own address: a BB's start address, or a
	// function's entry address for Entry/Exit nodes.
	Addr Address
	Size uint32
	Code string // disassembled text of the block, used to decode the terminating instruction

	// Context identifies the VIVU copy this node belongs to; zero in the
	// un-inlined CFG.
	Context ContextID

	// CallContextAddr/CalleeAddr/Context together form the pairing key
	// that links exactly one CallPoint to exactly one ReturnPoint
	// (invariant 1 of §3).
	CallContextAddr Address
	CalleeAddr      Address

	Func Address // owning function's entry address
	Name string  // pretty name for export/debugging
}

// Edge carries every cost/flow attribute needed by the cost calculator, the
// DFAs and the IPET encoder.
type Edge struct {
	Kind EdgeKind

	Cost        uint64 // on-chip execution cost for this edge's source block
	OnChipCost  uint64
	OffChipCost uint64
	MemPenalty  uint64 // OffChipCost - OnChipCost for static memories; DFA-computed for dynamic ones

	CapLow  int64
	CapHigh int64 // InfiniteBound when unbounded

	// Circulation is the loop bound (positive, on a loop head's back edge)
	// or the injection count (negative, by convention -1, on an
	// injecting/back edge of the topologically closed graph).
	Circulation int64

	Activation int64 // flow value after the ILP solve

	Static StaticFlow
	Name   string
}

// callReturnKey is the (context address, context id, callee address) triple
// that pairs exactly one CallPoint to exactly one ReturnPoint (invariant 1).
type callReturnKey struct {
	contextAddr Address
	context     ContextID
	calleeAddr  Address
}

// Graph is a CFG or MSG: a typed arena graph plus the distinguished
// super-entry/super-exit nodes and the CallPoint/ReturnPoint pairing index.
type Graph struct {
	*core.Graph[Node, Edge]
	SuperEntry core.NodeID
	SuperExit  core.NodeID

	callPoints   map[callReturnKey]core.NodeID
	returnPoints map[callReturnKey]core.NodeID
}

// NewGraph constructs an empty graph with a Meta super-entry and
// super-exit node already inserted.
func NewGraph() *Graph {
	g := core.New[Node, Edge]()
	entry := g.AddNode(Node{Kind: Meta, Name: "super-entry"})
	exit := g.AddNode(Node{Kind: Meta, Name: "super-exit"})
	return &Graph{
		Graph:        g,
		SuperEntry:   entry,
		SuperExit:    exit,
		callPoints:   make(map[callReturnKey]core.NodeID),
		returnPoints: make(map[callReturnKey]core.NodeID),
	}
}
