package vivu

import (
	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
	"github.com/smetzlaff/isptap-sub001/internal/msg"
)

// ToCFG flattens an MSG back into a plain CFG so that the IPET encoder (C7),
// which only knows about cfg.Graph, can generate flow-conservation
// constraints over the context-expanded, peeled graph. The mapping is
// one-to-many from the original pre-VIVU CFG's point of view (many MSG/new
// nodes trace back to one original node, recorded by origin); it is
// one-to-one between the MSG and the returned graph, since ToCFG performs no
// further merging of its own.
func ToCFG(m *msg.Graph) (out *cfg.Graph, origin map[core.NodeID]core.NodeID) {
	out = cfg.NewGraph()
	origin = make(map[core.NodeID]core.NodeID)
	nodeMap := make(map[core.NodeID]core.NodeID)

	for _, n := range m.Nodes() {
		mn := m.Node(n)
		id := out.AddNode(mn.Base)
		nodeMap[n] = id
		origin[id] = mn.CFGNode
	}

	for _, e := range m.Edges() {
		me := m.Edge(e)
		from, to := nodeMap[m.From(e)], nodeMap[m.To(e)]

		// me.Base.Cost/MemPenalty still carry cost.Compute's pre-VIVU
		// always-off-chip baseline (OnChipCost, OffChipCost-OnChipCost); now
		// that a DFA has run, DynamicPenalty is the authoritative memory
		// penalty for this edge and replaces that baseline rather than
		// adding to it. It is summed into OffChipCost; Cost stays the on-chip
		// cost, so the WCET weight Cost+MemPenalty counts the penalty once.
		edgeAttr := me.Base
		edgeAttr.MemPenalty = me.DynamicPenalty
		edgeAttr.Cost = edgeAttr.OnChipCost
		edgeAttr.OffChipCost = edgeAttr.OnChipCost + me.DynamicPenalty
		out.AddEdge(from, to, edgeAttr)
	}

	out.SuperEntry = nodeMap[m.Entry]
	if m.Exit != 0 {
		out.SuperExit = nodeMap[m.Exit]
	}

	return out, origin
}

// FromCFG builds a trivial, non-inlined, non-unrolled MSG that mirrors g
// node-for-node: every MSG node's context stack is empty and every back edge
// stays a real cycle. Used where VIVU's context sensitivity is not needed
// (a DFA smoke test, or a program with neither calls nor loops, for which
// Build and FromCFG produce an isomorphic result).
func FromCFG(g *cfg.Graph) *msg.Graph {
	out := msg.NewGraph()
	nodeMap := make(map[core.NodeID]core.NodeID)

	for _, n := range g.Nodes() {
		id := out.AddNode(msg.Node{CFGNode: n, Base: *g.Node(n)})
		nodeMap[n] = id
	}
	for _, e := range g.Edges() {
		edge := *g.Edge(e)
		out.AddEdge(nodeMap[g.From(e)], nodeMap[g.To(e)], msg.Edge{Base: edge})
	}

	out.Entry = nodeMap[g.SuperEntry]
	out.Exit = nodeMap[g.SuperExit]
	return out
}
