package cfg

import "github.com/smetzlaff/isptap-sub001/internal/core"

// Clone returns a deep copy of g, including the super-entry/super-exit node
// ids and the call/return pairing index, so the memory-size stepper (C9) can
// re-run cost assignment and the IPET encoder from the same enriched
// baseline at each configured scratchpad size without the runs interfering
// with each other.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Graph:        g.Graph.Clone(),
		SuperEntry:   g.SuperEntry,
		SuperExit:    g.SuperExit,
		callPoints:   make(map[callReturnKey]core.NodeID, len(g.callPoints)),
		returnPoints: make(map[callReturnKey]core.NodeID, len(g.returnPoints)),
	}
	for k, v := range g.callPoints {
		out.callPoints[k] = v
	}
	for k, v := range g.returnPoints {
		out.returnPoints[k] = v
	}
	return out
}
