package cfg

import (
	"errors"
	"fmt"

	"github.com/smetzlaff/isptap-sub001/internal/core"
)

// ErrAmbiguousInjectingEdge is returned when a loop head has more than one
// (or zero) forward in-edge whose circulation field marks it as the
// injecting edge (the tie-breaking rule of §4.1).
var ErrAmbiguousInjectingEdge = errors.New("cfg: loop head has no unambiguous injecting edge")

// Loop identifies a loop by its BackwardJump edge, together with the three
// nodes the rest of the pipeline needs to distinguish (§3 Loop entity):
// the entry node (source of the injecting edge), the start node (the loop
// head, i.e. the back edge's target) and the exit node (the back edge's
// source).
type Loop struct {
	Back   core.EdgeID
	Start  core.NodeID // loop head
	Exit   core.NodeID // source of the back edge
	Inject core.EdgeID // the unique injecting edge
	Entry  core.NodeID // source of the injecting edge
}

// forwardDominators computes, for every node reachable from root while
// ignoring BackwardJump edges, the set of nodes that dominate it — i.e.
// every node that lies on every forward path from root to it. It uses the
// standard iterative data-flow fixpoint (Cooper/Harvey/Kennedy-style, by
// set intersection rather than the bitvector/RPO-index optimization, which
// is unnecessary at the node counts this analyzer deals with).
func (g *Graph) forwardDominators(root core.NodeID) map[core.NodeID]map[core.NodeID]bool {
	nodes := g.forwardReachable(root)

	dom := make(map[core.NodeID]map[core.NodeID]bool, len(nodes))
	all := make(map[core.NodeID]bool, len(nodes))
	for _, n := range nodes {
		all[n] = true
	}
	for _, n := range nodes {
		if n == root {
			dom[n] = map[core.NodeID]bool{root: true}
		} else {
			dom[n] = all
		}
	}

	changed := true
	for changed {
		changed = false
		for _, n := range nodes {
			if n == root {
				continue
			}
			var newDom map[core.NodeID]bool
			first := true
			for _, e := range g.InEdges(n) {
				if g.Edge(e).Kind == BackwardJump {
					continue
				}
				pred := g.From(e)
				if !all[pred] {
					continue
				}
				predDom := dom[pred]
				if first {
					newDom = copySet(predDom)
					first = false
				} else {
					newDom = intersect(newDom, predDom)
				}
			}
			if first {
				// no forward predecessor processed yet (unreachable-so-far); skip
				continue
			}
			newDom[n] = true
			if !equalSets(newDom, dom[n]) {
				dom[n] = newDom
				changed = true
			}
		}
	}
	return dom
}

func (g *Graph) forwardReachable(root core.NodeID) []core.NodeID {
	visited := map[core.NodeID]bool{root: true}
	order := []core.NodeID{root}
	queue := []core.NodeID{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range g.OutEdges(n) {
			if g.Edge(e).Kind == BackwardJump {
				continue
			}
			to := g.To(e)
			if !visited[to] {
				visited[to] = true
				order = append(order, to)
				queue = append(queue, to)
			}
		}
	}
	return order
}

func copySet(s map[core.NodeID]bool) map[core.NodeID]bool {
	out := make(map[core.NodeID]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func intersect(a, b map[core.NodeID]bool) map[core.NodeID]bool {
	out := make(map[core.NodeID]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func equalSets(a, b map[core.NodeID]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// IsLoopCausing reports whether e (which must be a BackwardJump edge) is
// loop-causing: its target dominates its source in the forward subgraph
// rooted at the graph's super-entry.
func (g *Graph) IsLoopCausing(e core.EdgeID) bool {
	if g.Edge(e).Kind != BackwardJump {
		return false
	}
	dom := g.forwardDominators(g.SuperEntry)
	src, tgt := g.From(e), g.To(e)
	return dom[src] != nil && dom[src][tgt]
}

// OnEveryPath reports whether b lies on every forward path from a to c
// (i.e. b dominates c relative to a as root).
func (g *Graph) OnEveryPath(a, b, c core.NodeID) bool {
	dom := g.forwardDominators(a)
	return dom[c] != nil && dom[c][b]
}

// InjectingEdge locates the loop head's unique injecting edge: the single
// forward (non-BackwardJump) in-edge whose Circulation is >= 0. If the head
// has exactly one forward in-edge, that edge is the injecting edge
// regardless of its Circulation (the common, non-tail-decision case).
// Multiple qualifying edges, or none, is reported as
// ErrAmbiguousInjectingEdge (the helper "fails", per §4.1).
func (g *Graph) InjectingEdge(head core.NodeID) (core.EdgeID, error) {
	var forward []core.EdgeID
	for _, e := range g.InEdges(head) {
		if g.Edge(e).Kind != BackwardJump {
			forward = append(forward, e)
		}
	}
	if len(forward) == 1 {
		return forward[0], nil
	}

	var candidates []core.EdgeID
	for _, e := range forward {
		if g.Edge(e).Circulation >= 0 {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) != 1 {
		return 0, fmt.Errorf("%w: head node %d has %d candidate(s)", ErrAmbiguousInjectingEdge, head, len(candidates))
	}
	return candidates[0], nil
}

// ClassifyLoop builds a Loop record for the given BackwardJump edge.
func (g *Graph) ClassifyLoop(back core.EdgeID) (Loop, error) {
	head := g.To(back)
	inject, err := g.InjectingEdge(head)
	if err != nil {
		return Loop{}, err
	}
	return Loop{
		Back:   back,
		Start:  head,
		Exit:   g.From(back),
		Inject: inject,
		Entry:  g.From(inject),
	}, nil
}

// BackwardEdges returns every BackwardJump edge in the graph, in
// deterministic (edge-id) order.
func (g *Graph) BackwardEdges() []core.EdgeID {
	var out []core.EdgeID
	for _, e := range g.Edges() {
		if g.Edge(e).Kind == BackwardJump {
			out = append(out, e)
		}
	}
	return out
}

// IsForwardDAG reports whether the graph, with BackwardJump edges removed,
// is acyclic. VIVU must establish this invariant (§8: "After VIVU, removing
// BackwardJump edges yields a DAG").
func (g *Graph) IsForwardDAG() bool {
	indeg := make(map[core.NodeID]int)
	for _, n := range g.Nodes() {
		indeg[n] = 0
	}
	for _, e := range g.Edges() {
		if g.Edge(e).Kind == BackwardJump {
			continue
		}
		indeg[g.To(e)]++
	}

	var queue []core.NodeID
	for n, d := range indeg {
		if d == 0 {
			queue = append(queue, n)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, e := range g.OutEdges(n) {
			if g.Edge(e).Kind == BackwardJump {
				continue
			}
			to := g.To(e)
			indeg[to]--
			if indeg[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	return visited == len(indeg)
}
