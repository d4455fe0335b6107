// Package vivu implements VIVU (Virtual Inlining / Virtual Unrolling, C4):
// it turns a CFG into an MSG by creating one fresh node copy per call
// context (virtual inlining) and by peeling the first iteration of every
// loop off from its steady-state body (virtual unrolling), so that the
// cache/DISP DFAs downstream see an almost-acyclic graph in which each node
// has a single, context-precise memory-access history.
package vivu

import (
	"errors"
	"fmt"
	"sort"

	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
	"github.com/smetzlaff/isptap-sub001/internal/msg"
)

// ErrRecursion is returned when the call graph closure reaches a function
// from itself; recursive programs are out of scope (§4.4, §1 Non-goals).
var ErrRecursion = errors.New("vivu: recursive call graph is not supported")

// Builder runs one VIVU expansion over a base CFG.
type Builder struct {
	base *cfg.Graph
	out  *msg.Graph

	// memo maps (cfg node, call-context stack, steady-loop set) to the MSG
	// node already created for that combination, so that merge points
	// (multiple predecessors reaching the same context/phase) collapse onto
	// one node instead of being duplicated.
	memo map[memoKey]core.NodeID
}

type memoKey struct {
	cfgNode core.NodeID
	stack   string
	steady  string
}

// Build runs VIVU starting at the Entry node of the analysis root function,
// using callGraph to reject recursive programs up front.
func Build(base *cfg.Graph, root core.NodeID, callGraph []cfg.CallGraphEdge) (*msg.Graph, error) {
	if err := checkRecursion(callGraph); err != nil {
		return nil, err
	}

	b := &Builder{
		base: base,
		out:  msg.NewGraph(),
		memo: make(map[memoKey]core.NodeID),
	}

	rootFunc := base.Node(root).Func
	entry := b.walk(root, []cfg.Address{rootFunc}, nil)
	b.out.Entry = entry

	return b.out, nil
}

// checkRecursion rejects any call graph in which a function can reach
// itself through the transitive closure of Caller->Callee edges.
func checkRecursion(callGraph []cfg.CallGraphEdge) error {
	adj := make(map[cfg.Address][]cfg.Address)
	for _, e := range callGraph {
		adj[e.Caller] = append(adj[e.Caller], e.Callee)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[cfg.Address]int)

	var visit func(n cfg.Address) error
	visit = func(n cfg.Address) error {
		color[n] = gray
		for _, next := range adj[n] {
			switch color[next] {
			case gray:
				return fmt.Errorf("%w: function 0x%x", ErrRecursion, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[n] = black
		return nil
	}

	for n := range adj {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// walk emits (or returns the memoized copy of) the MSG node for cfgNode
// under the given call-context stack and set of loop heads already in
// steady state, then recurses over cfgNode's control-flow successors.
func (b *Builder) walk(cfgNode core.NodeID, stack []cfg.Address, steady []core.NodeID) core.NodeID {
	key := memoKey{cfgNode: cfgNode, stack: stackSig(stack), steady: steadySig(steady)}
	if id, ok := b.memo[key]; ok {
		return id
	}

	node := *b.base.Node(cfgNode)
	msgNode := b.out.AddNode(msg.Node{
		CFGNode: cfgNode,
		Base:    node,
		Stack:   append([]cfg.Address(nil), stack...),
	})
	b.memo[key] = msgNode

	if node.Kind == cfg.Exit {
		b.out.Exit = msgNode
		return msgNode
	}

	if node.Kind == cfg.CallPoint {
		b.walkCall(cfgNode, msgNode, stack, steady)
		return msgNode
	}

	for _, e := range b.base.OutEdges(cfgNode) {
		edge := *b.base.Edge(e)
		to := b.base.To(e)

		if edge.Kind == cfg.BackwardJump {
			b.walkBackEdge(msgNode, to, stack, steady, edge)
			continue
		}

		child := b.walk(to, stack, steady)
		b.out.AddEdge(msgNode, child, msg.Edge{Base: edge})
	}

	return msgNode
}

// walkBackEdge implements loop peeling: the first time a given loop head is
// reached, the back edge is redirected (as a forward edge) into a fresh
// steady-state copy of the head; once that copy is reached a second time the
// loop head is already "steady" and the edge is emitted as the real cycle.
func (b *Builder) walkBackEdge(msgFrom core.NodeID, head core.NodeID, stack []cfg.Address, steady []core.NodeID, edge cfg.Edge) {
	if !containsNode(steady, head) {
		childSteady := append(append([]core.NodeID(nil), steady...), head)
		sort.Slice(childSteady, func(i, j int) bool { return childSteady[i] < childSteady[j] })

		child := b.walk(head, stack, childSteady)
		peeled := edge
		peeled.Kind = cfg.ForwardJump
		b.out.AddEdge(msgFrom, child, msg.Edge{Base: peeled})
		return
	}

	child := b.walk(head, stack, steady)
	b.out.AddEdge(msgFrom, child, msg.Edge{Base: edge})
}

// walkCall stitches a call site: the callee's body is walked fresh (a new
// context, pushed onto the stack, starting its own loops at first
// iteration), and the callee's Exit is wired specifically to the matching
// ReturnPoint of this call site only - never to any other caller's return
// point, even though the un-inlined CFG's Exit node fans out to all of them.
func (b *Builder) walkCall(cfgCallPoint core.NodeID, msgCallPoint core.NodeID, stack []cfg.Address, steady []core.NodeID) {
	outs := b.base.OutEdges(cfgCallPoint)
	if len(outs) != 1 {
		return
	}
	calleeEntryEdge := *b.base.Edge(outs[0])
	calleeEntry := b.base.To(outs[0])
	calleeFunc := b.base.Node(calleeEntry).Func

	newStack := append(append([]cfg.Address(nil), stack...), calleeFunc)

	msgCalleeEntry := b.walk(calleeEntry, newStack, nil)
	b.out.AddEdge(msgCallPoint, msgCalleeEntry, msg.Edge{Base: calleeEntryEdge})

	retPoint, ok := b.base.MatchedReturnPoint(cfgCallPoint)
	if !ok {
		return
	}
	msgCalleeExit := b.walk(exitOf(b.base, calleeEntry), newStack, nil)
	msgReturnPoint := b.walk(retPoint, stack, steady)
	b.out.AddEdge(msgCalleeExit, msgReturnPoint, msg.Edge{Base: cfg.Edge{Kind: cfg.EdgeMeta, CapHigh: cfg.InfiniteBound, Circulation: cfg.InfiniteBound}})
}

// exitOf finds the Exit node reachable forward from a function's Entry node
// by following non-call edges only (calls are black boxes here, same as in
// walk), so it never strays into a callee's own exit.
func exitOf(g *cfg.Graph, entry core.NodeID) core.NodeID {
	visited := map[core.NodeID]bool{entry: true}
	queue := []core.NodeID{entry}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		node := g.Node(n)
		if node.Kind == cfg.Exit {
			return n
		}
		if node.Kind == cfg.CallPoint {
			if rp, ok := g.MatchedReturnPoint(n); ok && !visited[rp] {
				visited[rp] = true
				queue = append(queue, rp)
			}
			continue
		}
		for _, e := range g.OutEdges(n) {
			to := g.To(e)
			if !visited[to] {
				visited[to] = true
				queue = append(queue, to)
			}
		}
	}
	return 0
}

func containsNode(s []core.NodeID, id core.NodeID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

func stackSig(stack []cfg.Address) string {
	s := ""
	for _, a := range stack {
		s += fmt.Sprintf("%x/", a)
	}
	return s
}

func steadySig(steady []core.NodeID) string {
	s := ""
	for _, n := range steady {
		s += fmt.Sprintf("%d/", n)
	}
	return s
}
