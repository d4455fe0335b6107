package cfg

import (
	"errors"
	"fmt"

	"github.com/smetzlaff/isptap-sub001/internal/core"
)

// ErrUnpairedCallReturn is returned by CallReturnPairs when a CallPoint or
// ReturnPoint has no matching counterpart sharing its (context address,
// context id, callee address) triple (invariant 1 of §3).
var ErrUnpairedCallReturn = errors.New("cfg: call point has no matching return point")

// AddBasicBlock inserts a BasicBlock node.
func (g *Graph) AddBasicBlock(bb BasicBlock, ctx ContextID) core.NodeID {
	return g.AddNode(Node{
		Kind:    BasicBlock,
		Addr:    bb.Start,
		Size:    bb.Size,
		Code:    bb.Code,
		Context: ctx,
		Func:    bb.Func,
		Name:    fmt.Sprintf("bb_0x%x", bb.Start),
	})
}

// AddEntry inserts a function Entry node.
func (g *Graph) AddEntry(fn Function, ctx ContextID) core.NodeID {
	return g.AddNode(Node{
		Kind:    Entry,
		Addr:    fn.Entry,
		Context: ctx,
		Func:    fn.Entry,
		Name:    fmt.Sprintf("entry_%s", fn.Label),
	})
}

// AddExit inserts a function Exit node.
func (g *Graph) AddExit(fn Function, ctx ContextID) core.NodeID {
	return g.AddNode(Node{
		Kind:    Exit,
		Addr:    fn.Entry,
		Context: ctx,
		Func:    fn.Entry,
		Name:    fmt.Sprintf("exit_%s", fn.Label),
	})
}

// AddCallReturn inserts a matched CallPoint/ReturnPoint pair at contextAddr
// (the calling BB's address) in VIVU context ctx, calling calleeAddr, and
// registers them under their shared pairing key so that CallReturnPairs
// (and any later re-lookup, e.g. by the ILP generator) can find the match
// in O(1).
func (g *Graph) AddCallReturn(contextAddr, calleeAddr Address, ctx ContextID) (callPoint, returnPoint core.NodeID) {
	key := callReturnKey{contextAddr: contextAddr, context: ctx, calleeAddr: calleeAddr}

	callPoint = g.AddNode(Node{
		Kind:            CallPoint,
		Addr:            contextAddr,
		Context:         ctx,
		CallContextAddr: contextAddr,
		CalleeAddr:      calleeAddr,
		Name:            fmt.Sprintf("call_0x%x->0x%x", contextAddr, calleeAddr),
	})
	returnPoint = g.AddNode(Node{
		Kind:            ReturnPoint,
		Addr:            contextAddr,
		Context:         ctx,
		CallContextAddr: contextAddr,
		CalleeAddr:      calleeAddr,
		Name:            fmt.Sprintf("ret_0x%x<-0x%x", contextAddr, calleeAddr),
	})

	g.callPoints[key] = callPoint
	g.returnPoints[key] = returnPoint

	return callPoint, returnPoint
}

// AddControlEdge inserts a control-flow edge of the given kind between two
// already-existing nodes.
func (g *Graph) AddControlEdge(from, to core.NodeID, kind EdgeKind) core.EdgeID {
	return g.AddEdge(from, to, Edge{Kind: kind, CapHigh: InfiniteBound, Circulation: InfiniteBound})
}

// MatchedReturnPoint returns the ReturnPoint node id paired with callPoint,
// or false if callPoint is unknown or unpaired.
func (g *Graph) MatchedReturnPoint(callPoint core.NodeID) (core.NodeID, bool) {
	for key, cp := range g.callPoints {
		if cp == callPoint {
			rp, ok := g.returnPoints[key]
			return rp, ok
		}
	}
	return 0, false
}

// CallReturnPairs returns every (CallPoint, ReturnPoint) pair registered in
// the graph, in a deterministic order (sorted by pairing key fields), and
// verifies every call point has a matching return point and vice versa.
func (g *Graph) CallReturnPairs() ([][2]core.NodeID, error) {
	keys := make([]callReturnKey, 0, len(g.callPoints))
	for k := range g.callPoints {
		keys = append(keys, k)
	}
	for k := range g.returnPoints {
		if _, ok := g.callPoints[k]; !ok {
			return nil, fmt.Errorf("%w: return point at ctx-addr 0x%x ctx %d callee 0x%x", ErrUnpairedCallReturn, k.contextAddr, k.context, k.calleeAddr)
		}
	}
	sortKeys(keys)

	out := make([][2]core.NodeID, 0, len(keys))
	for _, k := range keys {
		rp, ok := g.returnPoints[k]
		if !ok {
			return nil, fmt.Errorf("%w: call point at ctx-addr 0x%x ctx %d callee 0x%x", ErrUnpairedCallReturn, k.contextAddr, k.context, k.calleeAddr)
		}
		out = append(out, [2]core.NodeID{g.callPoints[k], rp})
	}
	return out, nil
}

func sortKeys(keys []callReturnKey) {
	// simple insertion sort; call/return pair counts are small relative to
	// overall graph size and this keeps ILP generation deterministic
	// without pulling in sort.Slice's reflection overhead on a hot path.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && less(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

func less(a, b callReturnKey) bool {
	if a.contextAddr != b.contextAddr {
		return a.contextAddr < b.contextAddr
	}
	if a.context != b.context {
		return a.context < b.context
	}
	return a.calleeAddr < b.calleeAddr
}
