package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
	"github.com/smetzlaff/isptap-sub001/internal/flowfact"
)

// fixture is the CLI's stand-in for the disassembly parser's output (an
// external collaborator, §1): a small JSON description of one program's
// functions, blocks and flow facts, good enough to drive the pipeline
// against hand-written programs without a real per-ISA disassembler.
type fixture struct {
	Root      string             `json:"root"`
	Functions []fixtureFunc      `json:"functions"`
	Edges     []fixtureEdge      `json:"edges"`
	Calls     []fixtureCall      `json:"calls"`
	CallGraph []fixtureCallGraph `json:"call_graph"`
	FlowFacts []fixtureFlowFact  `json:"flow_facts"`
}

type fixtureFunc struct {
	Label  string         `json:"label"`
	Entry  cfg.Address    `json:"entry"`
	Blocks []fixtureBlock `json:"blocks"`
}

type fixtureBlock struct {
	Start cfg.Address `json:"start"`
	Size  uint32      `json:"size"`
	Code  string      `json:"code"`
}

type fixtureEdge struct {
	Func string      `json:"func"`
	From cfg.Address `json:"from"`
	To   cfg.Address `json:"to"`
}

type fixtureCall struct {
	Func   string      `json:"func"`
	Site   cfg.Address `json:"site"`
	Callee string      `json:"callee"`
}

type fixtureCallGraph struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

type fixtureFlowFact struct {
	Func        string      `json:"func"`
	Source      cfg.Address `json:"source"`
	Target      cfg.Address `json:"target"`
	LoopBound   int64       `json:"loop_bound,omitempty"`
	StaticCmp   string      `json:"static_cmp,omitempty"`
	StaticID    int         `json:"static_id,omitempty"`
	StaticBound int64       `json:"static_bound,omitempty"`
}

// loaded is what loadFixture hands back: the assembled CFG plus the bits
// Run needs alongside it.
type loaded struct {
	Graph      *cfg.Graph
	Root       core.NodeID
	CallGraph  []cfg.CallGraphEdge
	FuncLabels map[cfg.Address]string
	FlowFacts  flowfact.MapSource
}

func loadFixture(path string) (*loaded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return buildFromFixture(f)
}

func buildFromFixture(f fixture) (*loaded, error) {
	g := cfg.NewGraph()

	funcLabels := make(map[cfg.Address]string)
	calleeEntry := make(map[string]cfg.Address)
	entryNode := make(map[string]core.NodeID)
	exitNode := make(map[string]core.NodeID)
	blockNode := make(map[string]map[cfg.Address]core.NodeID)
	callNode := make(map[string]map[cfg.Address]core.NodeID)
	blockOrder := make(map[string][]cfg.Address)
	callSites := make(map[string]map[cfg.Address]fixtureCall)

	for _, c := range f.Calls {
		if callSites[c.Func] == nil {
			callSites[c.Func] = make(map[cfg.Address]fixtureCall)
		}
		callSites[c.Func][c.Site] = c
	}

	for _, ff := range f.Functions {
		funcLabels[ff.Entry] = ff.Label
		calleeEntry[ff.Label] = ff.Entry
	}

	inNode := func(fn string, addr cfg.Address) (core.NodeID, bool) {
		if cp, ok := callNode[fn][addr]; ok {
			return cp, true
		}
		n, ok := blockNode[fn][addr]
		return n, ok
	}

	for _, ff := range f.Functions {
		fn := cfg.Function{Entry: ff.Entry, Label: ff.Label}
		entryNode[ff.Label] = g.AddEntry(fn, 0)
		exitNode[ff.Label] = g.AddExit(fn, 0)

		blockNode[ff.Label] = make(map[cfg.Address]core.NodeID)
		addrs := make([]cfg.Address, 0, len(ff.Blocks))
		for _, bb := range ff.Blocks {
			addrs = append(addrs, bb.Start)
			if call, isCallSite := callSites[ff.Label][bb.Start]; isCallSite {
				callPoint, returnPoint := g.AddCallReturn(bb.Start, calleeEntry[call.Callee], 0)
				if callNode[ff.Label] == nil {
					callNode[ff.Label] = make(map[cfg.Address]core.NodeID)
				}
				// Edges into this site enter through the call point.
				callNode[ff.Label][bb.Start] = callPoint
				g.AddEdge(callPoint, entryNode[call.Callee], cfg.Edge{Kind: cfg.ForwardJump, CapHigh: cfg.InfiniteBound, Circulation: cfg.InfiniteBound})
				g.AddEdge(exitNode[call.Callee], returnPoint, cfg.Edge{Kind: cfg.ForwardJump, CapHigh: cfg.InfiniteBound, Circulation: cfg.InfiniteBound})
				// Downstream edges addressed at this site continue from the
				// return point, mirroring the matched return (invariant 1, §3).
				blockNode[ff.Label][bb.Start] = returnPoint
				continue
			}
			blockNode[ff.Label][bb.Start] = g.AddBasicBlock(cfg.BasicBlock{
				Start: bb.Start, Size: bb.Size, Code: bb.Code, Func: ff.Entry,
			}, 0)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		blockOrder[ff.Label] = addrs

		if len(addrs) > 0 {
			first, _ := inNode(ff.Label, addrs[0])
			g.AddControlEdge(entryNode[ff.Label], first, cfg.ForwardStep)
		}
	}

	hasOutgoing := make(map[core.NodeID]bool)
	for _, e := range f.Edges {
		from, ok1 := blockNode[e.Func][e.From]
		to, ok2 := inNode(e.Func, e.To)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("fixture: edge %s 0x%x->0x%x references an unknown block", e.Func, e.From, e.To)
		}
		kind := cfg.ForwardStep
		if e.To <= e.From {
			kind = cfg.BackwardJump
		} else if !isAdjacent(blockOrder[e.Func], e.From, e.To) {
			kind = cfg.ForwardJump
		}
		g.AddControlEdge(from, to, kind)
		hasOutgoing[from] = true
	}

	for label, addrs := range blockOrder {
		for _, addr := range addrs {
			n := blockNode[label][addr]
			if !hasOutgoing[n] {
				g.AddControlEdge(n, exitNode[label], cfg.ForwardStep)
			}
		}
	}

	rootEntry, ok := entryNode[f.Root]
	if !ok {
		return nil, fmt.Errorf("fixture: root function %q not found", f.Root)
	}
	g.AddControlEdge(g.SuperEntry, rootEntry, cfg.ForwardStep)
	g.AddControlEdge(exitNode[f.Root], g.SuperExit, cfg.ForwardStep)

	callGraph := make([]cfg.CallGraphEdge, 0, len(f.CallGraph))
	for _, cg := range f.CallGraph {
		callGraph = append(callGraph, cfg.CallGraphEdge{Caller: calleeEntry[cg.Caller], Callee: calleeEntry[cg.Callee]})
	}

	facts := make(flowfact.MapSource)
	for _, ff := range f.FlowFacts {
		fact := flowfact.Fact{}
		if ff.LoopBound > 0 {
			fact.IsLoopBound = true
			fact.LoopBound = ff.LoopBound
		} else {
			fact.Static = cfg.StaticFlow{Present: true, ID: ff.StaticID, Bound: ff.StaticBound, Cmp: staticCmp(ff.StaticCmp)}
		}
		facts[flowfact.Key{FuncLabel: ff.Func, SourceAddr: ff.Source, TargetAddr: ff.Target}] = fact
	}

	return &loaded{
		Graph:      g,
		Root:       rootEntry,
		CallGraph:  callGraph,
		FuncLabels: funcLabels,
		FlowFacts:  facts,
	}, nil
}

func isAdjacent(order []cfg.Address, from, to cfg.Address) bool {
	for i, a := range order {
		if a == from {
			return i+1 < len(order) && order[i+1] == to
		}
	}
	return false
}

func staticCmp(s string) cfg.FlowCompare {
	switch s {
	case "max":
		return cfg.FlowMax
	case "min":
		return cfg.FlowMin
	default:
		return cfg.FlowExact
	}
}
