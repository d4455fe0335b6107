package disp

import (
	"testing"

	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
	"github.com/smetzlaff/isptap-sub001/internal/msg"
)

// TestScenarioTwoFunctionsDispEviction is scenario 5: main calls f, returns,
// calls g, returns, calls f again; f and g are both size 64 and the DISP is
// 128 bytes, so neither eviction nor a second f-reload is needed. Expected
// DISP penalty on call (Entry) edges is 4 (enter f) + 4 (enter g) + 0 (enter
// f again, still resident) = 8.
func TestScenarioTwoFunctionsDispEviction(t *testing.T) {
	const fAddr, gAddr cfg.Address = 0x1000, 0x2000

	g := msg.NewGraph()
	enterF1 := g.AddNode(msg.Node{Base: cfg.Node{Kind: cfg.CallPoint, CalleeAddr: fAddr}})
	exitF := g.AddNode(msg.Node{Base: cfg.Node{Kind: cfg.Exit, Func: fAddr}})
	enterG := g.AddNode(msg.Node{Base: cfg.Node{Kind: cfg.CallPoint, CalleeAddr: gAddr}})
	exitG := g.AddNode(msg.Node{Base: cfg.Node{Kind: cfg.Exit, Func: gAddr}})
	enterF2 := g.AddNode(msg.Node{Base: cfg.Node{Kind: cfg.CallPoint, CalleeAddr: fAddr}})

	g.AddEdge(enterF1, exitF, msg.Edge{Base: cfg.Edge{Kind: cfg.EdgeMeta}})
	g.AddEdge(exitF, enterG, msg.Edge{Base: cfg.Edge{Kind: cfg.ForwardStep}})
	g.AddEdge(enterG, exitG, msg.Edge{Base: cfg.Edge{Kind: cfg.EdgeMeta}})
	g.AddEdge(exitG, enterF2, msg.Edge{Base: cfg.Edge{Kind: cfg.ForwardStep}})
	g.Entry = enterF1

	d := New(Config{
		Size:                128,
		BlockSize:           16,
		BlockLoadCycles:     1,
		HitCtrlCycles:       0,
		MissCtrlCycles:      0,
		CallPipelineLatency: 0,
		FunctionSizes:       map[cfg.Address]uint32{fAddr: 64, gAddr: 64},
	})
	if err := d.Run(g); err != nil {
		t.Fatalf("Run: %v", err)
	}

	edgeOf := func(from core.NodeID) uint64 {
		edges := g.OutEdges(from)
		if len(edges) != 1 {
			t.Fatalf("node %d: expected exactly one out-edge, got %d", from, len(edges))
		}
		return g.Edge(edges[0]).DynamicPenalty
	}

	p1 := edgeOf(enterF1)
	p2 := edgeOf(exitF)
	p3 := edgeOf(enterG)
	p4 := edgeOf(exitG)

	if p1 != 4 {
		t.Fatalf("enter f penalty = %d, want 4", p1)
	}
	if p2 != 0 {
		t.Fatalf("exit f penalty = %d, want 0", p2)
	}
	if p3 != 4 {
		t.Fatalf("enter g penalty = %d, want 4", p3)
	}
	if p4 != 0 {
		t.Fatalf("exit g penalty = %d, want 0", p4)
	}

	if total := p1 + p3; total != 8 {
		t.Fatalf("total DISP penalty on call edges = %d, want 8", total)
	}
}

func TestOutsizedFunctionAborts(t *testing.T) {
	const bigAddr cfg.Address = 0x3000

	g := msg.NewGraph()
	enter := g.AddNode(msg.Node{Base: cfg.Node{Kind: cfg.CallPoint, CalleeAddr: bigAddr}})
	g.Entry = enter

	d := New(Config{
		Size:           64,
		IgnoreOutsized: false,
		FunctionSizes:  map[cfg.Address]uint32{bigAddr: 128},
	})
	if err := d.Run(g); err == nil {
		t.Fatalf("expected outsized-function error")
	}
}
