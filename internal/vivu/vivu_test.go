package vivu

import (
	"testing"

	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
)

func buildLoopFunction() (*cfg.Graph, *cfg.Function) {
	g := cfg.NewGraph()
	fn := cfg.Function{Entry: 0x100, Label: "f"}

	entry := g.AddEntry(fn, 0)
	head := g.AddBasicBlock(cfg.BasicBlock{Start: 0x104, Size: 4, Func: fn.Entry}, 0)
	body := g.AddBasicBlock(cfg.BasicBlock{Start: 0x108, Size: 4, Func: fn.Entry}, 0)
	out := g.AddBasicBlock(cfg.BasicBlock{Start: 0x10c, Size: 4, Func: fn.Entry}, 0)
	exit := g.AddExit(fn, 0)

	g.AddControlEdge(entry, head, cfg.ForwardStep)
	g.AddControlEdge(head, body, cfg.ForwardStep)
	g.AddControlEdge(head, out, cfg.ForwardJump)
	g.AddControlEdge(body, head, cfg.BackwardJump)
	g.AddControlEdge(out, exit, cfg.ForwardStep)

	return g, &fn
}

func TestBuildPeelsLoopIntoTwoCopiesOfHead(t *testing.T) {
	g, fn := buildLoopFunction()
	entry := findEntry(g, fn.Entry)

	m, err := Build(g, entry, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	headCount := 0
	for _, n := range m.Nodes() {
		if m.Node(n).Base.Addr == 0x104 {
			headCount++
		}
	}
	if headCount != 2 {
		t.Fatalf("loop head copies = %d, want 2 (peeled + steady)", headCount)
	}
}

func TestBuildRejectsRecursion(t *testing.T) {
	g, fn := buildLoopFunction()
	entry := findEntry(g, fn.Entry)

	callGraph := []cfg.CallGraphEdge{{Caller: fn.Entry, Callee: fn.Entry}}
	if _, err := Build(g, entry, callGraph); err == nil {
		t.Fatalf("expected recursion to be rejected")
	}
}

func TestToCFGRoundTripsNodeCount(t *testing.T) {
	g, fn := buildLoopFunction()
	entry := findEntry(g, fn.Entry)

	m, err := Build(g, entry, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out, origin := ToCFG(m)
	if out.NodeCount() != m.NodeCount() {
		t.Fatalf("ToCFG node count = %d, want %d", out.NodeCount(), m.NodeCount())
	}
	if len(origin) != out.NodeCount() {
		t.Fatalf("origin map size = %d, want %d", len(origin), out.NodeCount())
	}
}

func TestFromCFGIsIsomorphicWithoutLoopsOrCalls(t *testing.T) {
	g := cfg.NewGraph()
	fn := cfg.Function{Entry: 0x200, Label: "g"}
	a := g.AddBasicBlock(cfg.BasicBlock{Start: 0x200, Size: 2, Func: fn.Entry}, 0)
	b := g.AddBasicBlock(cfg.BasicBlock{Start: 0x202, Size: 2, Func: fn.Entry}, 0)
	g.AddControlEdge(a, b, cfg.ForwardStep)

	m := FromCFG(g)
	if m.NodeCount() != g.NodeCount() {
		t.Fatalf("FromCFG node count = %d, want %d", m.NodeCount(), g.NodeCount())
	}
	if m.EdgeCount() != g.EdgeCount() {
		t.Fatalf("FromCFG edge count = %d, want %d", m.EdgeCount(), g.EdgeCount())
	}
}

func findEntry(g *cfg.Graph, funcAddr cfg.Address) core.NodeID {
	for _, n := range g.Nodes() {
		node := g.Node(n)
		if node.Kind == cfg.Entry && node.Func == funcAddr {
			return n
		}
	}
	return 0
}
