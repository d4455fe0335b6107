package flowfact

import (
	"testing"

	"github.com/smetzlaff/isptap-sub001/internal/cfg"
)

func TestEnrichSetsLoopBound(t *testing.T) {
	g := cfg.NewGraph()
	fn := cfg.Function{Entry: 0x1000, Label: "f"}
	h := g.AddBasicBlock(cfg.BasicBlock{Start: 0x1000, Size: 4, Func: fn.Entry}, 0)
	b := g.AddBasicBlock(cfg.BasicBlock{Start: 0x1004, Size: 4, Func: fn.Entry}, 0)
	g.AddControlEdge(h, b, cfg.ForwardStep)
	back := g.AddControlEdge(b, h, cfg.BackwardJump)

	source := MapSource{
		{FuncLabel: "f", SourceAddr: 0x1004, TargetAddr: 0x1000}: {IsLoopBound: true, LoopBound: 10},
	}
	Enrich(g, map[cfg.Address]string{fn.Entry: "f"}, source)

	if got := g.Edge(back).Circulation; got != 10 {
		t.Fatalf("Circulation = %d, want 10", got)
	}
}

func TestEnrichMissingLoopBoundIsUnbounded(t *testing.T) {
	g := cfg.NewGraph()
	fn := cfg.Function{Entry: 0x2000, Label: "g"}
	h := g.AddBasicBlock(cfg.BasicBlock{Start: 0x2000, Size: 4, Func: fn.Entry}, 0)
	b := g.AddBasicBlock(cfg.BasicBlock{Start: 0x2004, Size: 4, Func: fn.Entry}, 0)
	g.AddControlEdge(h, b, cfg.ForwardStep)
	back := g.AddControlEdge(b, h, cfg.BackwardJump)

	Enrich(g, map[cfg.Address]string{fn.Entry: "g"}, MapSource{})

	if got := g.Edge(back).Circulation; got != cfg.InfiniteBound {
		t.Fatalf("Circulation = %d, want InfiniteBound", got)
	}
}

func TestEnrichStaticFlowSharedID(t *testing.T) {
	g := cfg.NewGraph()
	fn := cfg.Function{Entry: 0x3000, Label: "h"}
	a := g.AddBasicBlock(cfg.BasicBlock{Start: 0x3000, Size: 4, Func: fn.Entry}, 0)
	b := g.AddBasicBlock(cfg.BasicBlock{Start: 0x3004, Size: 4, Func: fn.Entry}, 0)
	c := g.AddBasicBlock(cfg.BasicBlock{Start: 0x3008, Size: 4, Func: fn.Entry}, 0)
	e1 := g.AddControlEdge(a, b, cfg.ForwardJump)
	e2 := g.AddControlEdge(a, c, cfg.ForwardJump)

	sf := cfg.StaticFlow{Present: true, ID: 7, Cmp: cfg.FlowMax, Bound: 5}
	source := MapSource{
		{FuncLabel: "h", SourceAddr: 0x3000, TargetAddr: 0x3004}: {Static: sf},
		{FuncLabel: "h", SourceAddr: 0x3000, TargetAddr: 0x3008}: {Static: sf},
	}
	Enrich(g, map[cfg.Address]string{fn.Entry: "h"}, source)

	if !g.Edge(e1).Static.Present || g.Edge(e1).Static.ID != 7 {
		t.Fatalf("edge1 static flow not set: %+v", g.Edge(e1).Static)
	}
	if !g.Edge(e2).Static.Present || g.Edge(e2).Static.ID != 7 {
		t.Fatalf("edge2 static flow not set: %+v", g.Edge(e2).Static)
	}
}
