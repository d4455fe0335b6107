package sisp

import (
	"strings"
	"testing"

	"github.com/smetzlaff/isptap-sub001/internal/arch"
	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/ilp"
)

// buildTwoBlockGraph wires two independent basic blocks, each with a known
// memory penalty and size, through the super-entry/super-exit so the WCET
// metric's Benefit() computation has something to read.
func buildTwoBlockGraph(t *testing.T) (*cfg.Graph, []Block) {
	t.Helper()
	g := cfg.NewGraph()
	fn := cfg.Function{Entry: 0x0, Label: "f"}

	b1 := g.AddBasicBlock(cfg.BasicBlock{Start: 0x0, Size: 8, Func: fn.Entry}, 0)
	b2 := g.AddBasicBlock(cfg.BasicBlock{Start: 0x8, Size: 16, Func: fn.Entry}, 0)

	e1 := g.AddControlEdge(g.SuperEntry, b1, cfg.ForwardStep)
	e2 := g.AddControlEdge(b1, b2, cfg.ForwardStep)
	e3 := g.AddControlEdge(b2, g.SuperExit, cfg.ForwardStep)

	g.Edge(e1).MemPenalty = 0
	g.Edge(e2).MemPenalty = 100
	g.Edge(e3).MemPenalty = 1

	g.Edge(e1).Activation = 1
	g.Edge(e2).Activation = 1
	g.Edge(e3).Activation = 1

	blocks := []Block{
		{Addr: 0x0, Func: fn.Entry, Size: 8},
		{Addr: 0x8, Func: fn.Entry, Size: 16},
	}
	return g, blocks
}

// TestBuildKnapsackPrefersHigherBenefitPerByte is scenario 6: a scratchpad
// too small for both blocks must still produce a feasible model whose
// objective favors the high-memory-penalty block.
func TestBuildKnapsackPrefersHigherBenefitPerByte(t *testing.T) {
	g, blocks := buildTwoBlockGraph(t)

	m, err := Allocate(BBSISP, g, blocks, ilp.WCET, 16, arch.DefaultCarCoreConfig(), arch.NewDecoder(arch.CarCore))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	text := m.Serialize()
	if !strings.Contains(text, "a_0") || !strings.Contains(text, "a_8") {
		t.Fatalf("missing block variables in model:\n%s", text)
	}
	if !strings.Contains(text, "scratchpad_size") {
		t.Fatalf("missing size constraint:\n%s", text)
	}

	// b1 (Benefit 100*1=100) must outweigh b2 (Benefit 1*1=1) in the
	// objective, since the first block's out-edge carries the larger
	// memory-penalty*activation product.
	if m.Objective.Coeff("a_0") <= m.Objective.Coeff("a_8") {
		t.Fatalf("expected block at 0x0 to have the larger objective coefficient")
	}
}

func TestHarvestComputesUsedSize(t *testing.T) {
	_, blocks := buildTwoBlockGraph(t)
	vars := map[cfg.Address]string{0x0: blockVar(0x0), 0x8: blockVar(0x8)}
	res := ilp.Result{Values: map[string]int64{blockVar(0x0): 1, blockVar(0x8): 0}, Status: ilp.OptimalSolution}

	out := Harvest(blocks, vars, res)
	if !out.Selected[0x0] || out.Selected[0x8] {
		t.Fatalf("unexpected selection: %+v", out.Selected)
	}
	if out.UsedSize != 8 {
		t.Fatalf("used size = %d, want 8", out.UsedSize)
	}
}

// TestBuildFunctionKnapsackAggregatesPerFunction is scenario 6 at function
// granularity: FSISP-OLD must aggregate both blocks (same function) into a
// single function-level variable.
func TestBuildFunctionKnapsackAggregatesPerFunction(t *testing.T) {
	g, blocks := buildTwoBlockGraph(t)

	m, err := Allocate(FSISPOLD, g, blocks, ilp.WCET, 16, arch.DefaultCarCoreConfig(), arch.NewDecoder(arch.CarCore))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	text := m.Serialize()
	if !strings.Contains(text, "f_0") {
		t.Fatalf("expected a function-level variable, got:\n%s", text)
	}
	if strings.Contains(text, "a_0") {
		t.Fatalf("function-granularity model should not declare per-block variables:\n%s", text)
	}
}

// TestBuildJumpPenaltyAware exercises BBSISP-JP's XOR/ANDN linearization
// wiring: a jump edge between two eligible blocks must introduce helper
// variables and constraints beyond the plain knapsack.
func TestBuildJumpPenaltyAware(t *testing.T) {
	g := cfg.NewGraph()
	fn := cfg.Function{Entry: 0x0, Label: "f"}
	b1 := g.AddBasicBlock(cfg.BasicBlock{Start: 0x0, Size: 8, Code: "j8 0x8", Func: fn.Entry}, 0)
	b2 := g.AddBasicBlock(cfg.BasicBlock{Start: 0x8, Size: 8, Func: fn.Entry}, 0)
	g.AddControlEdge(g.SuperEntry, b1, cfg.ForwardStep)
	e := g.AddControlEdge(b1, b2, cfg.ForwardJump)
	g.AddControlEdge(b2, g.SuperExit, cfg.ForwardStep)
	g.Edge(e).Activation = 5

	blocks := []Block{
		{Addr: 0x0, Func: fn.Entry, Size: 8},
		{Addr: 0x8, Func: fn.Entry, Size: 8},
	}

	m, err := Allocate(BBSISPJP, g, blocks, ilp.WCET, 8, arch.DefaultCarCoreConfig(), arch.NewDecoder(arch.CarCore))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	text := m.Serialize()
	if !strings.Contains(text, "andn") {
		t.Fatalf("expected an andn_ helper variable in the jump-penalty model:\n%s", text)
	}
}
