// Package driver implements the analysis orchestrator (C9): it sequences
// flow-fact enrichment, cost calculation, the VIVU/DFA dynamic-memory round,
// the IPET encode/solve step, and - for static memories - the scratchpad
// allocation round with its re-cost and re-solve, then hands the result to
// the memory-size stepper and the result checker.
package driver

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/smetzlaff/isptap-sub001/internal/arch"
	"github.com/smetzlaff/isptap-sub001/internal/cache"
	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
	"github.com/smetzlaff/isptap-sub001/internal/cost"
	"github.com/smetzlaff/isptap-sub001/internal/disp"
	"github.com/smetzlaff/isptap-sub001/internal/flowfact"
	"github.com/smetzlaff/isptap-sub001/internal/ilp"
	"github.com/smetzlaff/isptap-sub001/internal/sisp"
	"github.com/smetzlaff/isptap-sub001/internal/vivu"
)

// ErrSolverFailed wraps a solver status that forbids emitting a WCET value
// (§7 SolverError: ErrorWhileSolving or ProblemUnbound).
var ErrSolverFailed = errors.New("driver: solver did not return a usable solution")

// MemoryKind selects whether the target memory is dynamically managed
// (cache/DISP, needs the VIVU+DFA round) or statically allocated (SISP,
// needs the allocation+re-cost+re-solve round). §4.9.
type MemoryKind int

const (
	StaticMemory MemoryKind = iota
	DynamicCache
	DynamicDISP
)

// Config is everything one Run needs beyond the raw CFG: the external
// collaborators (flow-fact source, displacement decoder, ILP solver) plus
// the analysis parameters proper.
type Config struct {
	Arch      arch.Config
	Decoder   arch.DisplacementDecoder
	FlowFacts flowfact.Source
	FuncLabels map[cfg.Address]string

	Metric ilp.Metric
	Memory MemoryKind

	CacheCfg cache.Config
	DispCfg  disp.Config

	SISPMode      sisp.Mode
	ScratchpadSize uint32

	Solver ilp.Solver
}

// Report is one Run's complete output: the WCET estimate, the solver status,
// and (when a static-memory allocation round ran) the chosen on-chip set.
type Report struct {
	WCET            uint64
	Status          ilp.Status
	AllocatedBlocks map[cfg.Address]bool
	UsedSize        uint32
}

// Run sequences the full pipeline once, per §4.9's data flow: raw CFG ->
// enrich -> cost -> (dynamic memory: VIVU -> DFA -> convert-back) -> ILP ->
// (static memory: allocator -> re-cost -> ILP again).
func Run(g *cfg.Graph, root core.NodeID, callGraph []cfg.CallGraphEdge, c Config) (*Report, error) {
	flowfact.Enrich(g, c.FuncLabels, c.FlowFacts)

	calc := cost.New(c.Arch, c.Decoder)
	calc.Compute(g)

	working := g
	if c.Memory == DynamicCache || c.Memory == DynamicDISP {
		annotated, err := runDynamicRound(g, root, callGraph, c)
		if err != nil {
			return nil, err
		}
		working = annotated
	}

	wcet, status, err := solveOnce(working, c)
	if err != nil {
		return nil, err
	}
	report := &Report{WCET: wcet, Status: status}

	if c.Memory == StaticMemory && c.ScratchpadSize > 0 {
		if err := allocateAndResolve(working, c, report); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// runDynamicRound performs VIVU expansion, runs the configured DFA over the
// resulting MSG, and converts the penalty-annotated MSG back to a CFG.
func runDynamicRound(g *cfg.Graph, root core.NodeID, callGraph []cfg.CallGraphEdge, c Config) (*cfg.Graph, error) {
	m, err := vivu.Build(g, root, callGraph)
	if err != nil {
		return nil, fmt.Errorf("vivu: %w", err)
	}

	switch c.Memory {
	case DynamicCache:
		if err := cache.New(c.CacheCfg).Run(m); err != nil {
			return nil, fmt.Errorf("cache dfa: %w", err)
		}
	case DynamicDISP:
		if err := disp.New(c.DispCfg).Run(m); err != nil {
			return nil, fmt.Errorf("disp dfa: %w", err)
		}
	}

	out, _ := vivu.ToCFG(m)
	return out, nil
}

// solveOnce serializes g's IPET model, invokes the solver, writes the result
// back onto g, and returns the resulting WCET (or the selected metric's
// value) together with the solution status.
func solveOnce(g *cfg.Graph, c Config) (uint64, ilp.Status, error) {
	model, vars, err := ilp.Build(g, c.Metric)
	if err != nil {
		return 0, ilp.SolutionNotCalculated, fmt.Errorf("ilp build: %w", err)
	}

	text, err := c.Solver.Solve(model.Serialize())
	if err != nil {
		return 0, ilp.ErrorWhileSolving, fmt.Errorf("%w: %v", ErrSolverFailed, err)
	}

	res := ilp.ParseOutput(text)
	if res.Status == ilp.ErrorWhileSolving || res.Status == ilp.ProblemUnbound {
		return 0, res.Status, fmt.Errorf("%w: %s", ErrSolverFailed, res.Status)
	}

	ilp.WriteBack(g, vars, res, c.Metric, res.Objective)

	var total uint64
	for edgeID := range vars {
		edge := g.Edge(edgeID)
		total += uint64(edge.Activation) * weightOf(*edge, c.Metric)
	}

	return total, res.Status, nil
}

func weightOf(e cfg.Edge, metric ilp.Metric) uint64 {
	if metric == ilp.WCET {
		return e.Cost + e.MemPenalty
	}
	return e.Cost
}

// allocateAndResolve runs the static scratchpad allocator, applies the
// chosen placement to g's costs, and re-solves the IPET model, updating
// report in place with the post-allocation WCET.
func allocateAndResolve(g *cfg.Graph, c Config, report *Report) error {
	blocks := collectBlocks(g)

	model, err := sisp.Allocate(c.SISPMode, g, blocks, c.Metric, c.ScratchpadSize, c.Arch, c.Decoder)
	if err != nil {
		return fmt.Errorf("sisp allocate: %w", err)
	}

	text, err := c.Solver.Solve(model.Serialize())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSolverFailed, err)
	}
	res := ilp.ParseOutput(text)
	if res.Status == ilp.ErrorWhileSolving || res.Status == ilp.ProblemUnbound {
		return fmt.Errorf("%w: %s", ErrSolverFailed, res.Status)
	}

	vars := make(map[cfg.Address]string, len(blocks))
	for _, b := range blocks {
		vars[b.Addr] = sisp.VarFor(c.SISPMode, b)
	}
	harvested := sisp.Harvest(blocks, vars, res)
	if harvested.UsedSize > c.ScratchpadSize {
		logrus.WithFields(logrus.Fields{"used": harvested.UsedSize, "budget": c.ScratchpadSize}).
			Warn("sisp: solver-reported allocation exceeds the configured scratchpad size")
	}

	calc := cost.New(c.Arch, c.Decoder)
	calc.Compute(g)
	calc.ConsiderMemoryAssignment(g, harvested.Selected, c.SISPMode == sisp.BBSISPJP || c.SISPMode == sisp.BBSISPJPWCP)

	wcet, status, err := solveOnce(g, c)
	if err != nil {
		return err
	}

	report.WCET = wcet
	report.Status = status
	report.AllocatedBlocks = harvested.Selected
	report.UsedSize = harvested.UsedSize
	return nil
}

// collectBlocks enumerates every distinct basic-block address in g as a
// sisp.Block, sorted by address for deterministic ILP variable ordering.
func collectBlocks(g *cfg.Graph) []sisp.Block {
	seen := make(map[cfg.Address]sisp.Block)
	for _, n := range g.Nodes() {
		node := g.Node(n)
		if node.Kind != cfg.BasicBlock {
			continue
		}
		seen[node.Addr] = sisp.Block{Addr: node.Addr, Func: node.Func, Size: node.Size}
	}

	out := make([]sisp.Block, 0, len(seen))
	for _, b := range seen {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
