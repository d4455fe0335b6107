package ilp

import (
	"fmt"

	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
)

// Metric selects which quantity the ILP's objective maximizes (§6
// use_metric).
type Metric int

const (
	WCET Metric = iota
	MDIC        // dynamic instruction count
	MPL         // path length (edges weighted by Cost, as for MDIC)
)

// VarForEdge is the deterministic edge->ILP-variable-name mapping the
// builder produces, needed by the caller to write solver results back onto
// the graph.
type VarForEdge map[core.EdgeID]string

func edgeVar(e core.EdgeID) string {
	return fmt.Sprintf("f_%d", e)
}

// Build translates g into a maximization ILP whose objective equals the
// WCET (or the selected alternate metric), per §4.7. It mutates g by adding
// the synthetic inducting back edge from the super-exit to the super-entry.
func Build(g *cfg.Graph, metric Metric) (*Model, VarForEdge, error) {
	back := inductingBackEdge(g)

	vars := make(VarForEdge)
	for _, e := range g.Edges() {
		vars[e] = edgeVar(e)
	}

	m := NewModel(true)
	for _, e := range g.Edges() {
		m.DeclareInt(vars[e])
		weight := float64(weightOf(*g.Edge(e), metric))
		if weight != 0 {
			m.Objective.Add(vars[e], weight)
		}
	}

	// Injection: the synthetic back edge carries flow exactly once.
	m.AddConstraint(Constraint{
		Name: "inject",
		Expr: NewExpr().Add(vars[back], 1),
		Kind: Eq,
		RHS:  1,
	})

	addFlowConservation(g, m, vars)
	if err := addCallReturnMatching(g, m, vars); err != nil {
		return nil, nil, err
	}
	addLoopBounds(g, m, vars)
	addStaticFlowFacts(g, m, vars)

	return m, vars, nil
}

// inductingBackEdge returns g's existing super-exit->super-entry synthetic
// edge, or adds one if Build has not run on this graph before. Re-running
// Build on the same graph (the memory-size stepper's re-solve round, §4.9)
// must not accumulate a second inducting edge.
func inductingBackEdge(g *cfg.Graph) core.EdgeID {
	for _, e := range g.OutEdges(g.SuperExit) {
		if g.Edge(e).Kind == cfg.InductingBackEdge {
			return e
		}
	}
	return g.AddEdge(g.SuperExit, g.SuperEntry, cfg.Edge{
		Kind:        cfg.InductingBackEdge,
		Circulation: -1,
		CapHigh:     1,
		CapLow:      1,
	})
}

func weightOf(e cfg.Edge, metric Metric) uint64 {
	switch metric {
	case WCET:
		return e.Cost + e.MemPenalty
	default: // MDIC, MPL
		return e.Cost
	}
}

// addFlowConservation adds, for every node, sum(in-flows) = sum(out-flows).
func addFlowConservation(g *cfg.Graph, m *Model, vars VarForEdge) {
	for _, n := range g.Nodes() {
		expr := NewExpr()
		for _, e := range g.InEdges(n) {
			expr.Add(vars[e], 1)
		}
		for _, e := range g.OutEdges(n) {
			expr.Add(vars[e], -1)
		}
		m.AddConstraint(Constraint{
			Name: fmt.Sprintf("flow_%d", n),
			Expr: expr,
			Kind: Eq,
			RHS:  0,
		})
	}
}

// addCallReturnMatching adds, for every matched (CallPoint, ReturnPoint)
// pair, flow(out-edge of CallPoint) = flow(in-edge of ReturnPoint).
func addCallReturnMatching(g *cfg.Graph, m *Model, vars VarForEdge) error {
	pairs, err := g.CallReturnPairs()
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		callOut := g.OutEdges(pair[0])
		retIn := g.InEdges(pair[1])
		if len(callOut) == 0 || len(retIn) == 0 {
			continue
		}
		expr := NewExpr().Add(vars[callOut[0]], 1).Add(vars[retIn[0]], -1)
		m.AddConstraint(Constraint{
			Name: fmt.Sprintf("callret_%d_%d", pair[0], pair[1]),
			Expr: expr,
			Kind: Eq,
			RHS:  0,
		})
	}
	return nil
}

// addLoopBounds adds, for every loop head whose back edge has a positive
// circulation bound c and whose injecting edge is I, sum(back-in) = c *
// sum(f_I). Unbounded loops (circulation == cfg.InfiniteBound) contribute no
// constraint: the ILP is then genuinely unbounded for that loop, surfaced by
// the solver's ProblemUnbound tag rather than rejected here.
func addLoopBounds(g *cfg.Graph, m *Model, vars VarForEdge) {
	for _, back := range g.BackwardEdges() {
		edge := g.Edge(back)
		if edge.Circulation <= 0 {
			continue
		}
		head := g.To(back)
		inject, err := g.InjectingEdge(head)
		if err != nil {
			continue
		}

		expr := NewExpr().Add(vars[back], 1).Add(vars[inject], -float64(edge.Circulation))
		m.AddConstraint(Constraint{
			Name: fmt.Sprintf("loopbound_%d", head),
			Expr: expr,
			Kind: Eq,
			RHS:  0,
		})
	}
}

// addStaticFlowFacts adds, for every distinct static-flow id, sum(flows in
// the group) {=,<=,>=} bound.
func addStaticFlowFacts(g *cfg.Graph, m *Model, vars VarForEdge) {
	groups := make(map[int]*LinearExpr)
	kinds := make(map[int]cfg.FlowCompare)
	bounds := make(map[int]int64)

	for _, e := range g.Edges() {
		sf := g.Edge(e).Static
		if !sf.Present {
			continue
		}
		if groups[sf.ID] == nil {
			groups[sf.ID] = NewExpr()
			kinds[sf.ID] = sf.Cmp
			bounds[sf.ID] = sf.Bound
		}
		groups[sf.ID].Add(vars[e], 1)
	}

	for id, expr := range groups {
		var kind ConstraintKind
		switch kinds[id] {
		case cfg.FlowMax:
			kind = Le
		case cfg.FlowMin:
			kind = Ge
		default:
			kind = Eq
		}
		m.AddConstraint(Constraint{
			Name: fmt.Sprintf("staticflow_%d", id),
			Expr: expr,
			Kind: kind,
			RHS:  float64(bounds[id]),
		})
	}
}
