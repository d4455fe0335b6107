package sisp

import (
	"fmt"

	"github.com/smetzlaff/isptap-sub001/internal/arch"
	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/ilp"
)

// xorVar/andnVar name the two linearization helper variables BBSISP-JP
// (§4.8 mode 2) introduces per edge that crosses a placement boundary.
func xorVar(e string) string  { return "xor_" + e }
func andnVar(e string) string { return "andn_" + e }

// jpEdge is one control-flow edge between two addressable blocks, carrying
// enough of its baseline activation and the decoded (connection,
// displacement) of its source block's terminating instruction to price a
// placement-dependent jump-penalty delta.
type jpEdge struct {
	src, tgt   cfg.Address
	activation int64
	conn       arch.Connection
	near       arch.Displacement
}

// collectJPEdges decodes each eligible block's own terminating instruction
// through decoder, per §4.8 mode 2 ("recovered by parsing the last
// instruction of its disassembled code through the ISA helper"), rather than
// inferring the connection kind from the CFG edge's own ForwardStep/Jump
// classification. A fall-through (ForwardStep) edge never needs re-encoding
// on a split placement, so it is reported as ContinuousAddressing regardless
// of what the block's own branch decodes to - that branch belongs to the
// block's other, taken-path out-edge.
func collectJPEdges(baseline *cfg.Graph, eligible map[cfg.Address]bool, decoder arch.DisplacementDecoder) []jpEdge {
	var out []jpEdge
	for _, n := range baseline.Nodes() {
		bn := baseline.Node(n)
		if bn.Kind != cfg.BasicBlock || !eligible[bn.Addr] {
			continue
		}
		conn, disp := decoder.Decode(bn.Code)
		for _, e := range baseline.OutEdges(n) {
			edge := baseline.Edge(e)
			tgt := baseline.Node(baseline.To(e))
			if tgt.Kind != cfg.BasicBlock || !eligible[tgt.Addr] {
				continue
			}
			edgeConn, edgeDisp := conn, disp
			if edge.Kind == cfg.ForwardStep {
				edgeConn, edgeDisp = arch.ContinuousAddressing, arch.NoDisplacement
			}
			out = append(out, jpEdge{src: bn.Addr, tgt: tgt.Addr, activation: edge.Activation, conn: edgeConn, near: edgeDisp})
		}
	}
	return out
}

// buildJumpPenaltyKnapsack implements BBSISP-JP: the plain Knapsack of
// BBSISP, extended with an XOR/ANDN-linearized correction term for every
// edge whose two endpoints are eligible for independent placement. The
// edge's branch displacement may widen when its source and target end up on
// different sides of the on-chip/off-chip split (the jump no longer
// resolves within the scratchpad's short-displacement range), so the
// objective must subtract the resulting penalty delta rather than assume it
// away as BBSISP does.
//
// For boolean on-chip indicators a_src, a_tgt, exactly-one-of (XOR) is
// linearized as the usual four inequalities, and AND-NOT (src on-chip, tgt
// off-chip - the direction a widened displacement actually costs) as three:
//
//	xor >= a_src - a_tgt         andn <= a_src
//	xor >= a_tgt - a_src         andn <= 1 - a_tgt
//	xor <= a_src + a_tgt         andn >= a_src - a_tgt
//	xor <= 2 - a_src - a_tgt
//
// The objective subtracts activation(e) * penaltyDelta(e) * andn_e, so a
// highly-executed edge that would gain a jump penalty from a split placement
// pulls the allocator towards keeping both endpoints together.
func buildJumpPenaltyKnapsack(baseline *cfg.Graph, blocks []Block, metric ilp.Metric, scratchpadSize uint32, a arch.Config, decoder arch.DisplacementDecoder) (*ilp.Model, error) {
	m, err := buildKnapsack(BBSISPJP, baseline, blocks, metric, scratchpadSize)
	if err != nil {
		return nil, err
	}
	return applyJumpPenaltyTerms(m, baseline, blocks, a, decoder)
}

// applyJumpPenaltyTerms adds the XOR/ANDN linearization correction terms to
// an already-built allocation model m, shared by BBSISP-JP and its
// WCP-sensitive counterpart (BBSISP-JP-WCP).
func applyJumpPenaltyTerms(m *ilp.Model, baseline *cfg.Graph, blocks []Block, a arch.Config, decoder arch.DisplacementDecoder) (*ilp.Model, error) {
	eligible := make(map[cfg.Address]bool, len(blocks))
	for _, b := range blocks {
		eligible[b.Addr] = true
	}

	for i, e := range collectJPEdges(baseline, eligible, decoder) {
		if e.activation <= 0 {
			continue
		}
		delta := jumpPenaltyDelta(a, e.conn, e.near)
		if delta == 0 {
			continue
		}

		name := fmt.Sprintf("%x_%x_%d", e.src, e.tgt, i)
		xv, av := xorVar(name), andnVar(name)
		srcVar, tgtVar := blockVar(e.src), blockVar(e.tgt)

		m.DeclareBin(xv)
		m.DeclareBin(av)

		m.AddConstraint(ilp.Constraint{Name: "xor1_" + name, Expr: ilp.NewExpr().Add(xv, 1).Add(srcVar, -1).Add(tgtVar, 1), Kind: ilp.Ge, RHS: 0})
		m.AddConstraint(ilp.Constraint{Name: "xor2_" + name, Expr: ilp.NewExpr().Add(xv, 1).Add(srcVar, 1).Add(tgtVar, -1), Kind: ilp.Ge, RHS: 0})
		m.AddConstraint(ilp.Constraint{Name: "xor3_" + name, Expr: ilp.NewExpr().Add(xv, 1).Add(srcVar, -1).Add(tgtVar, -1), Kind: ilp.Le, RHS: 0})
		m.AddConstraint(ilp.Constraint{Name: "xor4_" + name, Expr: ilp.NewExpr().Add(xv, 1).Add(srcVar, 1).Add(tgtVar, 1), Kind: ilp.Le, RHS: 2})

		m.AddConstraint(ilp.Constraint{Name: "andn1_" + name, Expr: ilp.NewExpr().Add(av, 1).Add(srcVar, -1), Kind: ilp.Le, RHS: 0})
		m.AddConstraint(ilp.Constraint{Name: "andn2_" + name, Expr: ilp.NewExpr().Add(av, 1).Add(tgtVar, 1), Kind: ilp.Le, RHS: 1})
		m.AddConstraint(ilp.Constraint{Name: "andn3_" + name, Expr: ilp.NewExpr().Add(av, 1).Add(srcVar, -1).Add(tgtVar, 1), Kind: ilp.Ge, RHS: 0})

		weight := float64(uint64(e.activation) * delta)
		if weight != 0 {
			m.Objective.Add(av, -weight)
		}
	}

	return m, nil
}

// jumpPenaltyDelta prices how much the block's own decoded displacement
// (near, recovered by collectJPEdges from its terminating instruction) would
// grow if the jump had to reach across the on-chip/off-chip boundary into a
// long-displacement encoding (DispIndirect), for the given connection kind.
// Continuous (fall-through) edges never need re-encoding.
func jumpPenaltyDelta(a arch.Config, conn arch.Connection, near arch.Displacement) uint64 {
	if conn == arch.ContinuousAddressing {
		return 0
	}
	nearPenalty := a.PenaltyFor(conn, near)
	far := a.PenaltyFor(conn, arch.DispIndirect)
	if far <= nearPenalty {
		return 0
	}
	return far - nearPenalty
}
