// Package cost implements the cost calculator (C3): it assigns per-edge
// on-chip/off-chip execution cost and the resulting memory penalty, from an
// architecture descriptor, and lets later phases (the static scratchpad
// allocators of C8) mark a set of blocks as resident on-chip and have their
// penalties zeroed out.
package cost

import (
	"github.com/smetzlaff/isptap-sub001/internal/arch"
	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
)

// Calculator computes edge costs for one architecture descriptor.
type Calculator struct {
	Arch    arch.Config
	Decoder arch.DisplacementDecoder
}

// New constructs a Calculator.
func New(a arch.Config, d arch.DisplacementDecoder) *Calculator {
	return &Calculator{Arch: a, Decoder: d}
}

// cyclesFor approximates the on-chip execution time of a bbSize-byte basic
// block: one fetch-bundle per FetchWidth bytes, at CacheHitCycles per
// bundle, with a floor of one bundle so an empty block still costs
// something (§8 "Empty loop body ... contributes exactly b to the loop
// head's flow" requires a non-zero per-iteration cost to be meaningful).
func (c *Calculator) cyclesFor(size uint32) uint64 {
	if c.Arch.FetchWidth == 0 {
		return uint64(size)
	}
	bundles := (uint64(size) + uint64(c.Arch.FetchWidth) - 1) / uint64(c.Arch.FetchWidth)
	if bundles == 0 {
		bundles = 1
	}
	return bundles * c.Arch.CacheHitCycles
}

// Compute assigns Cost/OnChipCost/OffChipCost/MemPenalty to every edge of
// g, re-deriving them from scratch (so re-running it with no assignment
// reproduces the baseline costs exactly, per §8's idempotence property).
// A basic block's own out-edges carry its execution cost; CallPoint
// out-edges and function Exit out-edges carry the architecture's
// call/return pipeline latency; every other node contributes zero cost
// (meta control transitions have no execution time of their own).
func (c *Calculator) Compute(g *cfg.Graph) {
	for _, n := range g.Nodes() {
		node := g.Node(n)
		switch node.Kind {
		case cfg.BasicBlock:
			cycles := c.cyclesFor(node.Size)
			off := cycles + c.Arch.OffChipAccessStall
			c.setOutEdges(g, n, cycles, off)
		case cfg.CallPoint:
			c.setOutEdges(g, n, c.Arch.CallPipelineLatency, c.Arch.CallPipelineLatency)
		case cfg.Exit:
			c.setOutEdges(g, n, c.Arch.ReturnPipelineLatency, c.Arch.ReturnPipelineLatency)
		default:
			c.setOutEdges(g, n, 0, 0)
		}
	}
}

func (c *Calculator) setOutEdges(g *cfg.Graph, n core.NodeID, onChip, offChip uint64) {
	for _, e := range g.OutEdges(n) {
		edge := g.Edge(e)
		edge.OnChipCost = onChip
		edge.OffChipCost = offChip
		edge.Cost = onChip
		if offChip > onChip {
			edge.MemPenalty = offChip - onChip
		} else {
			edge.MemPenalty = 0
		}
	}
}

// ConsiderMemoryAssignment zeroes the memory penalty of every out-edge of
// each basic block whose start address is in blocks (they are now resident
// on-chip, so their accesses never pay the off-chip stall). When
// recomputePenalties is set (the jump-penalty-aware SISP modes), it
// additionally folds the architecture's (connection, displacement)
// jump-penalty table into the edge cost of every out-edge, since relocating
// a block on-chip can change the encoded displacement of its terminating
// branch.
func (c *Calculator) ConsiderMemoryAssignment(g *cfg.Graph, blocks map[cfg.Address]bool, recomputePenalties bool) {
	for _, n := range g.Nodes() {
		node := g.Node(n)
		if node.Kind != cfg.BasicBlock || !blocks[node.Addr] {
			continue
		}
		for _, e := range g.OutEdges(n) {
			edge := g.Edge(e)
			edge.MemPenalty = 0
			edge.Cost = edge.OnChipCost

			if recomputePenalties && c.Decoder != nil {
				conn, disp := c.Decoder.Decode(node.Code)
				edge.Cost += c.Arch.PenaltyFor(conn, disp)
			}
		}
	}
}
