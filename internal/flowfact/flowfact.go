// Package flowfact implements flow-fact enrichment (C2): it writes loop
// bounds onto BackwardJump edges and static-flow-constraint records onto
// whichever edges an external flow-fact source says they belong to.
package flowfact

import (
	"github.com/sirupsen/logrus"

	"github.com/smetzlaff/isptap-sub001/internal/cfg"
)

// Fact is what an external flow-fact source yields for one (function,
// source address, target address) key: either a loop bound or a static
// flow constraint, never both (§4.2).
type Fact struct {
	IsLoopBound bool
	LoopBound   int64

	Static cfg.StaticFlow
}

// Source is the external flow-fact file reader's interface: keyed by
// (function label, source-BB address, target-BB address or loop-head
// address). Out of scope to implement (§1); this package only depends on
// the interface.
type Source interface {
	Lookup(funcLabel string, sourceAddr, targetAddr cfg.Address) (Fact, bool)
}

// MapSource is a trivial in-memory Source, useful for tests and for the
// CLI driver when flow facts are supplied as a small parsed table rather
// than read from an external file.
type MapSource map[Key]Fact

// Key is the lookup key into a MapSource.
type Key struct {
	FuncLabel  string
	SourceAddr cfg.Address
	TargetAddr cfg.Address
}

func (m MapSource) Lookup(funcLabel string, sourceAddr, targetAddr cfg.Address) (Fact, bool) {
	f, ok := m[Key{FuncLabel: funcLabel, SourceAddr: sourceAddr, TargetAddr: targetAddr}]
	return f, ok
}

// Enrich writes circulation (loop bound) and static-flow records onto g's
// edges, using funcLabels to resolve a node's owning function address to
// the label the flow-fact source keys on. Missing loop bounds are not an
// error: per §4.2 they are logged and the loop is left unbounded (capacity
// high / circulation at cfg.InfiniteBound), so that the ILP phase detects
// the resulting unboundedness through the solver's status tag instead of
// failing early here.
func Enrich(g *cfg.Graph, funcLabels map[cfg.Address]string, source Source) {
	for _, e := range g.Edges() {
		edge := g.Edge(e)
		from, to := g.From(e), g.To(e)
		fromNode, toNode := g.Node(from), g.Node(to)
		label := funcLabels[fromNode.Func]

		if edge.Kind == cfg.BackwardJump {
			fact, ok := source.Lookup(label, fromNode.Addr, toNode.Addr)
			if ok && fact.IsLoopBound && fact.LoopBound > 0 {
				edge.Circulation = fact.LoopBound
				edge.CapHigh = fact.LoopBound
				continue
			}
			logrus.WithFields(logrus.Fields{
				"function": label,
				"head":     toNode.Addr,
			}).Warn("flowfact: no loop bound supplied, loop treated as unbounded")
			edge.Circulation = cfg.InfiniteBound
			edge.CapHigh = cfg.InfiniteBound
			continue
		}

		if fact, ok := source.Lookup(label, fromNode.Addr, toNode.Addr); ok && !fact.IsLoopBound {
			edge.Static = fact.Static
		}
	}
}
