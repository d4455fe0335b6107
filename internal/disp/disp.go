// Package disp implements the dynamic instruction scratchpad data-flow
// analysis (C6): a function-granular ring buffer managed purely at call/exit
// events, whose concrete-state sets are brute-force (as for FIFO caches)
// since DISP replacement has no compact Must/May lattice either.
package disp

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
	"github.com/smetzlaff/isptap-sub001/internal/msg"
)

// Policy selects the DISP replacement discipline. Both are modeled as a
// byte-budget ring that always evicts its oldest resident entry first: the
// ring's trailing edge is the only evicted side by construction, which
// settles the "middle-overlap eviction" question the source only asserted
// (§9 open question (c)) by making the case structurally unreachable rather
// than merely unlikely.
type Policy int

const (
	FIFODisp Policy = iota
	StackDisp
)

// ErrOutsizedFunction is returned when a function larger than the DISP
// cannot be loaded and the configuration does not tolerate that.
var ErrOutsizedFunction = errors.New("disp: function larger than scratchpad and outsized functions are not ignored")

// Config configures one DISP DFA run.
type Config struct {
	Policy               Policy
	Size                 uint32 // total ring capacity, bytes
	BlockSize            uint32
	BlockLoadCycles      uint64
	HitCtrlCycles        uint64
	MissCtrlCycles       uint64
	CallPipelineLatency  uint64
	FetchMemIndependent  bool
	IgnoreOutsized       bool
	MaxConcreteStates    int
	FunctionSizes        map[cfg.Address]uint32
}

// Footprint is one resident function and its size in bytes.
type Footprint struct {
	Func cfg.Address
	Size uint32
}

// ConcreteState is one possible resident set, oldest entry first.
type ConcreteState []Footprint

func (s ConcreteState) totalSize() uint32 {
	var sum uint32
	for _, f := range s {
		sum += f.Size
	}
	return sum
}

func (s ConcreteState) contains(fn cfg.Address) bool {
	for _, f := range s {
		if f.Func == fn {
			return true
		}
	}
	return false
}

func (s ConcreteState) signature() string {
	out := ""
	for _, f := range s {
		out += fmt.Sprintf("%x:%d,", f.Func, f.Size)
	}
	return out
}

// insert appends fn (size bytes) if absent, evicting from the front (the
// oldest resident functions) until it fits.
func (s ConcreteState) insert(fn cfg.Address, size uint32, ringSize uint32) ConcreteState {
	if s.contains(fn) {
		return s
	}
	out := append(ConcreteState(nil), s...)
	out = append(out, Footprint{Func: fn, Size: size})
	for out.totalSize() > ringSize && len(out) > 1 {
		out = out[1:]
	}
	return out
}

// StateSet is the brute-force abstract state: a deduplicated set of
// concrete resident-function configurations.
type StateSet struct {
	States []ConcreteState
}

// ErrStateExplosion is returned when a DISP concrete-state set grows past
// its configured cap (§7 StateExplosion).
var ErrStateExplosion = errors.New("disp: concrete state set exceeds configured cap")

// Classification mirrors the cache DFA's three-way outcome.
type Classification int

const (
	Hit Classification = iota
	NC
	Miss
)

func classify(s StateSet, fn cfg.Address) Classification {
	if len(s.States) == 0 {
		return Miss
	}
	all, any := true, false
	for _, st := range s.States {
		if st.contains(fn) {
			any = true
		} else {
			all = false
		}
	}
	switch {
	case all:
		return Hit
	case any:
		return NC
	default:
		return Miss
	}
}

// Driver runs one DISP DFA pass over an MSG, triggering an Entry event at
// every CallPoint node and an Exit event at every Exit node.
type Driver struct {
	Cfg Config
}

func New(c Config) *Driver {
	return &Driver{Cfg: c}
}

// Run walks m's nodes in the forward topological order computed by
// topoForward (a LIFO work-list over the non-BackwardJump edges) and keeps
// one concrete-state set per node; msg.Node.Stack is not consulted.
func (d *Driver) Run(m *msg.Graph) error {
	order, err := topoForward(m)
	if err != nil {
		return err
	}

	states := make(map[core.NodeID]StateSet)
	states[m.Entry] = StateSet{States: []ConcreteState{{}}}

	for _, n := range order {
		st, ok := states[n]
		if !ok {
			st = StateSet{States: []ConcreteState{{}}}
		}

		node := m.Node(n)
		switch node.Base.Kind {
		case cfg.CallPoint:
			newSt, penalty, err := d.enter(node, st)
			if err != nil {
				return err
			}
			st = newSt
			d.addPenalty(m, n, penalty)
		case cfg.Exit:
			penalty := d.exit(node, st)
			d.addPenalty(m, n, penalty)
		}

		node.Valid = true
		node.MemState = st

		for _, e := range m.OutEdges(n) {
			if m.Edge(e).Base.Kind == cfg.BackwardJump {
				continue
			}
			to := m.To(e)
			merged, err := mergeStates(states[to], st, d.Cfg.MaxConcreteStates)
			if err != nil {
				return err
			}
			states[to] = merged
		}
	}
	return nil
}

func (d *Driver) addPenalty(m *msg.Graph, n core.NodeID, penalty uint64) {
	for _, e := range m.OutEdges(n) {
		m.Edge(e).DynamicPenalty += penalty
	}
}

// enter handles an Entry(caller->callee) event: classifies the callee
// against the current state, inserts it into every concrete state (subject
// to the outsized-function policy), and returns the penalty to charge.
func (d *Driver) enter(node *msg.Node, st StateSet) (StateSet, uint64, error) {
	callee := node.Base.CalleeAddr
	size := d.Cfg.FunctionSizes[callee]

	if size > d.Cfg.Size {
		if !d.Cfg.IgnoreOutsized {
			return st, 0, fmt.Errorf("%w: function 0x%x size %d > disp size %d", ErrOutsizedFunction, callee, size, d.Cfg.Size)
		}
		logrus.WithFields(logrus.Fields{"function": callee, "size": size}).
			Warn("disp: outsized function ignored, accesses stay off-chip")
		return st, 0, nil
	}

	cls := classify(st, callee)

	out := make([]ConcreteState, len(st.States))
	for i, s := range st.States {
		out[i] = s.insert(callee, size, d.Cfg.Size)
	}

	penalty := d.penaltyFor(cls, size)
	return StateSet{States: dedup(out)}, penalty, nil
}

// exit handles an Exit(callee->caller) event: the ring's content does not
// change, only the active anchor moves back to the caller. The
// classification checks the exiting function's own residency (per §4.5's
// scenario 5, "exit f = HIT"): it is resident unless something evicted it
// during its own body's execution.
func (d *Driver) exit(node *msg.Node, st StateSet) uint64 {
	exiting := node.Base.Func
	cls := classify(st, exiting)
	return d.penaltyFor(cls, d.Cfg.FunctionSizes[exiting])
}

func (d *Driver) penaltyFor(cls Classification, size uint32) uint64 {
	if cls == Hit {
		if d.Cfg.HitCtrlCycles <= d.Cfg.CallPipelineLatency {
			return 0
		}
		return d.Cfg.HitCtrlCycles - d.Cfg.CallPipelineLatency
	}

	// NC is charged at the miss penalty: a reload cannot be ruled out on
	// some feasible path, so a sound WCET bound must assume the worst.
	blocks := uint64(0)
	if d.Cfg.BlockSize > 0 {
		blocks = (uint64(size) + uint64(d.Cfg.BlockSize) - 1) / uint64(d.Cfg.BlockSize)
	}
	penalty := blocks*d.Cfg.BlockLoadCycles + d.Cfg.MissCtrlCycles
	if d.Cfg.FetchMemIndependent && penalty >= d.Cfg.CallPipelineLatency {
		penalty -= d.Cfg.CallPipelineLatency
	}
	return penalty
}

func mergeStates(existing StateSet, st StateSet, maxStates int) (StateSet, error) {
	merged := append(append([]ConcreteState(nil), existing.States...), st.States...)
	deduped := dedup(merged)
	if maxStates > 0 && len(deduped) > maxStates {
		return StateSet{States: deduped}, fmt.Errorf("%w: %d concrete states (cap %d)", ErrStateExplosion, len(deduped), maxStates)
	}
	return StateSet{States: deduped}, nil
}

func dedup(states []ConcreteState) []ConcreteState {
	seen := make(map[string]bool, len(states))
	out := make([]ConcreteState, 0, len(states))
	for _, s := range states {
		sig := s.signature()
		if !seen[sig] {
			seen[sig] = true
			out = append(out, s)
		}
	}
	return out
}

func topoForward(m *msg.Graph) ([]core.NodeID, error) {
	indeg := make(map[core.NodeID]int)
	for _, n := range m.Nodes() {
		for _, e := range m.InEdges(n) {
			if m.Edge(e).Base.Kind != cfg.BackwardJump {
				indeg[n]++
			}
		}
	}

	stack := []core.NodeID{m.Entry}
	visited := map[core.NodeID]bool{}
	var order []core.NodeID

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		order = append(order, n)

		for _, e := range m.OutEdges(n) {
			if m.Edge(e).Base.Kind == cfg.BackwardJump {
				continue
			}
			to := m.To(e)
			indeg[to]--
			if indeg[to] <= 0 && !visited[to] {
				stack = append(stack, to)
			}
		}
	}
	return order, nil
}
