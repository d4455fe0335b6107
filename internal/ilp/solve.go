package ilp

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/smetzlaff/isptap-sub001/internal/cfg"
)

// Status is one of the five solution tags §4.7/§6 require the solver's
// output to be mapped to.
type Status int

const (
	OptimalSolution Status = iota
	SuboptimalSolution
	ProblemUnbound
	ErrorWhileSolving
	SolutionNotCalculated
)

func (s Status) String() string {
	switch s {
	case OptimalSolution:
		return "OptimalSolution"
	case SuboptimalSolution:
		return "SuboptimalSolution"
	case ProblemUnbound:
		return "ProblemUnbound"
	case ErrorWhileSolving:
		return "ErrorWhileSolving"
	default:
		return "SolutionNotCalculated"
	}
}

var statusTags = map[string]Status{
	"optimalsolution":     OptimalSolution,
	"suboptimalsolution":  SuboptimalSolution,
	"problemunbound":      ProblemUnbound,
	"errorwhilesolving":   ErrorWhileSolving,
	"solutionnotcalculated": SolutionNotCalculated,
}

// Result is the parsed solver output: the per-variable integer solution and
// the final status tag.
type Result struct {
	Values    map[string]int64
	Status    Status
	Objective float64
}

// Solver is the external ILP solver's interface (§1 external collaborator):
// it is handed a serialized lp_solve-format model and returns its raw
// textual output, over a blocking child-process call the driver (C9) makes.
// Only the interface is in scope here; invoking an actual lp_solve binary is
// not.
type Solver interface {
	Solve(lpText string) (string, error)
}

// ScriptedSolver is a canned Solver useful for tests and for driving the CLI
// against a pre-computed answer when no solver binary is available, mirroring
// flowfact.MapSource's role for the flow-fact reader.
type ScriptedSolver struct {
	Output string
	Err    error
}

func (s ScriptedSolver) Solve(lpText string) (string, error) {
	return s.Output, s.Err
}

// ParseOutput parses the solver's textual output: one (variable, integer)
// pair per line, plus a final status-tag line, per §6's wire-format
// description.
func ParseOutput(text string) Result {
	res := Result{Values: make(map[string]int64), Status: SolutionNotCalculated}

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if tag, ok := statusTags[strings.ToLower(line)]; ok {
			res.Status = tag
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "objective") {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				if v, err := strconv.ParseFloat(fields[len(fields)-1], 64); err == nil {
					res.Objective = v
				}
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		if v, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			res.Values[fields[0]] = v
		}
	}
	return res
}

// WriteBack sets each edge's Activation attribute to its solved flow value,
// then cross-checks the recomputed weighted graph cost against the
// solver's own objective, logging a warning on disagreement (§4.7, §9 open
// question (b): a small numerical-rounding gap is known and not fatal).
func WriteBack(g *cfg.Graph, vars VarForEdge, res Result, metric Metric, reportedObjective float64) {
	var recomputed uint64
	for e, name := range vars {
		val := res.Values[name]
		g.Edge(e).Activation = val
		recomputed += uint64(val) * weightOf(*g.Edge(e), metric)
	}

	if float64(recomputed) != reportedObjective {
		logrus.WithFields(logrus.Fields{
			"recomputed": recomputed,
			"reported":   reportedObjective,
		}).Warn("ilp: recomputed graph cost disagrees with solver objective")
	}
}
