// Package ilp implements the IPET ILP generator (C7): an in-memory linear
// program builder (rather than the fragile textual stream concatenation the
// source used, per the DESIGN NOTES), its lp_solve-format serializer, and the
// parser for the external solver's textual output.
package ilp

import (
	"fmt"
	"sort"
	"strings"
)

// ConstraintKind is the relational operator of one constraint or objective
// row.
type ConstraintKind int

const (
	Eq ConstraintKind = iota
	Le
	Ge
)

func (k ConstraintKind) symbol() string {
	switch k {
	case Eq:
		return "="
	case Le:
		return "<="
	default:
		return ">="
	}
}

// LinearExpr is a sparse linear expression over named variables, kept in
// insertion order so the serialized form is deterministic across runs (the
// DESIGN NOTES call this out explicitly: reproducible ILP diffs matter).
type LinearExpr struct {
	order []string
	coeff map[string]float64
}

// NewExpr returns an empty linear expression.
func NewExpr() *LinearExpr {
	return &LinearExpr{coeff: make(map[string]float64)}
}

// Add accumulates coeff*variable into the expression.
func (e *LinearExpr) Add(variable string, coeff float64) *LinearExpr {
	if _, ok := e.coeff[variable]; !ok {
		e.order = append(e.order, variable)
	}
	e.coeff[variable] += coeff
	return e
}

// Coeff returns the accumulated coefficient of variable, or 0 if absent.
func (e *LinearExpr) Coeff(variable string) float64 {
	return e.coeff[variable]
}

// Set overwrites variable's coefficient outright, unlike Add which
// accumulates onto whatever is already there.
func (e *LinearExpr) Set(variable string, coeff float64) *LinearExpr {
	if _, ok := e.coeff[variable]; !ok {
		e.order = append(e.order, variable)
	}
	e.coeff[variable] = coeff
	return e
}

// Vars returns the expression's variables in insertion order, for callers
// that need to rebuild a derived expression term-by-term.
func (e *LinearExpr) Vars() []string {
	return append([]string(nil), e.order...)
}

func (e *LinearExpr) render() string {
	var b strings.Builder
	for i, v := range e.order {
		c := e.coeff[v]
		if c == 0 {
			continue
		}
		if i > 0 || c < 0 {
			if c >= 0 {
				b.WriteString(" +")
			} else {
				b.WriteString(" -")
			}
		}
		b.WriteString(fmt.Sprintf("%g %s", absf(c), v))
	}
	if b.Len() == 0 {
		return "0"
	}
	return strings.TrimPrefix(b.String(), " ")
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Constraint is one named row of the ILP: expr kind rhs.
type Constraint struct {
	Name string
	Expr *LinearExpr
	Kind ConstraintKind
	RHS  float64
}

// Model is a complete ILP: an objective, a constraint set, and variable
// domain declarations, serializable to lp_solve format.
type Model struct {
	Maximize    bool
	Objective   *LinearExpr
	Constraints []Constraint
	IntVars     map[string]bool
	BinVars     map[string]bool
}

// NewModel returns an empty model.
func NewModel(maximize bool) *Model {
	return &Model{
		Maximize:  maximize,
		Objective: NewExpr(),
		IntVars:   make(map[string]bool),
		BinVars:   make(map[string]bool),
	}
}

// AddConstraint appends c to the model.
func (m *Model) AddConstraint(c Constraint) {
	m.Constraints = append(m.Constraints, c)
}

// DeclareInt marks variable as an integer domain variable.
func (m *Model) DeclareInt(variable string) {
	m.IntVars[variable] = true
}

// DeclareBin marks variable as a binary (0/1) domain variable.
func (m *Model) DeclareBin(variable string) {
	m.BinVars[variable] = true
}

// Serialize renders the model to lp_solve's plain-text wire format: an
// objective line, one constraint per line, then int/bin domain declarations.
func (m *Model) Serialize() string {
	var b strings.Builder

	if m.Maximize {
		b.WriteString("max: ")
	} else {
		b.WriteString("min: ")
	}
	b.WriteString(m.Objective.render())
	b.WriteString(";\n")

	for _, c := range m.Constraints {
		fmt.Fprintf(&b, "%s: %s %s %g;\n", c.Name, c.Expr.render(), c.Kind.symbol(), c.RHS)
	}

	ints := sortedKeys(m.IntVars)
	for _, v := range ints {
		fmt.Fprintf(&b, "int %s;\n", v)
	}
	bins := sortedKeys(m.BinVars)
	for _, v := range bins {
		fmt.Fprintf(&b, "bin %s;\n", v)
	}

	return b.String()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
