package cvars

import (
	"fmt"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/constraints"
)

// Geq constrains lhs to be at least as unsafe as rhs, as required when a
// value of rhs is stored in lhs. The outermost levels are related by ≥;
// every inner level, and the signatures of function pointers, must be
// equal.
func Geq(g *constraints.Graph, lhs, rhs Var, reason string, pos ast.Pos) {
	constrain(g, lhs, rhs, reason, pos, false)
}

// Eq constrains every level of x and y to be equal.
func Eq(g *constraints.Graph, x, y Var, reason string, pos ast.Pos) {
	constrain(g, x, y, reason, pos, true)
}

func constrain(g *constraints.Graph, lhs, rhs Var, reason string, pos ast.Pos, eq bool) {
	if lhs == rhs {
		return
	}
	switch l := lhs.(type) {
	case *PointerVariable:
		switch r := rhs.(type) {
		case *PointerVariable:
			n := min(len(l.levels), len(r.levels))
			for i := 0; i < n; i++ {
				if i == 0 && !eq {
					g.Add(l.levels[i].Atom, r.levels[i].Atom, reason, pos)
				} else {
					g.Eq(l.levels[i].Atom, r.levels[i].Atom, reason, pos)
				}
			}
			if l.fv != nil && r.fv != nil && len(l.levels) == len(r.levels) {
				funcEq(g, l.fv, r.fv, reason, pos)
			}
		case *FunctionVariable:
			if l.fv != nil && len(l.levels) <= 1 {
				funcEq(g, l.fv, r, reason, pos)
			}
		default:
			panic(fmt.Sprintf("unexpected variable %T", rhs))
		}
	case *FunctionVariable:
		switch r := rhs.(type) {
		case *PointerVariable:
			if r.fv != nil && len(r.levels) <= 1 {
				funcEq(g, l, r.fv, reason, pos)
			}
		case *FunctionVariable:
			funcEq(g, l, r, reason, pos)
		default:
			panic(fmt.Sprintf("unexpected variable %T", rhs))
		}
	default:
		panic(fmt.Sprintf("unexpected variable %T", lhs))
	}
}

// funcEq equates the results and the common prefix of the parameters of
// two function variables.
func funcEq(g *constraints.Graph, x, y *FunctionVariable, reason string, pos ast.Pos) {
	if x == y {
		return
	}
	constrain(g, x.Return, y.Return, reason, pos, true)
	n := min(len(x.Params), len(y.Params))
	for i := 0; i < n; i++ {
		constrain(g, x.Params[i], y.Params[i], reason, pos, true)
	}
}

// ConstrainOuterTo forces the outermost level of v to be at least q. For a
// function variable, the outermost levels of its result and parameters are
// constrained.
func ConstrainOuterTo(g *constraints.Graph, v Var, q constraints.Qualifier, reason string, pos ast.Pos) {
	switch v := v.(type) {
	case *PointerVariable:
		if len(v.levels) > 0 {
			g.Add(v.levels[0].Atom, q, reason, pos)
		}
	case *FunctionVariable:
		ConstrainOuterTo(g, v.Return, q, reason, pos)
		for _, p := range v.Params {
			ConstrainOuterTo(g, p, q, reason, pos)
		}
	default:
		panic(fmt.Sprintf("unexpected variable %T", v))
	}
}

// ConstrainAllTo forces every level of v, including the levels of any
// function it points to, to be at least q.
func ConstrainAllTo(g *constraints.Graph, v Var, q constraints.Qualifier, reason string, pos ast.Pos) {
	switch v := v.(type) {
	case *PointerVariable:
		for _, l := range v.levels {
			g.Add(l.Atom, q, reason, pos)
		}
		if v.fv != nil {
			ConstrainAllTo(g, v.fv, q, reason, pos)
		}
	case *FunctionVariable:
		ConstrainAllTo(g, v.Return, q, reason, pos)
		for _, p := range v.Params {
			ConstrainAllTo(g, p, q, reason, pos)
		}
	default:
		panic(fmt.Sprintf("unexpected variable %T", v))
	}
}

// GeqSets constrains every variable of lhs against every variable of rhs.
func GeqSets(g *constraints.Graph, lhs, rhs *Set, reason string, pos ast.Pos) {
	if lhs == nil || rhs == nil {
		return
	}
	for _, l := range lhs.Slice() {
		for _, r := range rhs.Slice() {
			Geq(g, l, r, reason, pos)
		}
	}
}

// EqSet makes every variable of s equal to the first one.
func EqSet(g *constraints.Graph, s *Set, reason string, pos ast.Pos) {
	if s == nil || s.Size() < 2 {
		return
	}
	vs := s.Slice()
	for _, v := range vs[1:] {
		Eq(g, vs[0], v, reason, pos)
	}
}

// WildSet forces the outermost level of every variable in s to Wild.
func WildSet(g *constraints.Graph, s *Set, reason string, pos ast.Pos) {
	if s == nil {
		return
	}
	for _, v := range s.Slice() {
		ConstrainOuterTo(g, v, constraints.Wild, reason, pos)
	}
}
