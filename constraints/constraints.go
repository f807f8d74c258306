// Package constraints implements the pointer qualifier lattice, the graph
// of inequality constraints between qualifier atoms, and the fixed-point
// solver that computes the least unsafe assignment satisfying every
// constraint.
package constraints

import (
	"fmt"
	"strings"

	"honnef.co/go/cconv/analysis/dfa"
	"honnef.co/go/cconv/c/ast"
)

// Qualifier is an element of the pointer qualifier lattice
// Ptr < NTArr < Arr < Wild. Ptr is the most precise qualifier and Wild
// the least.
type Qualifier uint8

const (
	Ptr Qualifier = iota
	NTArr
	Arr
	Wild
)

// Qualifiers lists the lattice in ascending order.
var Qualifiers = []Qualifier{Ptr, NTArr, Arr, Wild}

func (q Qualifier) String() string {
	switch q {
	case Ptr:
		return "PTR"
	case NTArr:
		return "NTARR"
	case Arr:
		return "ARR"
	case Wild:
		return "WILD"
	default:
		return fmt.Sprintf("Qualifier(%d)", q)
	}
}

// ParseQualifier parses the output of Qualifier.String, case-insensitively.
func ParseQualifier(s string) (Qualifier, error) {
	for _, q := range Qualifiers {
		if strings.EqualFold(s, q.String()) {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown qualifier %q", s)
}

// Height returns the height of the lattice, which is also the maximum
// number of times an atom can be raised.
func Height() int { return len(Qualifiers) - 1 }

// Join returns the least upper bound of a and b.
func Join(a, b Qualifier) Qualifier {
	if a > b {
		return a
	}
	return b
}

// qualifierJoin is Join expressed as a table over the framework's non-⊥,
// non-⊤ elements.
var qualifierJoin = dfa.JoinTable(Wild, map[[2]Qualifier]Qualifier{
	{NTArr, Arr}: Arr,
})

// Atom is one lattice-valued slot: either a variable or a constant
// qualifier.
type Atom interface {
	String() string
	isAtom()
}

func (Qualifier) isAtom() {}

// VarAtom is a variable of the lattice. Its value is computed by the
// solver.
type VarAtom struct {
	id   int
	name string
	// NoArray restricts the atom to Ptr or Wild. Raising it to an array
	// qualifier raises it to Wild instead. Function pointer levels are
	// restricted this way.
	NoArray bool
}

func (*VarAtom) isAtom() {}

func (v *VarAtom) ID() int        { return v.id }
func (v *VarAtom) Name() string   { return v.name }
func (v *VarAtom) String() string { return fmt.Sprintf("q_%d", v.id) }

// Geq is the constraint LHS ≥ RHS.
type Geq struct {
	LHS, RHS Atom
	Reason   string
	Pos      ast.Pos
}

func (e *Geq) String() string {
	return fmt.Sprintf("%s >= %s", e.LHS, e.RHS)
}

const allTypesReason = "Pointer is array but alltypes is disabled."

// Graph holds atoms and the constraints between them. Constraints are only
// ever added.
type Graph struct {
	// AllTypes enables array inference. When it is false, constraints that
	// would make a variable an array make it Wild instead.
	AllTypes bool

	atoms []*VarAtom
	edges []*Geq
	index map[[2]Atom]*Geq
	// edges keyed by their right-hand side, in insertion order
	users map[Atom][]*Geq
}

func NewGraph(allTypes bool) *Graph {
	return &Graph{
		AllTypes: allTypes,
		index:    map[[2]Atom]*Geq{},
		users:    map[Atom][]*Geq{},
	}
}

// NewAtom allocates a fresh variable atom.
func (g *Graph) NewAtom(name string, noArray bool) *VarAtom {
	a := &VarAtom{id: len(g.atoms), name: name, NoArray: noArray}
	g.atoms = append(g.atoms, a)
	return a
}

// Atoms returns all variable atoms in allocation order.
func (g *Graph) Atoms() []*VarAtom { return g.atoms }

// Edges returns all constraints in insertion order.
func (g *Graph) Edges() []*Geq { return g.edges }

// Lookup returns the constraint lhs ≥ rhs, if it exists.
func (g *Graph) Lookup(lhs, rhs Atom) (*Geq, bool) {
	e, ok := g.index[[2]Atom{lhs, rhs}]
	return e, ok
}

// Add records lhs ≥ rhs. Self edges and edges between two constants are
// dropped. If an edge between the same atoms already exists, the existing
// edge and its reason are kept. Add returns the edge that now represents
// the constraint, or nil if it was dropped.
func (g *Graph) Add(lhs, rhs Atom, reason string, pos ast.Pos) *Geq {
	if lhs == rhs {
		return nil
	}
	_, lc := lhs.(Qualifier)
	rq, rc := rhs.(Qualifier)
	if lc && rc {
		return nil
	}
	if !g.AllTypes && rc && (rq == Arr || rq == NTArr) {
		rhs, reason = Wild, allTypesReason
	}
	key := [2]Atom{lhs, rhs}
	if e, ok := g.index[key]; ok {
		return e
	}
	e := &Geq{LHS: lhs, RHS: rhs, Reason: reason, Pos: pos}
	g.index[key] = e
	g.edges = append(g.edges, e)
	g.users[rhs] = append(g.users[rhs], e)
	return e
}

// Eq records a = b as the pair of constraints a ≥ b and b ≥ a.
func (g *Graph) Eq(a, b Atom, reason string, pos ast.Pos) {
	g.Add(a, b, reason, pos)
	g.Add(b, a, reason, pos)
}

// Override pins an atom to at least a qualifier, as supplied by an
// interactive user.
type Override struct {
	Atom   *VarAtom
	Q      Qualifier
	Reason string
}

func compareAtoms(a, b Atom) int {
	av, aok := a.(*VarAtom)
	bv, bok := b.(*VarAtom)
	switch {
	case !aok && !bok:
		return int(a.(Qualifier)) - int(b.(Qualifier))
	case !aok:
		return -1
	case !bok:
		return 1
	default:
		return av.id - bv.id
	}
}

func restrict(a *VarAtom, q Qualifier) Qualifier {
	if a.NoArray && (q == Arr || q == NTArr) {
		return Wild
	}
	return q
}

func (g *Graph) transfer(ins *dfa.Instance[Atom, Qualifier], n Atom) []dfa.Mapping[Atom, Qualifier] {
	src := ins.Value(n)
	_, fromConst := n.(Qualifier)
	var out []dfa.Mapping[Atom, Qualifier]
	for _, e := range g.users[n] {
		lhs, ok := e.LHS.(*VarAtom)
		if !ok {
			// Constant upper bounds cannot move; violations are reported as
			// conflicts once the fixed point is reached.
			continue
		}
		cur := ins.Value(lhs)
		want := restrict(lhs, ins.Join(cur, src))
		if want == cur {
			continue
		}
		out = append(out, dfa.M[Atom](lhs, want, dfa.Decision[Atom]{
			Inputs:      []Atom{n},
			Description: e.Reason,
			Source:      fromConst,
		}))
	}
	return out
}

// Solve computes the least assignment that satisfies every constraint
// whose left-hand side is a variable, starting from all atoms at Ptr and
// the given overrides. The graph may be solved repeatedly; each call
// returns an independent assignment.
func (g *Graph) Solve(overrides []Override) *Assignment {
	fw := &dfa.Framework[Atom, Qualifier]{
		Join:     qualifierJoin,
		Transfer: g.transfer,
		Bottom:   Ptr,
		Top:      Wild,
		Height:   Height(),
		Compare:  compareAtoms,
	}

	// The last override of an atom wins.
	last := map[Atom]int{}
	for i, o := range overrides {
		last[o.Atom] = i
	}
	var seeds []dfa.Mapping[Atom, Qualifier]
	seen := map[Atom]bool{}
	for i, o := range overrides {
		if last[o.Atom] != i {
			continue
		}
		seen[o.Atom] = true
		seeds = append(seeds, dfa.M[Atom](o.Atom, restrict(o.Atom, o.Q), dfa.Decision[Atom]{Description: o.Reason, Source: true}))
	}
	for _, e := range g.edges {
		if c, ok := e.RHS.(Qualifier); ok && !seen[c] {
			seen[c] = true
			seeds = append(seeds, dfa.M[Atom](c, c, dfa.Decision[Atom]{Source: true}))
		}
	}

	ins := fw.Solve(seeds)
	a := &Assignment{g: g, ins: ins, vals: make([]Qualifier, len(g.atoms))}
	for i, v := range g.atoms {
		a.vals[i] = ins.Value(v)
	}
	for _, e := range g.edges {
		c, ok := e.LHS.(Qualifier)
		if !ok {
			continue
		}
		if got := a.Of(e.RHS); got > c {
			a.conflicts = append(a.conflicts, Conflict{Edge: e, Got: got})
		}
	}
	return a
}

// Conflict is a constraint C ≥ v with constant C that the solution
// violates, typically because an explicitly annotated pointer receives an
// unsafe value.
type Conflict struct {
	Edge *Geq
	Got  Qualifier
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: %s cannot be %s (bounded by %s): %s", c.Edge.Pos, c.Edge.RHS, c.Got, c.Edge.LHS, c.Edge.Reason)
}

// Assignment is a solved, immutable mapping from atoms to qualifiers.
type Assignment struct {
	g         *Graph
	ins       *dfa.Instance[Atom, Qualifier]
	vals      []Qualifier
	conflicts []Conflict
}

// Of returns the value of a. Constants evaluate to themselves; atoms
// allocated after solving are Ptr.
func (a *Assignment) Of(at Atom) Qualifier {
	switch at := at.(type) {
	case Qualifier:
		return at
	case *VarAtom:
		if at.id < len(a.vals) {
			return a.vals[at.id]
		}
		return Ptr
	default:
		panic(fmt.Sprintf("unexpected atom %T", at))
	}
}

func (a *Assignment) Conflicts() []Conflict { return a.conflicts }

// Cause explains why an atom was raised.
type Cause struct {
	Reason string
	Pos    ast.Pos
	// Chain lists the atoms through which the qualifier propagated, starting
	// at the explained atom and ending at the root cause.
	Chain []Atom
}

// Why returns the root cause of v's value. It returns false if v was never
// raised.
func (a *Assignment) Why(v *VarAtom) (Cause, bool) {
	if a.Of(v) == Ptr {
		return Cause{}, false
	}
	chain := a.ins.Trace(v)
	root := chain[len(chain)-1]
	d := a.ins.Decision(root)
	c := Cause{Reason: d.Description, Chain: chain}
	if len(d.Inputs) > 0 {
		if e, ok := a.g.Lookup(root, d.Inputs[0]); ok {
			c.Pos = e.Pos
		}
	}
	return c, true
}

// Counts returns the number of variable atoms at each qualifier.
func (a *Assignment) Counts() map[Qualifier]int {
	out := map[Qualifier]int{}
	for _, q := range a.vals {
		out[q]++
	}
	return out
}
