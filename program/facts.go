package program

import (
	"honnef.co/go/cconv/bounds"
	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/cvars"
)

// A Fact is one constraint or bounds relationship produced by constraint
// generation. Generators collect facts in a Batch, which the registry
// applies after each top-level declaration.
type Fact interface {
	apply(info *Info)
}

type (
	// GeqFact constrains every variable of LHS to be at least as unsafe as
	// every variable of RHS.
	GeqFact struct {
		LHS, RHS *cvars.Set
		Reason   string
		Pos      ast.Pos
	}

	// EqFact makes all variables of Vars equal.
	EqFact struct {
		Vars   *cvars.Set
		Reason string
		Pos    ast.Pos
	}

	// OuterFact constrains the outermost level of every variable of Vars
	// to at least Q. With All set, every level is constrained.
	OuterFact struct {
		Vars   *cvars.Set
		Q      constraints.Qualifier
		All    bool
		Reason string
		Pos    ast.Pos
	}

	// AtomFact constrains a single atom to at least Q.
	AtomFact struct {
		Atom   constraints.Atom
		Q      constraints.Qualifier
		Reason string
		Pos    ast.Pos
	}

	// BoundsEdge records that values flow between two bounds keys.
	BoundsEdge struct {
		A, B bounds.Key
	}

	// AllocBound records the bound implied by an allocator call.
	AllocBound struct {
		Key    bounds.Key
		Bounds bounds.ABounds
	}

	// LoopBound records that Arr is indexed by a loop bounded by Len.
	LoopBound struct {
		Arr, Len bounds.Key
	}

	// TypeArgFact records the type arguments of a generic call.
	TypeArgFact struct {
		Call ast.Pos
		Args []types.Type
		// Callee is the source text of the called function's name.
		Callee ast.Range
	}

	// CastSite is a call argument that may need an explicit cast if the
	// argument ends up checked and the parameter does not.
	CastSite struct {
		Pos   ast.Pos
		Span  ast.Range
		Param *cvars.PointerVariable
		Arg   *cvars.PointerVariable
	}

	// StructInit is a local struct variable declared without an
	// initializer. End is where an initializer would go.
	StructInit struct {
		Pos    ast.Pos
		Name   string
		Record string
		End    ast.Pos
	}

	// Region is a compound statement that may become a checked region.
	// Refs lists the declarations used anywhere inside it, nested blocks
	// included. Unsafe, if set, names a construct that keeps the block
	// unchecked regardless of the solution. Parent is the opening brace of
	// the closest enclosing region.
	Region struct {
		Lbrace ast.Pos
		Parent ast.Pos
		Refs   []ast.Pos
		Unsafe string
	}
)

// Wild returns a fact forcing the outermost level of vs to Wild.
func Wild(vs *cvars.Set, reason string, pos ast.Pos) OuterFact {
	return OuterFact{Vars: vs, Q: constraints.Wild, Reason: reason, Pos: pos}
}

func (f GeqFact) apply(info *Info) { cvars.GeqSets(info.Graph, f.LHS, f.RHS, f.Reason, f.Pos) }
func (f EqFact) apply(info *Info)  { cvars.EqSet(info.Graph, f.Vars, f.Reason, f.Pos) }

func (f OuterFact) apply(info *Info) {
	if f.Vars == nil {
		return
	}
	for _, v := range f.Vars.Slice() {
		if f.All {
			cvars.ConstrainAllTo(info.Graph, v, f.Q, f.Reason, f.Pos)
		} else {
			cvars.ConstrainOuterTo(info.Graph, v, f.Q, f.Reason, f.Pos)
		}
	}
}

func (f AtomFact) apply(info *Info) { info.Graph.Add(f.Atom, f.Q, f.Reason, f.Pos) }

func (f BoundsEdge) apply(info *Info)  { info.Bounds.AddAssignment(f.A, f.B) }
func (f AllocBound) apply(info *Info)  { info.Bounds.AddAllocation(f.Key, f.Bounds) }
func (f LoopBound) apply(info *Info)   { info.Bounds.AddPotential(f.Arr, f.Len) }
func (f TypeArgFact) apply(info *Info) { info.typeArgs[f.Call] = f }
func (f CastSite) apply(info *Info)    { info.casts = append(info.casts, f) }
func (f StructInit) apply(info *Info)  { info.structInits[f.Pos] = f }
func (f Region) apply(info *Info)      { info.regions[f.Lbrace] = f }

// Batch collects facts in the order they were produced.
type Batch struct {
	Facts []Fact
}

func (b *Batch) Add(f Fact) { b.Facts = append(b.Facts, f) }

func (b *Batch) Len() int { return len(b.Facts) }

// Apply adds every fact of b to the registry, in order.
func (info *Info) Apply(b *Batch) {
	if info.linked {
		panic("applying facts after linking")
	}
	for _, f := range b.Facts {
		f.apply(info)
	}
	b.Facts = b.Facts[:0]
}
