// Package cvars implements constraint variables: the analysis' proxies for
// declared pointer, array and function types. A PointerVariable owns one
// qualifier atom per pointer or array level of its type; a
// FunctionVariable owns a PointerVariable for its result and one per
// parameter.
package cvars

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"honnef.co/go/cconv/bounds"
	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/constraints"
)

// Var is a constraint variable. The set of implementations is closed:
// *PointerVariable and *FunctionVariable.
type Var interface {
	// ID orders variables by creation.
	ID() int
	Name() string
	String() string
	// MkString renders the variable's type under a solved assignment. It
	// has no side effects.
	MkString(a *constraints.Assignment, opts MkOpts) string
	// AnyChanges reports whether MkString differs from the declared type.
	AnyChanges(a *constraints.Assignment) bool
	BoundsKey() bounds.Key
	// Equal reports whether two variables have the same shape, that is,
	// the same number of levels and compatible function signatures.
	Equal(o Var) bool
	isVar()
}

// MkOpts controls rendering. With ForItype set, the type is rendered
// without a name, as needed in "int *x : itype(_Ptr<int>)".
type MkOpts struct {
	Name     string
	ForItype bool
}

// Level is one pointer or array level of a PointerVariable, outermost
// first.
type Level struct {
	Atom  constraints.Atom
	Array bool
	Len   int
	Sized bool
}

type PointerVariable struct {
	id     int
	name   string
	levels []Level
	base   types.Type
	fv     *FunctionVariable
	key    bounds.Key

	// TypeVar is the index of the type parameter this variable is bound
	// to in a generic function, or -1.
	TypeVar int
	// HasItype is set if the declaration carries an interop type.
	HasItype bool
}

type FunctionVariable struct {
	id     int
	name   string
	Return *PointerVariable
	Params []*PointerVariable

	Variadic   bool
	Prototyped bool
	TypeParams int
	HasBody    bool
	Static     bool
	File       string
}

func (*PointerVariable) isVar()  {}
func (*FunctionVariable) isVar() {}

func (pv *PointerVariable) ID() int               { return pv.id }
func (pv *PointerVariable) Name() string          { return pv.name }
func (pv *PointerVariable) BoundsKey() bounds.Key { return pv.key }

func (pv *PointerVariable) SetBoundsKey(k bounds.Key) { pv.key = k }

// Levels returns the pointer levels, outermost first.
func (pv *PointerVariable) Levels() []Level { return pv.levels }

// Atoms returns one atom per level, outermost first.
func (pv *PointerVariable) Atoms() []constraints.Atom {
	out := make([]constraints.Atom, len(pv.levels))
	for i, l := range pv.levels {
		out[i] = l.Atom
	}
	return out
}

// Outer returns the outermost atom, or nil for a variable without pointer
// levels.
func (pv *PointerVariable) Outer() constraints.Atom {
	if len(pv.levels) == 0 {
		return nil
	}
	return pv.levels[0].Atom
}

func (pv *PointerVariable) Depth() int { return len(pv.levels) }

// Base returns the type below the last pointer level.
func (pv *PointerVariable) Base() types.Type { return pv.base }

// FV returns the function variable a function pointer points to.
func (pv *PointerVariable) FV() *FunctionVariable { return pv.fv }

func (pv *PointerVariable) IsGeneric() bool { return pv.TypeVar >= 0 }

func (pv *PointerVariable) String() string {
	var atoms []string
	for _, l := range pv.levels {
		atoms = append(atoms, l.Atom.String())
	}
	return fmt.Sprintf("%s [%s] %s", pv.name, strings.Join(atoms, " "), pv.base)
}

func qualifierKind(q constraints.Qualifier) types.Checked {
	switch q {
	case constraints.Ptr:
		return types.CheckedPtr
	case constraints.Arr:
		return types.CheckedArray
	case constraints.NTArr:
		return types.CheckedNTArray
	default:
		return types.Unchecked
	}
}

// Type returns the C type of pv under a. Wild levels are unchecked.
func (pv *PointerVariable) Type(a *constraints.Assignment) types.Type {
	t := pv.base
	if pv.fv != nil {
		t = pv.fv.Type(a)
	}
	for i := len(pv.levels) - 1; i >= 0; i-- {
		l := pv.levels[i]
		k := qualifierKind(a.Of(l.Atom))
		if l.Array {
			if k == types.CheckedPtr {
				k = types.CheckedArray
			}
			t = &types.Array{Elem: t, Len: l.Len, Sized: l.Sized, Kind: k}
		} else {
			t = &types.Pointer{Elem: t, Kind: k}
		}
	}
	return t
}

func (pv *PointerVariable) MkString(a *constraints.Assignment, opts MkOpts) string {
	name := opts.Name
	if opts.ForItype {
		name = ""
	}
	return types.Declarator(pv.Type(a), name)
}

func (pv *PointerVariable) AnyChanges(a *constraints.Assignment) bool {
	for _, l := range pv.levels {
		if _, ok := l.Atom.(*constraints.VarAtom); ok && a.Of(l.Atom) != constraints.Wild {
			return true
		}
	}
	return pv.fv != nil && pv.fv.AnyChanges(a)
}

func (pv *PointerVariable) Equal(o Var) bool {
	switch o := o.(type) {
	case *PointerVariable:
		if len(pv.levels) != len(o.levels) {
			return false
		}
		if (pv.fv == nil) != (o.fv == nil) {
			return false
		}
		return pv.fv == nil || pv.fv.Equal(o.fv)
	case *FunctionVariable:
		return len(pv.levels) <= 1 && pv.fv != nil && pv.fv.Equal(o)
	default:
		return false
	}
}

func (fv *FunctionVariable) ID() int               { return fv.id }
func (fv *FunctionVariable) Name() string          { return fv.name }
func (fv *FunctionVariable) BoundsKey() bounds.Key { return 0 }

// ParamTypeVar returns the type variable bound to parameter i, or -1.
func (fv *FunctionVariable) ParamTypeVar(i int) int {
	if i < 0 || i >= len(fv.Params) {
		return -1
	}
	return fv.Params[i].TypeVar
}

func (fv *FunctionVariable) String() string {
	var params []string
	for _, p := range fv.Params {
		params = append(params, p.String())
	}
	return fmt.Sprintf("%s(%s) %s", fv.name, strings.Join(params, ", "), fv.Return)
}

// Type returns the C function type of fv under a.
func (fv *FunctionVariable) Type(a *constraints.Assignment) *types.Func {
	out := &types.Func{Result: fv.Return.Type(a), Variadic: fv.Variadic, Prototyped: fv.Prototyped}
	for _, p := range fv.Params {
		out.Params = append(out.Params, p.Type(a))
	}
	return out
}

func (fv *FunctionVariable) MkString(a *constraints.Assignment, opts MkOpts) string {
	name := opts.Name
	if opts.ForItype {
		name = ""
	}
	return types.Declarator(fv.Type(a), name)
}

func (fv *FunctionVariable) AnyChanges(a *constraints.Assignment) bool {
	if fv.Return.AnyChanges(a) {
		return true
	}
	for _, p := range fv.Params {
		if p.AnyChanges(a) {
			return true
		}
	}
	return false
}

// AnyWild reports whether any level of v solved to Wild. The levels of
// functions that v points to, or is, are included.
func AnyWild(v Var, a *constraints.Assignment) bool {
	switch v := v.(type) {
	case *PointerVariable:
		for _, l := range v.levels {
			if a.Of(l.Atom) == constraints.Wild {
				return true
			}
		}
		return v.fv != nil && AnyWild(v.fv, a)
	case *FunctionVariable:
		if AnyWild(v.Return, a) {
			return true
		}
		for _, p := range v.Params {
			if AnyWild(p, a) {
				return true
			}
		}
	}
	return false
}

func (fv *FunctionVariable) Equal(o Var) bool {
	switch o := o.(type) {
	case *FunctionVariable:
		if len(fv.Params) != len(o.Params) || !fv.Return.Equal(o.Return) {
			return false
		}
		for i := range fv.Params {
			if !fv.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return true
	case *PointerVariable:
		return o.Equal(fv)
	default:
		return false
	}
}

// Builder allocates constraint variables and their atoms in one graph.
type Builder struct {
	G    *constraints.Graph
	next int
}

func NewBuilder(g *constraints.Graph) *Builder { return &Builder{G: g} }

func (b *Builder) id() int {
	b.next++
	return b.next
}

const arrayReason = "Declared as an array."

func checkedAtom(k types.Checked) (constraints.Atom, bool) {
	switch k {
	case types.CheckedPtr:
		return constraints.Ptr, true
	case types.CheckedArray:
		return constraints.Arr, true
	case types.CheckedNTArray:
		return constraints.NTArr, true
	default:
		return nil, false
	}
}

// NewPointer decomposes t into a pointer variable. Every unchecked level
// gets a fresh atom; checked levels get constant atoms. Array levels are
// constrained to at least Arr and levels pointing to functions may not
// become arrays. A pointer to a function type owns a nested function
// variable.
func (b *Builder) NewPointer(name string, t types.Type, pos ast.Pos) *PointerVariable {
	pv := &PointerVariable{id: b.id(), name: name, TypeVar: -1}
	var arrays []constraints.Atom
loop:
	for {
		switch tt := t.(type) {
		case *types.Pointer:
			_, toFunc := tt.Elem.(*types.Func)
			at, ok := checkedAtom(tt.Kind)
			if !ok {
				at = b.G.NewAtom(name, toFunc)
			}
			pv.levels = append(pv.levels, Level{Atom: at})
			t = tt.Elem
		case *types.Array:
			at, ok := checkedAtom(tt.Kind)
			if !ok {
				va := b.G.NewAtom(name, false)
				arrays = append(arrays, va)
				at = va
			}
			pv.levels = append(pv.levels, Level{Atom: at, Array: true, Len: tt.Len, Sized: tt.Sized})
			t = tt.Elem
		default:
			break loop
		}
	}
	pv.base = t
	if ft, ok := t.(*types.Func); ok && len(pv.levels) > 0 {
		pv.fv = b.FuncFromType(name, ft, pos)
	}
	for _, at := range arrays {
		b.G.Add(at, constraints.Arr, arrayReason, pos)
	}
	return pv
}

// NewFunction creates a function variable from already built result and
// parameter variables.
func (b *Builder) NewFunction(name string, ret *PointerVariable, params []*PointerVariable) *FunctionVariable {
	return &FunctionVariable{id: b.id(), name: name, Return: ret, Params: params, Prototyped: true}
}

// FuncFromType creates a function variable for a function type that has no
// declaration of its own, such as the target of a function pointer.
func (b *Builder) FuncFromType(name string, ft *types.Func, pos ast.Pos) *FunctionVariable {
	ret := b.NewPointer(name, ft.Result, pos)
	var params []*PointerVariable
	for i, p := range ft.Params {
		params = append(params, b.NewPointer(fmt.Sprintf("%s$%d", name, i), p, pos))
	}
	fv := b.NewFunction(name, ret, params)
	fv.Variadic = ft.Variadic
	fv.Prototyped = ft.Prototyped
	return fv
}

// Const creates a variable of type t whose outermost level is the constant
// q, as used for string literals.
func (b *Builder) Const(name string, t types.Type, q constraints.Qualifier, pos ast.Pos) *PointerVariable {
	t = types.Uncheck(t)
	var outer Level
	switch tt := t.(type) {
	case *types.Pointer:
		outer = Level{Atom: q}
	case *types.Array:
		outer = Level{Atom: q, Array: true, Len: tt.Len, Sized: tt.Sized}
	default:
		return b.NewPointer(name, t, pos)
	}
	elem, _ := types.Elem(t)
	inner := b.NewPointer(name, elem, pos)
	inner.levels = append([]Level{outer}, inner.levels...)
	return inner
}

// Deref returns a view of pv without its outermost level. It shares atoms
// with pv. Dereferencing a variable without levels returns nil.
func (b *Builder) Deref(pv *PointerVariable) *PointerVariable {
	if len(pv.levels) == 0 {
		return nil
	}
	return &PointerVariable{
		id:      b.id(),
		name:    pv.name,
		levels:  pv.levels[1:],
		base:    pv.base,
		fv:      pv.fv,
		TypeVar: -1,
	}
}

// AddrOf returns a variable for the address of v: a constant Ptr level on
// top of v's levels. The address of a function is a function pointer.
func (b *Builder) AddrOf(v Var) *PointerVariable {
	switch v := v.(type) {
	case *PointerVariable:
		levels := append([]Level{{Atom: constraints.Ptr}}, v.levels...)
		return &PointerVariable{id: b.id(), name: v.name, levels: levels, base: v.base, fv: v.fv, TypeVar: -1}
	case *FunctionVariable:
		return &PointerVariable{id: b.id(), name: v.name, levels: []Level{{Atom: constraints.Ptr}}, fv: v, TypeVar: -1}
	default:
		panic(fmt.Sprintf("unexpected variable %T", v))
	}
}

// Set is an ordered set of constraint variables.
type Set = set.TreeSet[Var]

func compare(a, b Var) int { return a.ID() - b.ID() }

func NewSet(vs ...Var) *Set {
	return set.TreeSetFrom[Var](vs, compare)
}

// Union returns a new set containing the elements of all sets.
func Union(sets ...*Set) *Set {
	out := NewSet()
	for _, s := range sets {
		if s == nil {
			continue
		}
		for _, v := range s.Slice() {
			out.Insert(v)
		}
	}
	return out
}
