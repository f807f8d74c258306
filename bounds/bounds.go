// Package bounds models array bounds: the abstract variables that can carry
// array lengths, the bounds expressions built from them, and the inference
// that assigns bounds to array pointers after qualifier solving.
package bounds

import (
	"fmt"
	"slices"
	"strconv"

	"golang.org/x/exp/constraints"
	"golang.org/x/tools/container/intsets"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
)

// Key identifies one declaration that can take part in a bounds
// relationship. The zero Key is invalid.
type Key uint32

func (k Key) String() string { return "b_" + strconv.Itoa(int(k)) }

type ScopeKind uint8

const (
	GlobalScope ScopeKind = iota
	FunctionScope
	ParamScope
	StructScope
	ConstScope
)

// Scope describes where a program variable is declared. Name is the
// function or struct name; static functions are further qualified by
// File.
type Scope struct {
	Kind   ScopeKind
	Name   string
	Static bool
	File   string
}

func Global() Scope { return Scope{Kind: GlobalScope} }

func Function(name string, static bool, file string) Scope {
	s := Scope{Kind: FunctionScope, Name: name, Static: static}
	if static {
		s.File = file
	}
	return s
}

func Param(name string, static bool, file string) Scope {
	s := Function(name, static, file)
	s.Kind = ParamScope
	return s
}

func Struct(name string) Scope { return Scope{Kind: StructScope, Name: name} }

func (s Scope) String() string {
	switch s.Kind {
	case GlobalScope:
		return "global"
	case FunctionScope:
		return "function " + s.Name
	case ParamScope:
		return "parameters of " + s.Name
	case StructScope:
		return "struct " + s.Name
	case ConstScope:
		return "constant"
	default:
		return fmt.Sprintf("Scope(%d)", s.Kind)
	}
}

func (s Scope) sameFunc(o Scope) bool {
	return s.Name == o.Name && s.Static == o.Static && s.File == o.File
}

// Sees reports whether a bounds expression attached to a variable in scope
// s may refer to a variable in scope o. Parameters may only refer to
// parameters of the same function, locals to locals and parameters of
// their function, fields to fields of their struct; globals and constants
// are visible everywhere except inside structs, which only see constants.
func (s Scope) Sees(o Scope) bool {
	switch o.Kind {
	case ConstScope:
		return true
	case GlobalScope:
		return s.Kind != StructScope
	case ParamScope:
		return (s.Kind == ParamScope || s.Kind == FunctionScope) && s.sameFunc(o)
	case FunctionScope:
		return s.Kind == FunctionScope && s.sameFunc(o)
	case StructScope:
		return s.Kind == StructScope && s.Name == o.Name
	default:
		return false
	}
}

// ProgramVar names a bounds key.
type ProgramVar struct {
	Key   Key
	Name  string
	Scope Scope
	// Integer is set for variables of integer type, the only kind that
	// can bound an array.
	Integer bool
	Const   bool
	Value   int64
}

func (v *ProgramVar) String() string { return v.Name }

// ABounds is a bounds expression over program variables.
type ABounds interface {
	// MkString renders the bounds annotation, such as "count(n)".
	MkString(info *Info) string
	Keys() []Key
	isBounds()
}

type (
	CountBound struct{ Len Key }
	ByteBound  struct{ Len Key }
	RangeBound struct{ Lo, Hi Key }
)

func (CountBound) isBounds() {}
func (ByteBound) isBounds()  {}
func (RangeBound) isBounds() {}

func (b CountBound) Keys() []Key { return []Key{b.Len} }
func (b ByteBound) Keys() []Key  { return []Key{b.Len} }
func (b RangeBound) Keys() []Key { return []Key{b.Lo, b.Hi} }

func (b CountBound) MkString(info *Info) string { return "count(" + info.name(b.Len) + ")" }
func (b ByteBound) MkString(info *Info) string  { return "byte_count(" + info.name(b.Len) + ")" }
func (b RangeBound) MkString(info *Info) string {
	return "bounds(" + info.name(b.Lo) + ", " + info.name(b.Hi) + ")"
}

// withKeys returns a copy of b with its keys replaced, in the order
// returned by Keys.
func withKeys(b ABounds, keys []Key) ABounds {
	switch b.(type) {
	case CountBound:
		return CountBound{keys[0]}
	case ByteBound:
		return ByteBound{keys[0]}
	case RangeBound:
		return RangeBound{keys[0], keys[1]}
	default:
		panic(fmt.Sprintf("unexpected bounds %T", b))
	}
}

// Source records how a bound was obtained.
type Source uint8

const (
	NoSource Source = iota
	Declared
	Allocator
	Loop
	Dataflow
	NameMatch
)

func (s Source) String() string {
	switch s {
	case Declared:
		return "declared"
	case Allocator:
		return "allocator"
	case Loop:
		return "loop"
	case Dataflow:
		return "dataflow"
	case NameMatch:
		return "name"
	default:
		return "none"
	}
}

type result struct {
	b   ABounds
	src Source
}

// Info owns every bounds key of a run, the bounds facts collected during
// constraint generation, and the bounds inferred from them.
type Info struct {
	// NameHeuristics enables matching arrays with integer variables named
	// after them, such as buf and buf_len.
	NameHeuristics bool

	next   Key
	vars   map[Key]*ProgramVar
	byPos  map[ast.Pos]Key
	consts map[int64]Key

	declared     map[Key]ABounds
	allocs       map[Key]ABounds
	allocInvalid intsets.Sparse
	potential    map[Key][]Key
	flow         map[Key]*intsets.Sparse

	results map[Key]result
	invalid intsets.Sparse
	stats   Stats
}

func NewInfo() *Info {
	return &Info{
		vars:      map[Key]*ProgramVar{},
		byPos:     map[ast.Pos]Key{},
		consts:    map[int64]Key{},
		declared:  map[Key]ABounds{},
		allocs:    map[Key]ABounds{},
		potential: map[Key][]Key{},
		flow:      map[Key]*intsets.Sparse{},
		results:   map[Key]result{},
	}
}

func (info *Info) newKey() Key {
	info.next++
	return info.next
}

func (info *Info) name(k Key) string {
	if v, ok := info.vars[k]; ok {
		return v.Name
	}
	return k.String()
}

// Var returns the program variable for k.
func (info *Info) Var(k Key) (*ProgramVar, bool) {
	v, ok := info.vars[k]
	return v, ok
}

func isInteger(t types.Type) bool {
	switch t := t.(type) {
	case *types.Basic:
		switch t.Name {
		case "void", "float", "double", "long double":
			return false
		}
		return true
	case *types.Named:
		return t.Tag == "enum"
	default:
		return false
	}
}

// InsertVariable returns the key of the declaration at pos, allocating one
// on first use.
func (info *Info) InsertVariable(pos ast.Pos, name string, scope Scope, t types.Type) Key {
	if k, ok := info.byPos[pos]; ok {
		return k
	}
	k := info.newKey()
	info.byPos[pos] = k
	info.vars[k] = &ProgramVar{Key: k, Name: name, Scope: scope, Integer: isInteger(t)}
	return k
}

// TryGetVariable returns the key of the declaration at pos.
func (info *Info) TryGetVariable(pos ast.Pos) (Key, bool) {
	k, ok := info.byPos[pos]
	return k, ok
}

// ConstKey returns the shared key of an integer constant.
func (info *Info) ConstKey(v int64) Key {
	if k, ok := info.consts[v]; ok {
		return k
	}
	k := info.newKey()
	info.consts[v] = k
	info.vars[k] = &ProgramVar{Key: k, Name: strconv.FormatInt(v, 10), Scope: Scope{Kind: ConstScope}, Integer: true, Const: true, Value: v}
	return k
}

// TryGetExprKey resolves e to a single key: integer constants, references
// to declarations, and member accesses. Parentheses and non-pointer casts
// are looked through.
func (info *Info) TryGetExprKey(e ast.Expr) (Key, bool) {
	for {
		switch x := e.(type) {
		case *ast.Paren:
			e = x.X
			continue
		case *ast.Cast:
			if types.IsPointer(x.Type()) {
				return 0, false
			}
			e = x.X
			continue
		case *ast.IntLit:
			return info.ConstKey(x.Value), true
		case *ast.Ident:
			return info.TryGetVariable(x.Ref)
		case *ast.Member:
			return info.TryGetVariable(x.Field)
		}
		return 0, false
	}
}

// GetBoundsInfo converts a declared bounds annotation. It returns nil if
// any part of the annotation does not resolve to a known key.
func (info *Info) GetBoundsInfo(b *ast.BoundsExpr) ABounds {
	if b == nil {
		return nil
	}
	switch b.Kind {
	case ast.CountBounds, ast.ByteCountBounds:
		k, ok := info.TryGetExprKey(b.X)
		if !ok {
			return nil
		}
		if b.Kind == ast.CountBounds {
			return CountBound{k}
		}
		return ByteBound{k}
	case ast.RangeBounds:
		lo, ok1 := info.TryGetExprKey(b.Lo)
		hi, ok2 := info.TryGetExprKey(b.Hi)
		if !ok1 || !ok2 {
			return nil
		}
		return RangeBound{lo, hi}
	default:
		return nil
	}
}

// SetDeclared records the annotated bounds of k.
func (info *Info) SetDeclared(k Key, b ABounds) {
	if k != 0 && b != nil {
		info.declared[k] = b
	}
}

// AddAssignment records that values flow between k1 and k2. The relation
// is symmetric.
func (info *Info) AddAssignment(k1, k2 Key) {
	if k1 == 0 || k2 == 0 || k1 == k2 {
		return
	}
	info.edges(k1).Insert(int(k2))
	info.edges(k2).Insert(int(k1))
}

func (info *Info) edges(k Key) *intsets.Sparse {
	s, ok := info.flow[k]
	if !ok {
		s = &intsets.Sparse{}
		info.flow[k] = s
	}
	return s
}

// Neighbors returns the keys k has been assigned to or from, in ascending
// order.
func (info *Info) Neighbors(k Key) []Key {
	s, ok := info.flow[k]
	if !ok {
		return nil
	}
	var out []Key
	for _, x := range s.AppendTo(nil) {
		out = append(out, Key(x))
	}
	return out
}

// AddAllocation records the bound implied by assigning the result of an
// allocator call to k. Conflicting allocations cancel each other.
func (info *Info) AddAllocation(k Key, b ABounds) {
	if k == 0 || b == nil {
		return
	}
	if prev, ok := info.allocs[k]; ok && prev != b {
		info.allocInvalid.Insert(int(k))
		return
	}
	info.allocs[k] = b
}

// AddPotential records that arr is indexed by a loop variable bounded by
// length.
func (info *Info) AddPotential(arr, length Key) {
	if arr == 0 || length == 0 {
		return
	}
	if !slices.Contains(info.potential[arr], length) {
		info.potential[arr] = append(info.potential[arr], length)
	}
}

// Bounds returns the final bound of k and how it was obtained. It is only
// meaningful after Infer.
func (info *Info) Bounds(k Key) (ABounds, Source, bool) {
	r, ok := info.results[k]
	return r.b, r.src, ok
}

// Invalid reports whether k had conflicting candidate bounds.
func (info *Info) Invalid(k Key) bool { return info.invalid.Has(int(k)) }

func sortedKeys[K constraints.Integer, V any](m map[K]V) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
