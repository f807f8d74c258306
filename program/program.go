// Package program implements the registry that owns every constraint
// variable, bounds key and constraint of one run. Translation units are
// entered and exited one at a time; everything that must survive a unit is
// keyed by persistent source positions, never by AST nodes.
package program

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"honnef.co/go/cconv/bounds"
	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/cvars"
)

// Options configures analysis behaviour.
type Options struct {
	// AllTypes enables array and bounds inference. Without it, pointers
	// that would need to be arrays become Wild.
	AllTypes bool
	// HandleVarargs forces arguments passed to the variadic part of a
	// call to Wild. When disabled, they are not constrained at all.
	HandleVarargs bool
	// ExternAllow lists functions and globals that are left alone when no
	// definition is seen.
	ExternAllow []string
	// Allocators lists functions whose result gets a fresh variable at
	// every call site.
	Allocators     []string
	InferBounds    bool
	NameHeuristics bool
}

func DefaultOptions() Options {
	return Options{
		AllTypes:      true,
		HandleVarargs: true,
		ExternAllow:   []string{"malloc", "calloc", "realloc", "free"},
		Allocators:    []string{"malloc", "calloc", "realloc"},
		InferBounds:   true,
	}
}

func (o Options) IsAllocator(name string) bool      { return slices.Contains(o.Allocators, name) }
func (o Options) IsExternAllowed(name string) bool { return slices.Contains(o.ExternAllow, name) }

// Kind classifies declarations for statistics.
type Kind uint8

const (
	KindVar Kind = iota
	KindParam
	KindField
	KindFunc
)

func (k Kind) String() string {
	switch k {
	case KindVar:
		return "variable"
	case KindParam:
		return "parameter"
	case KindField:
		return "field"
	case KindFunc:
		return "function"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Decl describes a declaration independently of the AST it came from.
type Decl struct {
	Pos     ast.Pos
	Name    string
	Kind    Kind
	File    string
	Global  bool
	Storage ast.Storage
	// Range is the source text the rewriter replaces, including any
	// interop type and bounds annotation. For functions it covers the
	// result type and name; annotations of the result follow ParamsEnd.
	Range     ast.Range
	ParamsEnd ast.Pos
	Declared  types.Type
	Itype     types.Type
	HasBounds bool
	// Record is the tag of the enclosing record of a field, such as
	// "struct node".
	Record    string
	// Static is set for static variables and functions, and for the
	// parameters of static functions.
	Static    bool
	Macro     bool
	SysHeader bool
}

// VarMap maps persistent declaration identities to their constraint
// variables.
type VarMap map[ast.Pos]*cvars.Set

// Info is the registry of one run. The zero value is not usable; use New.
type Info struct {
	Options Options
	Logger  *zap.Logger

	Graph   *constraints.Graph
	Builder *cvars.Builder
	Bounds  *bounds.Info

	vars    VarMap
	decls   map[ast.Pos]*Decl
	keyVars map[bounds.Key][]*cvars.PointerVariable
	symbols map[symbolKey]*symbol
	symList []*symbol

	typeArgs  map[ast.Pos]TypeArgFact
	casts     []CastSite
	overrides map[ast.Pos][]constraints.Override

	structInits map[ast.Pos]StructInit
	regions     map[ast.Pos]Region

	unit    *ast.Index
	files   []string
	sources map[string]string

	linked bool
	assign *constraints.Assignment
}

func New(opts Options, logger *zap.Logger) *Info {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := constraints.NewGraph(opts.AllTypes)
	b := bounds.NewInfo()
	b.NameHeuristics = opts.NameHeuristics
	return &Info{
		Options:   opts,
		Logger:    logger,
		Graph:     g,
		Builder:   cvars.NewBuilder(g),
		Bounds:    b,
		vars:      VarMap{},
		decls:     map[ast.Pos]*Decl{},
		keyVars:   map[bounds.Key][]*cvars.PointerVariable{},
		symbols:   map[symbolKey]*symbol{},
		typeArgs:  map[ast.Pos]TypeArgFact{},
		overrides: map[ast.Pos][]constraints.Override{},
		sources:   map[string]string{},

		structInits: map[ast.Pos]StructInit{},
		regions:     map[ast.Pos]Region{},
	}
}

// EnterUnit makes u the active translation unit and returns its index.
// Entering a unit while another one is active is a programming error.
func (info *Info) EnterUnit(u *ast.Unit) *ast.Index {
	if info.unit != nil {
		panic(fmt.Sprintf("entering unit %s while %s is still active", u.File, info.unit.Unit().File))
	}
	if info.linked {
		panic(fmt.Sprintf("entering unit %s after linking", u.File))
	}
	idx := ast.NewIndex(u)
	ast.FillTypes(idx)
	info.unit = idx
	if !slices.Contains(info.files, u.File) {
		info.files = append(info.files, u.File)
	}
	if u.Source != "" {
		info.sources[u.File] = u.Source
	}
	return idx
}

// ExitUnit drops every reference to the active unit's AST.
func (info *Info) ExitUnit() {
	if info.unit == nil {
		panic("ExitUnit called without an active unit")
	}
	info.unit = nil
}

// Index returns the active unit's index. Using the index outside of
// EnterUnit and ExitUnit is a programming error.
func (info *Info) Index() *ast.Index {
	if info.unit == nil {
		panic("no active translation unit; AST nodes must not be used after ExitUnit")
	}
	return info.unit
}

// Files returns the files of all units seen, in order.
func (info *Info) Files() []string { return info.files }

// Source returns the text of file, if its unit carried it.
func (info *Info) Source(file string) (string, bool) {
	s, ok := info.sources[file]
	return s, ok
}

// AddVariable registers v as the constraint variable of d. A declaration
// that was already registered, for example because a header was included
// by several units, keeps its existing variable and AddVariable returns
// false.
func (info *Info) AddVariable(d Decl, v cvars.Var) bool {
	if _, ok := info.vars[d.Pos]; ok {
		return false
	}
	info.vars[d.Pos] = cvars.NewSet(v)
	dd := d
	info.decls[d.Pos] = &dd
	switch v := v.(type) {
	case *cvars.PointerVariable:
		info.addKey(v)
	case *cvars.FunctionVariable:
		info.addKey(v.Return)
	}
	return true
}

func (info *Info) addKey(pv *cvars.PointerVariable) {
	if k := pv.BoundsKey(); k != 0 {
		info.keyVars[k] = append(info.keyVars[k], pv)
	}
}

// HasVariable reports whether a variable was registered at pos.
func (info *Info) HasVariable(pos ast.Pos) bool {
	_, ok := info.vars[pos]
	return ok
}

// Vars returns the variables registered at pos, or nil.
func (info *Info) Vars(pos ast.Pos) *cvars.Set { return info.vars[pos] }

// Variable returns the single variable of the declaration at pos. Asking
// for a declaration that was never registered is a programming error.
func (info *Info) Variable(pos ast.Pos) cvars.Var {
	s := info.vars[pos]
	n := 0
	if s != nil {
		n = s.Size()
	}
	if n != 1 {
		panic(fmt.Sprintf("expected exactly one constraint variable for %s but found %d", pos, n))
	}
	return s.Slice()[0]
}

// Decl returns the description of the declaration at pos.
func (info *Info) Decl(pos ast.Pos) (*Decl, bool) {
	d, ok := info.decls[pos]
	return d, ok
}

// Decls returns all registered declarations ordered by position.
func (info *Info) Decls() []*Decl {
	out := make([]*Decl, 0, len(info.decls))
	for _, d := range info.decls {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Decl) int { return ast.Compare(a.Pos, b.Pos) })
	return out
}

// TypeArgs returns the type arguments inferred for the generic call at pos.
func (info *Info) TypeArgs(pos ast.Pos) ([]types.Type, bool) {
	f, ok := info.typeArgs[pos]
	return f.Args, ok
}

// Instantiations returns every generic call with known type arguments,
// ordered by position.
func (info *Info) Instantiations() []TypeArgFact {
	out := make([]TypeArgFact, 0, len(info.typeArgs))
	for _, pos := range sortedPositions(info.typeArgs) {
		out = append(out, info.typeArgs[pos])
	}
	return out
}

// Casts returns the call arguments that may need an explicit cast.
func (info *Info) Casts() []CastSite { return info.casts }

// StructInits returns the local struct variables declared without an
// initializer, ordered by position.
func (info *Info) StructInits() []StructInit {
	out := make([]StructInit, 0, len(info.structInits))
	for _, pos := range sortedPositions(info.structInits) {
		out = append(out, info.structInits[pos])
	}
	return out
}

// Regions returns the candidate checked regions, ordered by the position
// of their opening brace.
func (info *Info) Regions() []Region {
	out := make([]Region, 0, len(info.regions))
	for _, pos := range sortedPositions(info.regions) {
		out = append(out, info.regions[pos])
	}
	return out
}

// Assignment returns the solution of the last Solve, or nil.
func (info *Info) Assignment() *constraints.Assignment { return info.assign }

// Solve computes the qualifier assignment and, if enabled, infers bounds
// for every variable that solved to an array.
func (info *Info) Solve() *constraints.Assignment {
	if info.unit != nil {
		panic("Solve called while a unit is active")
	}
	var ovs []constraints.Override
	for _, pos := range sortedPositions(info.overrides) {
		ovs = append(ovs, info.overrides[pos]...)
	}
	a := info.Graph.Solve(ovs)
	info.assign = a
	info.Logger.Debug("solved constraints",
		zap.Int("atoms", len(info.Graph.Atoms())),
		zap.Int("constraints", len(info.Graph.Edges())),
		zap.Int("conflicts", len(a.Conflicts())))

	if info.Options.InferBounds && info.Options.AllTypes {
		info.Bounds.Infer(func(k bounds.Key) bool {
			for _, pv := range info.keyVars[k] {
				if at := pv.Outer(); at != nil && a.Of(at) == constraints.Arr {
					return true
				}
			}
			return false
		})
	}
	return a
}

func sortedPositions[V any](m map[ast.Pos]V) []ast.Pos {
	out := make([]ast.Pos, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	slices.SortFunc(out, ast.Compare)
	return out
}

// Override pins one level of a declaration's variable to at least a
// qualifier.
type Override struct {
	Pos    ast.Pos
	Level  int
	Q      constraints.Qualifier
	Reason string
}

// MergeAssignment records externally supplied qualifiers, typically from
// an interactive session. They take effect at the next Solve and replace
// earlier overrides of the same level. Overrides
// for unknown declarations or levels are ignored and reported as false.
func (info *Info) MergeAssignment(ovs []Override) []bool {
	ok := make([]bool, len(ovs))
	for i, o := range ovs {
		s, found := info.vars[o.Pos]
		if !found {
			continue
		}
		pv, isPtr := s.Slice()[0].(*cvars.PointerVariable)
		if fv, isFunc := s.Slice()[0].(*cvars.FunctionVariable); isFunc {
			pv, isPtr = fv.Return, true
		}
		if !isPtr || o.Level < 0 || o.Level >= pv.Depth() {
			continue
		}
		va, isVar := pv.Atoms()[o.Level].(*constraints.VarAtom)
		if !isVar {
			continue
		}
		reason := o.Reason
		if reason == "" {
			reason = "Set by user."
		}
		ov := constraints.Override{Atom: va, Q: o.Q, Reason: reason}
		prev := info.overrides[o.Pos]
		if j := slices.IndexFunc(prev, func(p constraints.Override) bool { return p.Atom == va }); j >= 0 {
			prev[j] = ov
		} else {
			info.overrides[o.Pos] = append(prev, ov)
		}
		ok[i] = true
	}
	return ok
}
