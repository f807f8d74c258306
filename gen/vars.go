// Package gen implements the per-unit passes that populate a program
// registry: registering constraint variables for declarations, deciding
// the instantiations of generic calls, and generating constraints from
// expressions and statements.
package gen

import (
	"honnef.co/go/cconv/bounds"
	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/cvars"
	"honnef.co/go/cconv/program"
)

const (
	reasonVoid      = "Default void* type"
	reasonVaList    = "Variable type is va_list."
	reasonMacro     = "Pointer in macro declaration."
	reasonExtStruct = "External struct field or union encountered"
	reasonInline    = "Inline struct encountered."
)

type pendingBounds struct {
	key    bounds.Key
	bounds *ast.BoundsExpr
}

// adder registers variables for the declarations of one unit.
type adder struct {
	info    *program.Info
	idx     *ast.Index
	batch   program.Batch
	pending []pendingBounds
}

// AddVariables registers a constraint variable for every pointer or array
// declaration of the active unit, a function variable for every function,
// and a bounds key for every named declaration. Declarations that were
// registered by an earlier unit keep their variables.
func AddVariables(info *program.Info) {
	a := &adder{info: info, idx: info.Index()}
	for _, d := range a.idx.Unit().Decls {
		ast.Inspect(d, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.VarDecl:
				a.varDecl(n)
			case *ast.FuncDecl:
				a.funcDecl(n)
			case *ast.RecordDecl:
				a.recordDecl(n)
			}
			return true
		})
	}
	// Annotations may refer to declarations that follow them, such as
	// later parameters.
	for _, p := range a.pending {
		info.Bounds.SetDeclared(p.key, info.Bounds.GetBoundsInfo(p.bounds))
	}
	info.Apply(&a.batch)
}

func isStatic(s ast.Storage) bool { return s == ast.Static }

// scopeOf returns the bounds scope of a variable declared at pos.
func (a *adder) scopeOf(pos ast.Pos, global bool) bounds.Scope {
	if global {
		return bounds.Global()
	}
	if fn, ok := a.idx.Func(pos); ok {
		return bounds.Function(fn.Name, isStatic(fn.Storage), a.idx.Unit().File)
	}
	return bounds.Global()
}

func hasPointer(t types.Type) bool { return types.IsPointer(t) }

// intro applies the constraints every new variable of type t gets
// regardless of how it is used.
func (a *adder) intro(pv *cvars.PointerVariable, t types.Type, pos ast.Pos, macro bool) {
	vs := cvars.NewSet(pv)
	switch {
	case macro:
		a.batch.Add(program.OuterFact{Vars: vs, Q: constraints.Wild, All: true, Reason: reasonMacro, Pos: pos})
	case types.IsVaList(types.Base(t)):
		a.batch.Add(program.OuterFact{Vars: vs, Q: constraints.Wild, All: true, Reason: reasonVaList, Pos: pos})
	case types.IsVoidPointer(t) && !pv.IsGeneric():
		// Only the level that points to void is unsafe.
		atoms := pv.Atoms()
		a.batch.Add(program.AtomFact{Atom: atoms[len(atoms)-1], Q: constraints.Wild, Reason: reasonVoid, Pos: pos})
	}
}

func (a *adder) newPointer(name string, t types.Type, pos ast.Pos, key bounds.Key, itype types.Type) *cvars.PointerVariable {
	pv := a.info.Builder.NewPointer(name, t, pos)
	pv.SetBoundsKey(key)
	pv.HasItype = itype != nil
	return pv
}

func (a *adder) varDecl(v *ast.VarDecl) {
	key := a.info.Bounds.InsertVariable(v.At, v.Name, a.scopeOf(v.At, v.Global), v.T)
	d := program.Decl{
		Pos:       v.At,
		Name:      v.Name,
		Kind:      program.KindVar,
		File:      v.At.File,
		Global:    v.Global,
		Storage:   v.Storage,
		Range:     v.Range,
		Declared:  v.T,
		Itype:     v.Itype,
		HasBounds: v.Bounds != nil,
		Static:    isStatic(v.Storage),
		Macro:     v.Macro,
		SysHeader: v.SysHeader,
	}
	if v.Global {
		a.info.AddSymbol(d, false, v.Storage != ast.Extern || v.Init != nil)
	}
	if !hasPointer(v.T) {
		return
	}
	if !a.info.HasVariable(v.At) {
		pv := a.newPointer(v.Name, v.T, v.At, key, v.Itype)
		a.info.AddVariable(d, pv)
		a.intro(pv, v.T, v.At, v.Macro)
		if v.Bounds != nil {
			a.pending = append(a.pending, pendingBounds{key, v.Bounds})
		}
	}
}

func (a *adder) funcDecl(fn *ast.FuncDecl) {
	static := isStatic(fn.Storage)
	scope := bounds.Param(fn.Name, static, a.idx.Unit().File)
	d := program.Decl{
		Pos:       fn.At,
		Name:      fn.Name,
		Kind:      program.KindFunc,
		File:      fn.At.File,
		Global:    true,
		Storage:   fn.Storage,
		Range:     fn.Range,
		Declared:  fn.Result,
		Itype:     fn.ResultItype,
		HasBounds: fn.ResultBounds != nil,
		Static:    static,
		SysHeader: fn.SysHeader,
		ParamsEnd: fn.ParamsEnd,
	}
	if a.info.HasVariable(fn.At) {
		a.info.AddSymbol(d, true, fn.Body != nil)
		return
	}

	retKey := a.info.Bounds.InsertVariable(fn.At, fn.Name, scope, fn.Result)
	ret := a.newPointer(fn.Name, fn.Result, fn.At, retKey, fn.ResultItype)
	ret.TypeVar = fn.ResultTypeVar
	if fn.ResultBounds != nil {
		a.pending = append(a.pending, pendingBounds{retKey, fn.ResultBounds})
	}

	var params []*cvars.PointerVariable
	for _, p := range fn.Params {
		key := a.info.Bounds.InsertVariable(p.At, p.Name, scope, p.T)
		pv := a.newPointer(p.Name, p.T, p.At, key, p.Itype)
		pv.TypeVar = p.TypeVar
		params = append(params, pv)
		if p.Bounds != nil {
			a.pending = append(a.pending, pendingBounds{key, p.Bounds})
		}
	}

	fv := a.info.Builder.NewFunction(fn.Name, ret, params)
	fv.Variadic = fn.Variadic
	fv.Prototyped = fn.Prototyped
	fv.TypeParams = fn.TypeParams
	fv.HasBody = fn.Body != nil
	fv.Static = static
	fv.File = fn.At.File
	a.info.AddVariable(d, fv)
	a.info.AddSymbol(d, true, fn.Body != nil)

	if hasPointer(fn.Result) {
		a.intro(ret, fn.Result, fn.At, false)
	}
	for i, p := range fn.Params {
		if !hasPointer(p.T) {
			continue
		}
		a.info.AddVariable(program.Decl{
			Pos:       p.At,
			Name:      p.Name,
			Kind:      program.KindParam,
			File:      p.At.File,
			Range:     p.Range,
			Declared:  p.T,
			Itype:     p.Itype,
			HasBounds: p.Bounds != nil,
			Static:    static,
			SysHeader: fn.SysHeader,
		}, params[i])
		a.intro(params[i], p.T, p.At, false)
	}
}

func (a *adder) recordDecl(r *ast.RecordDecl) {
	scope := bounds.Struct(r.Tag().String())
	for _, f := range r.Fields {
		key := a.info.Bounds.InsertVariable(f.At, f.Name, scope, f.T)
		if !hasPointer(f.T) || a.info.HasVariable(f.At) {
			continue
		}
		pv := a.newPointer(f.Name, f.T, f.At, key, f.Itype)
		a.info.AddVariable(program.Decl{
			Pos:       f.At,
			Name:      f.Name,
			Kind:      program.KindField,
			File:      f.At.File,
			Range:     f.Range,
			Declared:  f.T,
			Itype:     f.Itype,
			HasBounds: f.Bounds != nil,
			Record:    r.Tag().String(),
			SysHeader: r.SysHeader,
		}, pv)
		if f.Bounds != nil {
			a.pending = append(a.pending, pendingBounds{key, f.Bounds})
		}
		if r.Union || r.SysHeader {
			a.batch.Add(program.OuterFact{Vars: cvars.NewSet(pv), Q: constraints.Wild, All: true, Reason: reasonExtStruct, Pos: f.At})
			continue
		}
		a.intro(pv, f.T, f.At, false)
	}
}
