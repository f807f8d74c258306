package gen

import (
	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/program"
)

// Instantiation describes the type arguments of one generic call.
type Instantiation struct {
	Func string
	// Args holds the pointee type bound to each type parameter, or nil.
	Args []types.Type
	// Consistent reports, per type parameter, whether every use in the
	// call agrees on the bound type.
	Consistent []bool
}

func (inst *Instantiation) consistent(tv int) bool {
	return tv >= 0 && tv < len(inst.Consistent) && inst.Consistent[tv] && inst.Args[tv] != nil
}

// Complete reports whether every type parameter is bound consistently.
func (inst *Instantiation) Complete() bool {
	for i := range inst.Args {
		if !inst.consistent(i) {
			return false
		}
	}
	return true
}

// TypeVarInfo maps call positions to their instantiations.
type TypeVarInfo map[ast.Pos]*Instantiation

// calleeDecl returns the declaration of a direct callee.
func calleeDecl(idx *ast.Index, c *ast.Call) (*ast.FuncDecl, bool) {
	id, ok := ast.Unparen(c.Fun, true).(*ast.Ident)
	if !ok {
		return nil, false
	}
	d, ok := idx.Decl(id.Ref)
	if !ok {
		return nil, false
	}
	fn, ok := d.(*ast.FuncDecl)
	return fn, ok
}

// castTargets maps calls that are the direct operand of a cast to the
// cast's type.
func castTargets(u *ast.Unit) map[ast.Pos]types.Type {
	out := map[ast.Pos]types.Type{}
	for _, d := range u.Decls {
		ast.Inspect(d, func(n ast.Node) bool {
			if c, ok := n.(*ast.Cast); ok {
				if call, ok := ast.Unparen(c.X, false).(*ast.Call); ok {
					out[call.At] = c.Type()
				}
			}
			return true
		})
	}
	return out
}

// TypeVars decides the instantiation of every call to a generic function
// in the active unit. A type parameter is bound consistently if all
// arguments passed for it, with implicit casts stripped, point to the same
// type, and the cast applied to a generic result agrees with them. Calls
// whose type parameters are all bound are recorded for rewriting.
func TypeVars(info *program.Info) TypeVarInfo {
	idx := info.Index()
	targets := castTargets(idx.Unit())
	out := TypeVarInfo{}
	var batch program.Batch
	for _, d := range idx.Unit().Decls {
		ast.Inspect(d, func(n ast.Node) bool {
			c, ok := n.(*ast.Call)
			if !ok {
				return true
			}
			fn, ok := calleeDecl(idx, c)
			if !ok || fn.TypeParams == 0 {
				return true
			}
			inst := &Instantiation{
				Func:       fn.Name,
				Args:       make([]types.Type, fn.TypeParams),
				Consistent: make([]bool, fn.TypeParams),
			}
			for i := range inst.Consistent {
				inst.Consistent[i] = true
			}
			bind := func(tv int, t types.Type) {
				if tv < 0 || tv >= fn.TypeParams || t == nil {
					return
				}
				elem, ok := types.Elem(t)
				if !ok || types.IsVoidPointer(t) {
					inst.Consistent[tv] = false
					return
				}
				if prev := inst.Args[tv]; prev != nil && !types.Identical(prev, elem) {
					inst.Consistent[tv] = false
					return
				}
				inst.Args[tv] = elem
			}
			for i, arg := range c.Args {
				if i >= len(fn.Params) {
					break
				}
				if ast.IsNull(arg) {
					continue
				}
				bind(fn.Params[i].TypeVar, ast.Unparen(arg, true).Type())
			}
			if t, ok := targets[c.At]; ok {
				bind(fn.ResultTypeVar, t)
			}
			out[c.At] = inst
			if inst.Complete() {
				batch.Add(program.TypeArgFact{Call: c.At, Args: inst.Args, Callee: c.Fun.Extent()})
			}
			return true
		})
	}
	info.Apply(&batch)
	return out
}
