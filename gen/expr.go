package gen

import (
	"fmt"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/cvars"
)

type macroExpr interface {
	IsMacro() bool
}

// expr generates the constraints of e and returns the variables its value
// may carry. Every subexpression is visited exactly once.
func (g *generator) expr(e ast.Expr) *cvars.Set {
	if e == nil {
		return nil
	}
	vs := g.expr1(e)
	if m, ok := e.(macroExpr); ok && m.IsMacro() && types.IsPointer(e.Type()) {
		g.wild(vs, reasonMacro, e.Pos())
	}
	return vs
}

func (g *generator) expr1(e ast.Expr) *cvars.Set {
	switch e := e.(type) {
	case *ast.Ident:
		if !e.Ref.IsValid() {
			return nil
		}
		return g.declVars(e.Ref)
	case *ast.IntLit:
		return nil
	case *ast.StringLit:
		t := e.Type()
		if t == nil {
			t = &types.Array{Elem: types.Char, Len: len(e.Value) + 1, Sized: true}
		}
		return cvars.NewSet(g.b().Const("string literal", t, constraints.NTArr, e.At))
	case *ast.Paren:
		return g.expr(e.X)
	case *ast.Cast:
		return g.cast(e)
	case *ast.Call:
		vs, _ := g.call(e, nil)
		return vs
	case *ast.Unary:
		return g.unary(e)
	case *ast.Binary:
		return g.binary(e)
	case *ast.Assign:
		return g.assign(e)
	case *ast.Index:
		xs := g.subscript(e)
		return g.deref(xs)
	case *ast.Member:
		g.expr(e.X)
		if !e.Field.IsValid() {
			return nil
		}
		return g.declVars(e.Field)
	case *ast.Cond:
		g.expr(e.Cond)
		return cvars.Union(g.expr(e.Then), g.expr(e.Else))
	case *ast.InitList:
		g.exprs(e.Elems)
		return nil
	case *ast.SizeOf:
		// The operand is not evaluated.
		return nil
	default:
		panic(fmt.Sprintf("unexpected expression %T", e))
	}
}

// cast checks explicit casts. Variables flowing through an unsafe cast are
// forced to Wild; allocations made by the cast operand are fresh and
// exempt.
func (g *generator) cast(e *ast.Cast) *cvars.Set {
	var (
		vs    *cvars.Set
		fresh bool
	)
	if c, ok := ast.Unparen(e.X, false).(*ast.Call); ok {
		var target types.Type
		if types.IsPointer(e.Type()) {
			target = e.Type()
		}
		vs, fresh = g.call(c, target)
	} else {
		vs = g.expr(e.X)
	}
	if e.Implicit || fresh {
		return vs
	}
	src, dst := e.X.Type(), e.Type()
	if src == nil || dst == nil || ast.IsNull(e.X) {
		return vs
	}
	if !types.CastSafe(dst, src) {
		g.wild(vs, fmt.Sprintf("Casted from %s to %s", src, dst), e.At)
	}
	return vs
}

// deref returns the variables one level below vs.
func (g *generator) deref(vs *cvars.Set) *cvars.Set {
	if vs == nil {
		return nil
	}
	out := cvars.NewSet()
	for _, v := range vs.Slice() {
		switch v := v.(type) {
		case *cvars.PointerVariable:
			if d := g.b().Deref(v); d != nil {
				out.Insert(d)
			}
		case *cvars.FunctionVariable:
			// *f and f denote the same function.
			out.Insert(v)
		}
	}
	return out
}

// arith constrains the operand of pointer arithmetic.
func (g *generator) arith(e ast.Expr, vs *cvars.Set) {
	t := e.Type()
	if t == nil || !types.IsPointer(t) {
		return
	}
	if types.IsFuncPointer(t) {
		g.wild(vs, reasonFnArith, e.Pos())
		return
	}
	g.outer(vs, constraints.Arr, reasonArith, e.Pos())
}

func (g *generator) subscript(e *ast.Index) *cvars.Set {
	xs := g.expr(e.X)
	g.expr(e.Index)
	g.outer(xs, constraints.Arr, reasonSubscript, e.At)
	return xs
}

func (g *generator) unary(e *ast.Unary) *cvars.Set {
	switch e.Op {
	case "&":
		return g.addrOf(e)
	case "*":
		return g.deref(g.expr(e.X))
	case "++", "--":
		vs := g.expr(e.X)
		g.arith(e.X, vs)
		return vs
	default:
		g.expr(e.X)
		return nil
	}
}

func (g *generator) addrOf(e *ast.Unary) *cvars.Set {
	switch x := ast.Unparen(e.X, false).(type) {
	case *ast.Index:
		// &a[i] points into a.
		return g.subscript(x)
	case *ast.Unary:
		if x.Op == "*" {
			return g.expr(x.X)
		}
	}
	vs := g.expr(e.X)
	if vs == nil || vs.Size() == 0 {
		t := e.Type()
		if t == nil || !types.IsPointer(t) {
			return nil
		}
		return cvars.NewSet(g.b().Const("&", t, constraints.Ptr, e.At))
	}
	out := cvars.NewSet()
	for _, v := range vs.Slice() {
		out.Insert(g.b().AddrOf(v))
	}
	return out
}

func (g *generator) binary(e *ast.Binary) *cvars.Set {
	xs := g.expr(e.X)
	ys := g.expr(e.Y)
	switch e.Op {
	case "+", "-":
		g.arith(e.X, xs)
		g.arith(e.Y, ys)
		xp := types.IsPointer(e.X.Type())
		yp := types.IsPointer(e.Y.Type())
		switch {
		case xp && yp:
			return nil
		case xp:
			return xs
		case yp:
			return ys
		}
		return nil
	case ",":
		return ys
	default:
		return nil
	}
}

func (g *generator) assign(e *ast.Assign) *cvars.Set {
	lhs := g.expr(e.LHS)
	switch e.Op {
	case "=":
		rhs := g.expr(e.RHS)
		g.geq(lhs, rhs, reasonAssign, e.At)
		if lk, ok := g.info.Bounds.TryGetExprKey(e.LHS); ok {
			g.flow(lk, e.RHS, rhs)
		}
	case "+=", "-=":
		g.expr(e.RHS)
		g.arith(e.LHS, lhs)
	default:
		g.expr(e.RHS)
	}
	return lhs
}
