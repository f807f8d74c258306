package gen

import (
	"fmt"

	"go.uber.org/zap"

	"honnef.co/go/cconv/bounds"
	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/cvars"
	"honnef.co/go/cconv/program"
)

// calleeName returns the name of a direct callee, or the empty string.
func calleeName(c *ast.Call) string {
	if id, ok := ast.Unparen(c.Fun, true).(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

// allocCall returns the call an expression evaluates, looking through
// parentheses and casts.
func allocCall(e ast.Expr) (*ast.Call, bool) {
	for {
		switch x := e.(type) {
		case *ast.Paren:
			e = x.X
		case *ast.Cast:
			e = x.X
		case *ast.Call:
			return x, true
		default:
			return nil, false
		}
	}
}

func (g *generator) isAllocator(c *ast.Call) bool {
	name := calleeName(c)
	return name != "" && g.info.Options.IsAllocator(name)
}

// sizeBounds converts the size argument of an allocator: n * sizeof(T)
// allocates n elements, sizeof(T) a single one, and anything else a
// number of bytes.
func (g *generator) sizeBounds(e ast.Expr) bounds.ABounds {
	e = ast.Unparen(e, true)
	if b, ok := e.(*ast.Binary); ok && b.Op == "*" {
		n := b.X
		if _, ok := ast.Unparen(n, true).(*ast.SizeOf); ok {
			n = b.Y
		} else if _, ok := ast.Unparen(b.Y, true).(*ast.SizeOf); !ok {
			return nil
		}
		if k, ok := g.info.Bounds.TryGetExprKey(n); ok {
			return bounds.CountBound{Len: k}
		}
		return nil
	}
	if _, ok := e.(*ast.SizeOf); ok {
		return bounds.CountBound{Len: g.info.Bounds.ConstKey(1)}
	}
	if k, ok := g.info.Bounds.TryGetExprKey(e); ok {
		return bounds.ByteBound{Len: k}
	}
	return nil
}

// allocBounds returns the bounds of the memory an allocator call returns,
// or nil.
func (g *generator) allocBounds(c *ast.Call) bounds.ABounds {
	switch calleeName(c) {
	case "calloc":
		if len(c.Args) != 2 {
			return nil
		}
		if k, ok := g.info.Bounds.TryGetExprKey(c.Args[0]); ok {
			return bounds.CountBound{Len: k}
		}
		return nil
	case "realloc":
		if len(c.Args) != 2 {
			return nil
		}
		return g.sizeBounds(c.Args[1])
	default:
		if len(c.Args) != 1 {
			return nil
		}
		return g.sizeBounds(c.Args[0])
	}
}

// callees returns the function variables a call may invoke and the name
// used in diagnostics.
func (g *generator) callees(c *ast.Call) (fvs []*cvars.FunctionVariable, direct *ast.FuncDecl, name string) {
	if fn, ok := calleeDecl(g.idx, c); ok {
		g.expr(c.Fun)
		return []*cvars.FunctionVariable{g.info.Variable(fn.At).(*cvars.FunctionVariable)}, fn, fn.Name
	}
	name = calleeName(c)
	if id, ok := ast.Unparen(c.Fun, true).(*ast.Ident); ok && !id.Ref.IsValid() {
		if fv, ok := g.info.LookupFunc(id.Name, g.idx.Unit().File); ok {
			return []*cvars.FunctionVariable{fv}, nil, name
		}
		return nil, nil, name
	}
	if name == "" {
		name = "pointer call"
	}
	vs := g.expr(c.Fun)
	if vs == nil {
		return nil, nil, name
	}
	for _, v := range vs.Slice() {
		switch v := v.(type) {
		case *cvars.FunctionVariable:
			fvs = append(fvs, v)
		case *cvars.PointerVariable:
			if v.FV() != nil {
				fvs = append(fvs, v.FV())
			}
		}
	}
	if vs.Size() > 1 {
		g.batch.Add(program.EqFact{Vars: vs, Reason: reasonIndirect, Pos: c.At})
	}
	return fvs, nil, name
}

// call generates the constraints of a call and returns the variables of
// its result. target is the pointer type the result is cast to, if any.
// The second result reports whether the result variable is fresh.
func (g *generator) call(c *ast.Call, target types.Type) (*cvars.Set, bool) {
	fvs, direct, name := g.callees(c)
	alloc := g.isAllocator(c)
	var inst *Instantiation
	if direct != nil {
		inst = g.tv[c.At]
	}

	args := make([]*cvars.Set, len(c.Args))
	for i, arg := range c.Args {
		// Implicit casts to and from a consistently bound type parameter
		// are dropped.
		if inst != nil && i < len(direct.Params) && inst.consistent(direct.Params[i].TypeVar) {
			arg = ast.Unparen(arg, true)
		}
		args[i] = g.expr(arg)
	}

	if len(fvs) == 0 {
		if alloc {
			return g.fresh(c, target, nil, true)
		}
		for _, vs := range args {
			g.wild(vs, fmt.Sprintf(reasonUnknown, name), c.At)
		}
		return nil, false
	}

	for _, fv := range fvs {
		for i, arg := range c.Args {
			if i >= len(fv.Params) {
				g.varargs(fv, args[i], c)
				continue
			}
			p := fv.Params[i]
			g.geq(cvars.NewSet(p), args[i], reasonArg, arg.Pos())
			if g.info.Options.AllTypes && p.BoundsKey() != 0 {
				if rk := g.exprKey(arg, args[i]); rk != 0 {
					g.batch.Add(program.BoundsEdge{A: p.BoundsKey(), B: rk})
				}
			}
			g.castSite(name, p, arg, args[i])
		}
	}

	if len(fvs) == 1 {
		ret := fvs[0].Return
		generic := ret.IsGeneric() && target != nil && inst != nil && inst.consistent(ret.TypeVar)
		if alloc || generic {
			return g.fresh(c, target, ret, alloc)
		}
	}
	out := cvars.NewSet()
	for _, fv := range fvs {
		if fv.Return.Depth() > 0 || fv.Return.FV() != nil {
			out.Insert(fv.Return)
		}
	}
	return out, false
}

// fresh returns a new variable for the result of an allocation or a
// generic call, shaped by the type the result is cast to. The result of a
// generic function flows into it; an allocator's declared result does not.
func (g *generator) fresh(c *ast.Call, target types.Type, ret *cvars.PointerVariable, alloc bool) (*cvars.Set, bool) {
	t := target
	if t == nil {
		t = c.Type()
	}
	if t == nil || !types.IsPointer(t) {
		return nil, false
	}
	pv := g.b().NewPointer(calleeName(c), types.Uncheck(t), c.At)
	vs := cvars.NewSet(pv)
	if ret != nil && !alloc {
		g.geq(vs, cvars.NewSet(ret), reasonReturn, c.At)
	}
	return vs, true
}

func (g *generator) varargs(fv *cvars.FunctionVariable, vs *cvars.Set, c *ast.Call) {
	if g.info.Options.HandleVarargs {
		g.wild(vs, reasonVarargs, c.At)
		return
	}
	g.log.Warn("ignoring variadic argument",
		zap.String("function", fv.Name()),
		zap.Stringer("pos", c.At))
}

// castSite records an argument that may need an explicit cast if it is
// checked while its parameter is not.
func (g *generator) castSite(callee string, p *cvars.PointerVariable, arg ast.Expr, vs *cvars.Set) {
	if p.HasItype || p.Depth() == 0 || vs == nil || vs.Size() != 1 {
		return
	}
	if g.info.Options.IsAllocator(callee) || g.info.Options.IsExternAllowed(callee) {
		return
	}
	switch ast.Unparen(arg, true).(type) {
	case *ast.Ident, *ast.Paren, *ast.Member, *ast.Call:
	default:
		return
	}
	av, ok := vs.Slice()[0].(*cvars.PointerVariable)
	if !ok || av.Depth() == 0 {
		return
	}
	g.batch.Add(program.CastSite{Pos: arg.Pos(), Span: arg.Extent(), Param: p, Arg: av})
}
