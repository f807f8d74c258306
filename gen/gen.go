package gen

import (
	"fmt"

	"go.uber.org/zap"

	"honnef.co/go/cconv/bounds"
	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/cvars"
	"honnef.co/go/cconv/program"
)

const (
	reasonAssign    = "Assignment."
	reasonInit      = "Initialization."
	reasonArg       = "Argument passed to parameter."
	reasonReturn    = "Return value."
	reasonArith     = "Pointer arithmetic."
	reasonSubscript = "Array subscript."
	reasonFnArith   = "Pointer arithmetic performed on a function pointer."
	reasonVarargs   = "Passing argument to a function accepting var args."
	reasonIndirect  = "Called through the same function pointer."
	reasonUnknown   = "Argument to function %s without constraint variables."
)

type generator struct {
	info  *program.Info
	idx   *ast.Index
	tv    TypeVarInfo
	batch program.Batch
	log   *zap.Logger

	fn  *ast.FuncDecl
	fnv *cvars.FunctionVariable
}

// Generate walks every declaration of the active unit and generates
// constraints. Facts are applied to the registry after each top-level
// declaration.
func Generate(info *program.Info, tv TypeVarInfo) {
	g := &generator{info: info, idx: info.Index(), tv: tv, log: info.Logger}
	decls := g.idx.Unit().Decls
	for i, d := range decls {
		switch d := d.(type) {
		case *ast.VarDecl:
			g.varDecl(d)
		case *ast.FuncDecl:
			g.funcDecl(d)
		}
		g.inlineStruct(decls, i)
		info.Apply(&g.batch)
	}
}

// Unit runs all passes over the active unit.
func Unit(info *program.Info) {
	AddVariables(info)
	tv := TypeVars(info)
	Generate(info, tv)
	Regions(info)
}

func (g *generator) b() *cvars.Builder { return g.info.Builder }

func (g *generator) wild(vs *cvars.Set, reason string, pos ast.Pos) {
	if vs == nil || vs.Size() == 0 {
		return
	}
	g.batch.Add(program.Wild(vs, reason, pos))
}

func (g *generator) geq(lhs, rhs *cvars.Set, reason string, pos ast.Pos) {
	if lhs == nil || rhs == nil || lhs.Size() == 0 || rhs.Size() == 0 {
		return
	}
	g.batch.Add(program.GeqFact{LHS: lhs, RHS: rhs, Reason: reason, Pos: pos})
}

func (g *generator) outer(vs *cvars.Set, q constraints.Qualifier, reason string, pos ast.Pos) {
	if vs == nil || vs.Size() == 0 {
		return
	}
	g.batch.Add(program.OuterFact{Vars: vs, Q: q, Reason: reason, Pos: pos})
}

func (g *generator) declVars(pos ast.Pos) *cvars.Set {
	if !g.info.HasVariable(pos) {
		return nil
	}
	return cvars.NewSet(g.info.Variable(pos))
}

func (g *generator) funcDecl(fn *ast.FuncDecl) {
	if fn.Body == nil || fn.SysHeader {
		return
	}
	g.fn = fn
	g.fnv = g.info.Variable(fn.At).(*cvars.FunctionVariable)
	g.stmt(fn.Body)
	g.fn, g.fnv = nil, nil
}

func (g *generator) varDecl(v *ast.VarDecl) {
	if v.Init == nil {
		return
	}
	lhs := g.declVars(v.At)
	if list, ok := v.Init.(*ast.InitList); ok {
		g.initList(lhs, v.T, list)
		return
	}
	rhs := g.expr(v.Init)
	g.geq(lhs, rhs, reasonInit, v.At)
	lk, _ := g.info.Bounds.TryGetVariable(v.At)
	g.flow(lk, v.Init, rhs)
}

// flow records the bounds relationships of storing e into the declaration
// with key lk.
func (g *generator) flow(lk bounds.Key, e ast.Expr, vs *cvars.Set) {
	if lk == 0 {
		return
	}
	if c, ok := allocCall(e); ok {
		if g.isAllocator(c) {
			if b := g.allocBounds(c); b != nil {
				g.batch.Add(program.AllocBound{Key: lk, Bounds: b})
			}
		}
		return
	}
	if rk := g.exprKey(e, vs); rk != 0 {
		g.batch.Add(program.BoundsEdge{A: lk, B: rk})
	}
}

// exprKey returns the bounds key an expression's value carries: the key
// of a single pointer variable, or of an integer variable.
func (g *generator) exprKey(e ast.Expr, vs *cvars.Set) bounds.Key {
	if t := e.Type(); t != nil && types.IsPointer(t) {
		if vs == nil || vs.Size() != 1 {
			return 0
		}
		return vs.Slice()[0].BoundsKey()
	}
	k, ok := g.info.Bounds.TryGetExprKey(e)
	if !ok {
		return 0
	}
	if v, _ := g.info.Bounds.Var(k); v.Const {
		return 0
	}
	return k
}

// initList constrains the targets of a brace initializer: struct fields
// for records and the element level for arrays.
func (g *generator) initList(lhs *cvars.Set, t types.Type, list *ast.InitList) {
	if n, ok := t.(*types.Named); ok {
		rec, ok := g.idx.Record(n.String())
		if !ok {
			g.exprs(list.Elems)
			return
		}
		for i, e := range list.Elems {
			if i >= len(rec.Fields) {
				g.expr(e)
				continue
			}
			f := rec.Fields[i]
			if sub, ok := e.(*ast.InitList); ok {
				g.initList(g.declVars(f.At), f.T, sub)
				continue
			}
			g.geq(g.declVars(f.At), g.expr(e), reasonInit, e.Pos())
		}
		return
	}
	elem, isArray := types.Elem(t)
	if !isArray {
		g.exprs(list.Elems)
		return
	}
	var elems *cvars.Set
	if lhs != nil {
		elems = cvars.NewSet()
		for _, v := range lhs.Slice() {
			if pv, ok := v.(*cvars.PointerVariable); ok {
				if d := g.b().Deref(pv); d != nil {
					elems.Insert(d)
				}
			}
		}
	}
	for _, e := range list.Elems {
		if sub, ok := e.(*ast.InitList); ok {
			g.initList(elems, elem, sub)
			continue
		}
		g.geq(elems, g.expr(e), reasonInit, e.Pos())
	}
}

func (g *generator) exprs(es []ast.Expr) {
	for _, e := range es {
		g.expr(e)
	}
}

// inlineStruct forces variables declared together with the definition of
// their record type, or of an anonymous record type, to Wild.
func (g *generator) inlineStruct(decls []ast.Decl, i int) {
	v, ok := decls[i].(*ast.VarDecl)
	if !ok || !g.info.HasVariable(v.At) {
		return
	}
	n, ok := types.Base(v.T).(*types.Named)
	if !ok || n.Tag == "enum" {
		return
	}
	inline := n.Name == ""
	if i > 0 {
		if r, ok := decls[i-1].(*ast.RecordDecl); ok && r.Tag().String() == n.String() && len(r.Fields) > 0 {
			inline = true
		}
	}
	if inline {
		g.batch.Add(program.OuterFact{Vars: g.declVars(v.At), Q: constraints.Wild, All: true, Reason: reasonInline, Pos: v.At})
	}
}

func (g *generator) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case nil:
	case *ast.Block:
		for _, s := range s.List {
			g.stmt(s)
		}
	case *ast.DeclStmt:
		for i, d := range s.Decls {
			if v, ok := d.(*ast.VarDecl); ok {
				g.varDecl(v)
			}
			g.inlineStruct(s.Decls, i)
		}
	case *ast.ExprStmt:
		g.expr(s.X)
	case *ast.Return:
		g.ret(s)
	case *ast.If:
		g.expr(s.Cond)
		g.stmt(s.Then)
		g.stmt(s.Else)
	case *ast.For:
		g.stmt(s.Init)
		g.expr(s.Cond)
		g.expr(s.Post)
		g.stmt(s.Body)
		g.loop(s)
	case *ast.While:
		g.expr(s.Cond)
		g.stmt(s.Body)
	default:
		panic(fmt.Sprintf("unexpected statement %T", s))
	}
}

func (g *generator) ret(s *ast.Return) {
	vs := g.expr(s.X)
	if s.X == nil || g.fnv == nil {
		return
	}
	ret := g.fnv.Return
	if ret.Depth() == 0 && ret.FV() == nil {
		return
	}
	g.geq(cvars.NewSet(ret), vs, reasonReturn, s.At)
	g.flow(ret.BoundsKey(), s.X, vs)
}

// loop records potential bounds for arrays indexed by the induction
// variable of a loop of the form for (i = ...; i < n; ...).
func (g *generator) loop(s *ast.For) {
	cond, ok := ast.Unparen(s.Cond, true).(*ast.Binary)
	if !ok || (cond.Op != "<" && cond.Op != "!=") {
		return
	}
	iv, ok := ast.Unparen(cond.X, true).(*ast.Ident)
	if !ok || !iv.Ref.IsValid() {
		return
	}
	n, ok := g.info.Bounds.TryGetExprKey(cond.Y)
	if !ok {
		return
	}
	if s.Body == nil {
		return
	}
	ast.Inspect(s.Body, func(node ast.Node) bool {
		ix, ok := node.(*ast.Index)
		if !ok {
			return true
		}
		i, ok := ast.Unparen(ix.Index, true).(*ast.Ident)
		if !ok || i.Ref != iv.Ref {
			return true
		}
		arr, ok := ast.Unparen(ix.X, true).(*ast.Ident)
		if !ok {
			return true
		}
		if k, ok := g.info.Bounds.TryGetVariable(arr.Ref); ok {
			g.batch.Add(program.LoopBound{Arr: k, Len: n})
		}
		return true
	})
}
