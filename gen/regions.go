package gen

import (
	"fmt"
	"slices"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/program"
)

// Regions records, for every compound statement of the active unit with a
// known opening brace, the declarations it uses and any construct that
// rules out a checked region. It also records local struct variables that
// lack an initializer.
func Regions(info *program.Info) {
	w := &regionWalker{info: info, idx: info.Index()}
	for _, d := range w.idx.Unit().Decls {
		fn, ok := d.(*ast.FuncDecl)
		if !ok || fn.Body == nil || fn.SysHeader {
			continue
		}
		// The signature belongs to the body.
		r := &region{}
		r.ref(fn.At)
		for _, p := range fn.Params {
			if info.HasVariable(p.At) {
				r.ref(p.At)
			}
		}
		if fn.Variadic {
			// va_arg and friends are never checked.
			r.fail("variadic function " + fn.Name)
		}
		w.block(fn.Body, ast.Pos{}, r)
	}
	info.Apply(&w.batch)
}

type regionWalker struct {
	info  *program.Info
	idx   *ast.Index
	batch program.Batch
}

type region struct {
	refs   []ast.Pos
	unsafe string
}

func (r *region) ref(pos ast.Pos) {
	if !slices.Contains(r.refs, pos) {
		r.refs = append(r.refs, pos)
	}
}

func (r *region) fail(reason string) {
	if r.unsafe == "" {
		r.unsafe = reason
	}
}

func (r *region) merge(o *region) {
	for _, pos := range o.refs {
		r.ref(pos)
	}
	if o.unsafe != "" {
		r.fail(o.unsafe)
	}
}

// block walks a compound statement, adding its uses to r. r may already
// hold uses that precede the block, such as the parameters of a function.
func (w *regionWalker) block(b *ast.Block, parent ast.Pos, r *region) *region {
	inner := parent
	if b.Lbrace.IsValid() {
		inner = b.Lbrace
	}
	for _, s := range b.List {
		w.stmt(s, inner, r)
	}
	if b.Lbrace.IsValid() {
		refs := slices.Clone(r.refs)
		slices.SortFunc(refs, ast.Compare)
		w.batch.Add(program.Region{Lbrace: b.Lbrace, Parent: parent, Refs: refs, Unsafe: r.unsafe})
	}
	return r
}

func (w *regionWalker) stmt(s ast.Stmt, parent ast.Pos, r *region) {
	switch s := s.(type) {
	case nil:
	case *ast.Block:
		r.merge(w.block(s, parent, &region{}))
	case *ast.DeclStmt:
		for _, d := range s.Decls {
			w.decl(d, r)
		}
	case *ast.ExprStmt:
		w.expr(s.X, r)
	case *ast.Return:
		w.expr(s.X, r)
	case *ast.If:
		w.expr(s.Cond, r)
		w.stmt(s.Then, parent, r)
		w.stmt(s.Else, parent, r)
	case *ast.For:
		w.stmt(s.Init, parent, r)
		w.expr(s.Cond, r)
		w.expr(s.Post, r)
		w.stmt(s.Body, parent, r)
	case *ast.While:
		w.expr(s.Cond, r)
		w.stmt(s.Body, parent, r)
	default:
		panic(fmt.Sprintf("unexpected statement %T", s))
	}
}

func (w *regionWalker) decl(d ast.Decl, r *region) {
	switch d := d.(type) {
	case *ast.VarDecl:
		if w.info.HasVariable(d.At) {
			r.ref(d.At)
		}
		w.structInit(d)
		w.expr(d.Init, r)
	case *ast.RecordDecl:
		for _, f := range d.Fields {
			if w.info.HasVariable(f.At) {
				r.ref(f.At)
			}
		}
	}
}

// structInit records automatic struct variables without an initializer.
// Once a field of the struct is checked, such a variable must be
// initialized.
func (w *regionWalker) structInit(v *ast.VarDecl) {
	if v.Global || v.Init != nil || v.Storage != ast.NoStorage || v.Macro || !v.Range.IsValid() {
		return
	}
	n, ok := v.T.(*types.Named)
	if !ok || n.Tag != "struct" {
		return
	}
	w.batch.Add(program.StructInit{Pos: v.At, Name: v.Name, Record: n.String(), End: v.Range.End})
}

func (w *regionWalker) expr(e ast.Expr, r *region) {
	if e == nil {
		return
	}
	ast.Inspect(e, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Ident:
			if !w.info.HasVariable(n.Ref) || w.exempt(n.Ref) {
				return true
			}
			r.ref(n.Ref)
		case *ast.Member:
			if n.Field.IsValid() && w.info.HasVariable(n.Field) {
				r.ref(n.Field)
			}
		case *ast.Cast:
			if t := n.Type(); !n.Implicit && types.IsPointer(t) && !types.IsChecked(t) && !ast.IsNull(n.X) {
				r.fail(fmt.Sprintf("cast to %s", t))
			}
		case *ast.Call:
			w.call(n, r)
		}
		return true
	})
}

// exempt reports whether pos declares an allocator or an allow-listed
// external function. Checked declarations of those come with the checked
// headers.
func (w *regionWalker) exempt(pos ast.Pos) bool {
	d, ok := w.idx.Decl(pos)
	if !ok {
		return false
	}
	fn, ok := d.(*ast.FuncDecl)
	if !ok {
		return false
	}
	opts := w.info.Options
	return opts.IsAllocator(fn.Name) || opts.IsExternAllowed(fn.Name)
}

func (w *regionWalker) call(c *ast.Call, r *region) {
	id, ok := ast.Unparen(c.Fun, true).(*ast.Ident)
	if !ok {
		// Indirect calls are covered by the variables of the callee
		// expression.
		return
	}
	d, ok := w.idx.Decl(id.Ref)
	if !ok {
		r.fail("call to undeclared function " + id.Name)
		return
	}
	fn, ok := d.(*ast.FuncDecl)
	if !ok || w.exempt(fn.At) {
		return
	}
	switch {
	case fn.Variadic:
		r.fail("call to variadic function " + fn.Name)
	case !fn.Prototyped:
		r.fail("call to unprototyped function " + fn.Name)
	}
}
