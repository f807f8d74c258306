// Package loader decodes translation units from the YAML interchange
// format written by C front ends.
//
// A unit document has the shape
//
//	file: a.c
//	decls:
//	  - var: {pos: "1:6", name: g, type: "int *", storage: extern}
//	  - func:
//	      pos: "3:6"
//	      name: f
//	      result: "int *"
//	      params: [{pos: "3:13", name: x, type: "int *"}]
//	      body:
//	        - return: x
//
// Positions may omit the file name, in which case the unit's file is used.
// Identifiers without an explicit ref are resolved by C scoping rules.
// JSON documents are accepted as well.
package loader

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
)

// Decode reads one translation unit from r. name is used in error
// messages.
func Decode(r io.Reader, name string) (*ast.Unit, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", name)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, errors.Errorf("%s: expected a single document", name)
	}
	d := &decoder{name: name}
	u, err := d.unit(doc.Content[0])
	if err != nil {
		return nil, err
	}
	ast.FillTypes(ast.NewIndex(u))
	return u, nil
}

type decoder struct {
	name   string
	file   string
	scopes []map[string]ast.Pos
	// enclosing statement position and the number of expressions that have
	// borrowed it so far
	cur ast.Pos
	ord int
}

func (d *decoder) errorf(n *yaml.Node, format string, args ...any) error {
	return errors.Errorf("%s:%d: %s", d.name, n.Line, fmt.Sprintf(format, args...))
}

func field(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// kind returns the first key of a mapping that is not one of the common
// attribute keys.
func kind(n *yaml.Node, common ...string) (string, *yaml.Node) {
	if n.Kind != yaml.MappingNode {
		return "", nil
	}
outer:
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i].Value
		for _, c := range common {
			if k == c {
				continue outer
			}
		}
		return k, n.Content[i+1]
	}
	return "", nil
}

func isNull(n *yaml.Node) bool {
	return n == nil || n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func (d *decoder) str(n *yaml.Node, key string) string {
	if f := field(n, key); f != nil && f.Kind == yaml.ScalarNode {
		return f.Value
	}
	return ""
}

func (d *decoder) boolean(n *yaml.Node, key string) (bool, error) {
	f := field(n, key)
	if isNull(f) {
		return false, nil
	}
	var b bool
	if err := f.Decode(&b); err != nil {
		return false, d.errorf(f, "%s: %v", key, err)
	}
	return b, nil
}

func (d *decoder) integer(n *yaml.Node, key string, def int) (int, error) {
	f := field(n, key)
	if isNull(f) {
		return def, nil
	}
	var v int
	if err := f.Decode(&v); err != nil {
		return 0, d.errorf(f, "%s: %v", key, err)
	}
	return v, nil
}

func (d *decoder) typ(n *yaml.Node, key string) (types.Type, error) {
	f := field(n, key)
	if isNull(f) {
		return nil, nil
	}
	t, err := types.Parse(f.Value)
	if err != nil {
		return nil, d.errorf(f, "%v", err)
	}
	return t, nil
}

func (d *decoder) parsePos(s string) (ast.Pos, error) {
	if strings.Count(strings.Split(s, "#")[0], ":") == 1 {
		s = d.file + ":" + s
	}
	return ast.ParsePos(s)
}

func (d *decoder) pos(n *yaml.Node, key string) (ast.Pos, error) {
	f := field(n, key)
	if isNull(f) {
		return ast.Pos{}, nil
	}
	p, err := d.parsePos(f.Value)
	if err != nil {
		return ast.Pos{}, d.errorf(f, "%v", err)
	}
	return p, nil
}

func (d *decoder) declPos(n *yaml.Node) (ast.Pos, error) {
	p, err := d.pos(n, "pos")
	if err != nil {
		return p, err
	}
	if !p.IsValid() {
		return p, d.errorf(n, "declaration %q has no position", d.str(n, "name"))
	}
	return p, nil
}

func (d *decoder) rng(n *yaml.Node, key string) (ast.Range, error) {
	f := field(n, key)
	if isNull(f) {
		return ast.Range{}, nil
	}
	start, end, ok := strings.Cut(f.Value, "-")
	if !ok {
		return ast.Range{}, d.errorf(f, "invalid range %q", f.Value)
	}
	s, err := d.parsePos(start)
	if err != nil {
		return ast.Range{}, d.errorf(f, "%v", err)
	}
	e, err := d.parsePos(end)
	if err != nil {
		return ast.Range{}, d.errorf(f, "%v", err)
	}
	return ast.Range{Start: s, End: e}, nil
}

func (d *decoder) storage(n *yaml.Node) (ast.Storage, error) {
	switch s := d.str(n, "storage"); s {
	case "":
		return ast.NoStorage, nil
	case "static":
		return ast.Static, nil
	case "extern":
		return ast.Extern, nil
	default:
		return 0, d.errorf(n, "unknown storage class %q", s)
	}
}

func (d *decoder) push() { d.scopes = append(d.scopes, map[string]ast.Pos{}) }
func (d *decoder) pop()  { d.scopes = d.scopes[:len(d.scopes)-1] }

func (d *decoder) declare(name string, pos ast.Pos) {
	if name != "" {
		d.scopes[len(d.scopes)-1][name] = pos
	}
}

func (d *decoder) lookup(name string) ast.Pos {
	for i := len(d.scopes) - 1; i >= 0; i-- {
		if p, ok := d.scopes[i][name]; ok {
			return p
		}
	}
	return ast.Pos{}
}

func (d *decoder) unit(n *yaml.Node) (*ast.Unit, error) {
	d.file = d.str(n, "file")
	if d.file == "" {
		return nil, d.errorf(n, "unit has no file name")
	}
	u := &ast.Unit{File: d.file, Source: d.str(n, "source")}

	decls := field(n, "decls")
	if decls == nil {
		return u, nil
	}
	if decls.Kind != yaml.SequenceNode {
		return nil, d.errorf(decls, "decls must be a list")
	}

	// File-scope names are visible throughout the unit. Well-formed C
	// declares before use, so this only matters for malformed input.
	d.push()
	for _, dn := range decls.Content {
		k, v := kind(dn)
		if k == "var" || k == "func" {
			p, err := d.declPos(v)
			if err != nil {
				return nil, err
			}
			if prev := d.lookup(d.str(v, "name")); !prev.IsValid() || k == "func" && field(v, "body") != nil {
				d.declare(d.str(v, "name"), p)
			}
		}
	}
	for _, dn := range decls.Content {
		decl, err := d.decl(dn, true)
		if err != nil {
			return nil, err
		}
		u.Decls = append(u.Decls, decl)
	}
	d.pop()
	return u, nil
}

func (d *decoder) decl(n *yaml.Node, global bool) (ast.Decl, error) {
	k, v := kind(n, stmtAttrs...)
	switch k {
	case "var":
		return d.varDecl(v, global)
	case "func":
		if !global {
			return nil, d.errorf(n, "nested function definitions are not supported")
		}
		return d.funcDecl(v)
	case "record":
		return d.recordDecl(v)
	default:
		return nil, d.errorf(n, "unknown declaration kind %q", k)
	}
}

func (d *decoder) bounds(n *yaml.Node, key string) (*ast.BoundsExpr, error) {
	f := field(n, key)
	if isNull(f) {
		return nil, nil
	}
	k, v := kind(f)
	switch k {
	case "count", "byte_count":
		x, err := d.expr(v)
		if err != nil {
			return nil, err
		}
		b := &ast.BoundsExpr{Kind: ast.CountBounds, X: x}
		if k == "byte_count" {
			b.Kind = ast.ByteCountBounds
		}
		return b, nil
	case "range":
		if v.Kind != yaml.SequenceNode || len(v.Content) != 2 {
			return nil, d.errorf(v, "range bounds need exactly two expressions")
		}
		lo, err := d.expr(v.Content[0])
		if err != nil {
			return nil, err
		}
		hi, err := d.expr(v.Content[1])
		if err != nil {
			return nil, err
		}
		return &ast.BoundsExpr{Kind: ast.RangeBounds, Lo: lo, Hi: hi}, nil
	default:
		return nil, d.errorf(f, "unknown bounds kind %q", k)
	}
}

func (d *decoder) varDecl(n *yaml.Node, global bool) (*ast.VarDecl, error) {
	var err error
	v := &ast.VarDecl{Name: d.str(n, "name"), Global: global}
	if v.At, err = d.declPos(n); err != nil {
		return nil, err
	}
	if v.Begin, err = d.pos(n, "begin"); err != nil {
		return nil, err
	}
	if v.T, err = d.typ(n, "type"); err != nil {
		return nil, err
	}
	if v.T == nil {
		return nil, d.errorf(n, "variable %s has no type", v.Name)
	}
	if v.Itype, err = d.typ(n, "itype"); err != nil {
		return nil, err
	}
	if v.Storage, err = d.storage(n); err != nil {
		return nil, err
	}
	if v.Macro, err = d.boolean(n, "macro"); err != nil {
		return nil, err
	}
	if v.SysHeader, err = d.boolean(n, "sysheader"); err != nil {
		return nil, err
	}
	if v.Range, err = d.rng(n, "range"); err != nil {
		return nil, err
	}
	if !global {
		d.declare(v.Name, v.At)
	}
	if v.Bounds, err = d.bounds(n, "bounds"); err != nil {
		return nil, err
	}
	if init := field(n, "init"); !isNull(init) {
		if d.cur != v.At {
			d.cur, d.ord = v.At, 0
		}
		if v.Init, err = d.expr(init); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (d *decoder) param(n *yaml.Node) (*ast.ParamDecl, error) {
	var err error
	p := &ast.ParamDecl{Name: d.str(n, "name")}
	if p.At, err = d.declPos(n); err != nil {
		return nil, err
	}
	if p.T, err = d.typ(n, "type"); err != nil {
		return nil, err
	}
	if p.T == nil {
		return nil, d.errorf(n, "parameter %s has no type", p.Name)
	}
	if p.Itype, err = d.typ(n, "itype"); err != nil {
		return nil, err
	}
	if p.TypeVar, err = d.integer(n, "typevar", -1); err != nil {
		return nil, err
	}
	if p.Bounds, err = d.bounds(n, "bounds"); err != nil {
		return nil, err
	}
	if p.Range, err = d.rng(n, "range"); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *decoder) funcDecl(n *yaml.Node) (*ast.FuncDecl, error) {
	var err error
	fn := &ast.FuncDecl{Name: d.str(n, "name")}
	if fn.At, err = d.declPos(n); err != nil {
		return nil, err
	}
	if fn.Result, err = d.typ(n, "result"); err != nil {
		return nil, err
	}
	if fn.Result == nil {
		fn.Result = types.Int
	}
	if fn.ResultItype, err = d.typ(n, "result_itype"); err != nil {
		return nil, err
	}
	if fn.ResultTypeVar, err = d.integer(n, "result_typevar", -1); err != nil {
		return nil, err
	}
	if fn.Variadic, err = d.boolean(n, "variadic"); err != nil {
		return nil, err
	}
	fn.Prototyped = true
	if f := field(n, "prototyped"); !isNull(f) {
		if fn.Prototyped, err = d.boolean(n, "prototyped"); err != nil {
			return nil, err
		}
	}
	if fn.Storage, err = d.storage(n); err != nil {
		return nil, err
	}
	if fn.TypeParams, err = d.integer(n, "type_params", 0); err != nil {
		return nil, err
	}
	if fn.SysHeader, err = d.boolean(n, "sysheader"); err != nil {
		return nil, err
	}
	if fn.Range, err = d.rng(n, "range"); err != nil {
		return nil, err
	}
	if fn.ParamsEnd, err = d.pos(n, "params_end"); err != nil {
		return nil, err
	}

	d.push()
	defer d.pop()
	if params := field(n, "params"); !isNull(params) {
		// Bounds annotations may name any parameter of the function.
		for _, pn := range params.Content {
			p, err := d.declPos(pn)
			if err != nil {
				return nil, err
			}
			d.declare(d.str(pn, "name"), p)
		}
		for _, pn := range params.Content {
			p, err := d.param(pn)
			if err != nil {
				return nil, err
			}
			fn.Params = append(fn.Params, p)
		}
	}
	if fn.ResultBounds, err = d.bounds(n, "result_bounds"); err != nil {
		return nil, err
	}
	if body := field(n, "body"); body != nil {
		d.cur, d.ord = fn.At, 0
		list, err := d.stmts(body)
		if err != nil {
			return nil, err
		}
		fn.Body = &ast.Block{At: fn.At, List: list}
		if fn.Body.Lbrace, err = d.pos(n, "lbrace"); err != nil {
			return nil, err
		}
	}
	return fn, nil
}

func (d *decoder) recordDecl(n *yaml.Node) (*ast.RecordDecl, error) {
	var err error
	r := &ast.RecordDecl{Name: d.str(n, "name")}
	if r.At, err = d.declPos(n); err != nil {
		return nil, err
	}
	if r.Union, err = d.boolean(n, "union"); err != nil {
		return nil, err
	}
	if r.SysHeader, err = d.boolean(n, "sysheader"); err != nil {
		return nil, err
	}
	fields := field(n, "fields")
	if isNull(fields) {
		return r, nil
	}
	// Fields may refer to their siblings in bounds annotations.
	d.push()
	defer d.pop()
	for _, fnode := range fields.Content {
		p, err := d.declPos(fnode)
		if err != nil {
			return nil, err
		}
		d.declare(d.str(fnode, "name"), p)
	}
	for _, fnode := range fields.Content {
		f := &ast.FieldDecl{Name: d.str(fnode, "name")}
		if f.At, err = d.declPos(fnode); err != nil {
			return nil, err
		}
		if f.T, err = d.typ(fnode, "type"); err != nil {
			return nil, err
		}
		if f.T == nil {
			return nil, d.errorf(fnode, "field %s has no type", f.Name)
		}
		if f.Itype, err = d.typ(fnode, "itype"); err != nil {
			return nil, err
		}
		if f.Bounds, err = d.bounds(fnode, "bounds"); err != nil {
			return nil, err
		}
		if f.Range, err = d.rng(fnode, "range"); err != nil {
			return nil, err
		}
		r.Fields = append(r.Fields, f)
	}
	return r, nil
}

var stmtAttrs = []string{"pos", "lbrace"}

func (d *decoder) stmts(n *yaml.Node) ([]ast.Stmt, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		s, err := d.stmt(n)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{s}, nil
	}
	var out []ast.Stmt
	for _, sn := range n.Content {
		s, err := d.stmt(sn)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// block decodes the statements in n. The position of the opening brace,
// if any, is read from key of parent.
func (d *decoder) block(n *yaml.Node, at ast.Pos, parent *yaml.Node, key string) (ast.Stmt, error) {
	if isNull(n) {
		return nil, nil
	}
	lbrace, err := d.pos(parent, key)
	if err != nil {
		return nil, err
	}
	d.push()
	defer d.pop()
	list, err := d.stmts(n)
	if err != nil {
		return nil, err
	}
	return &ast.Block{At: at, Lbrace: lbrace, List: list}, nil
}

func (d *decoder) stmt(n *yaml.Node) (ast.Stmt, error) {
	k, v := kind(n, stmtAttrs...)
	at, err := d.pos(n, "pos")
	if err != nil {
		return nil, err
	}
	if !at.IsValid() {
		if k == "var" || k == "record" {
			at, _ = d.pos(v, "pos")
		}
		if !at.IsValid() {
			at = d.cur
		}
	}
	if at != d.cur {
		d.cur, d.ord = at, 0
	}

	switch k {
	case "var", "record":
		decl, err := d.decl(n, false)
		if err != nil {
			return nil, err
		}
		return &ast.DeclStmt{At: at, Decls: []ast.Decl{decl}}, nil
	case "expr":
		x, err := d.expr(v)
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{At: at, X: x}, nil
	case "return":
		s := &ast.Return{At: at}
		if !isNull(v) {
			if s.X, err = d.expr(v); err != nil {
				return nil, err
			}
		}
		return s, nil
	case "block":
		return d.block(v, at, n, "lbrace")
	case "if":
		s := &ast.If{At: at}
		if s.Cond, err = d.expr(field(v, "cond")); err != nil {
			return nil, err
		}
		if s.Then, err = d.block(field(v, "then"), at, v, "then_lbrace"); err != nil {
			return nil, err
		}
		if s.Else, err = d.block(field(v, "else"), at, v, "else_lbrace"); err != nil {
			return nil, err
		}
		return s, nil
	case "for":
		d.push()
		defer d.pop()
		s := &ast.For{At: at}
		if init := field(v, "init"); !isNull(init) {
			if s.Init, err = d.stmt(init); err != nil {
				return nil, err
			}
		}
		if c := field(v, "cond"); !isNull(c) {
			if s.Cond, err = d.expr(c); err != nil {
				return nil, err
			}
		}
		if p := field(v, "post"); !isNull(p) {
			if s.Post, err = d.expr(p); err != nil {
				return nil, err
			}
		}
		if s.Body, err = d.block(field(v, "body"), at, v, "lbrace"); err != nil {
			return nil, err
		}
		return s, nil
	case "while":
		s := &ast.While{At: at}
		if s.Cond, err = d.expr(field(v, "cond")); err != nil {
			return nil, err
		}
		if s.Body, err = d.block(field(v, "body"), at, v, "lbrace"); err != nil {
			return nil, err
		}
		if s.Do, err = d.boolean(v, "do"); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, d.errorf(n, "unknown statement kind %q", k)
	}
}

var exprAttrs = []string{"pos", "type", "macro", "span"}

// exprPos returns the explicit position of an expression, or a fresh
// position derived from the enclosing statement.
func (d *decoder) exprPos(n *yaml.Node) (ast.Pos, error) {
	if n.Kind == yaml.MappingNode {
		p, err := d.pos(n, "pos")
		if err != nil || p.IsValid() {
			return p, err
		}
	}
	d.ord++
	p := d.cur
	p.Ordinal = d.ord
	return p, nil
}

func (d *decoder) exprs(n *yaml.Node) ([]ast.Expr, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "expected a list of expressions")
	}
	var out []ast.Expr
	for _, en := range n.Content {
		e, err := d.expr(en)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) expr(n *yaml.Node) (ast.Expr, error) {
	if isNull(n) {
		return nil, errors.Errorf("%s: missing expression", d.name)
	}
	at, err := d.exprPos(n)
	if err != nil {
		return nil, err
	}
	base := ast.ExprBase{At: at}

	if n.Kind == yaml.ScalarNode {
		return d.scalar(n, base)
	}
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(n, "expected an expression")
	}
	if base.T, err = d.typ(n, "type"); err != nil {
		return nil, err
	}
	if base.Macro, err = d.boolean(n, "macro"); err != nil {
		return nil, err
	}
	if base.Span, err = d.rng(n, "span"); err != nil {
		return nil, err
	}

	k, v := kind(n, exprAttrs...)
	switch k {
	case "ident":
		id := &ast.Ident{ExprBase: base, Name: v.Value}
		if id.Ref, err = d.pos(n, "ref"); err != nil {
			return nil, err
		}
		if !id.Ref.IsValid() {
			id.Ref = d.lookup(id.Name)
		}
		return id, nil
	case "int":
		x, err := strconv.ParseInt(v.Value, 0, 64)
		if err != nil {
			return nil, d.errorf(v, "%v", err)
		}
		return &ast.IntLit{ExprBase: base, Value: x}, nil
	case "str":
		return &ast.StringLit{ExprBase: base, Value: v.Value}, nil
	case "call":
		fun, err := d.expr(v)
		if err != nil {
			return nil, err
		}
		args, err := d.exprs(field(n, "args"))
		if err != nil {
			return nil, err
		}
		return &ast.Call{ExprBase: base, Fun: fun, Args: args}, nil
	case "cast":
		t, err := types.Parse(v.Value)
		if err != nil {
			return nil, d.errorf(v, "%v", err)
		}
		base.T = t
		x, err := d.expr(field(n, "x"))
		if err != nil {
			return nil, err
		}
		implicit, err := d.boolean(n, "implicit")
		if err != nil {
			return nil, err
		}
		return &ast.Cast{ExprBase: base, X: x, Implicit: implicit}, nil
	case "unary":
		x, err := d.expr(field(n, "x"))
		if err != nil {
			return nil, err
		}
		postfix, err := d.boolean(n, "postfix")
		if err != nil {
			return nil, err
		}
		return &ast.Unary{ExprBase: base, Op: v.Value, X: x, Postfix: postfix}, nil
	case "binary":
		x, err := d.expr(field(n, "x"))
		if err != nil {
			return nil, err
		}
		y, err := d.expr(field(n, "y"))
		if err != nil {
			return nil, err
		}
		return &ast.Binary{ExprBase: base, Op: v.Value, X: x, Y: y}, nil
	case "assign":
		lhs, err := d.expr(field(n, "lhs"))
		if err != nil {
			return nil, err
		}
		rhs, err := d.expr(field(n, "rhs"))
		if err != nil {
			return nil, err
		}
		return &ast.Assign{ExprBase: base, Op: v.Value, LHS: lhs, RHS: rhs}, nil
	case "index":
		x, err := d.expr(v)
		if err != nil {
			return nil, err
		}
		i, err := d.expr(field(n, "i"))
		if err != nil {
			return nil, err
		}
		return &ast.Index{ExprBase: base, X: x, Index: i}, nil
	case "member":
		x, err := d.expr(field(n, "x"))
		if err != nil {
			return nil, err
		}
		arrow, err := d.boolean(n, "arrow")
		if err != nil {
			return nil, err
		}
		m := &ast.Member{ExprBase: base, X: x, Name: v.Value, Arrow: arrow}
		if m.Field, err = d.pos(n, "field"); err != nil {
			return nil, err
		}
		return m, nil
	case "cond":
		c := &ast.Cond{ExprBase: base}
		if c.Cond, err = d.expr(v); err != nil {
			return nil, err
		}
		if c.Then, err = d.expr(field(n, "then")); err != nil {
			return nil, err
		}
		if c.Else, err = d.expr(field(n, "else")); err != nil {
			return nil, err
		}
		return c, nil
	case "paren":
		x, err := d.expr(v)
		if err != nil {
			return nil, err
		}
		return &ast.Paren{ExprBase: base, X: x}, nil
	case "init":
		elems, err := d.exprs(v)
		if err != nil {
			return nil, err
		}
		return &ast.InitList{ExprBase: base, Elems: elems}, nil
	case "sizeof":
		s := &ast.SizeOf{ExprBase: base}
		if v.Kind == yaml.ScalarNode {
			if s.Arg, err = types.Parse(v.Value); err != nil {
				return nil, d.errorf(v, "%v", err)
			}
		} else if s.X, err = d.expr(v); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, d.errorf(n, "unknown expression kind %q", k)
	}
}

func (d *decoder) scalar(n *yaml.Node, base ast.ExprBase) (ast.Expr, error) {
	s := n.Value
	if s == "NULL" {
		base.T = types.NewPointer(types.Void)
		return &ast.Cast{ExprBase: base, X: &ast.IntLit{ExprBase: ast.ExprBase{At: base.At, T: types.Int}}, Implicit: true}, nil
	}
	if x, err := strconv.ParseInt(s, 0, 64); err == nil {
		return &ast.IntLit{ExprBase: base, Value: x}, nil
	}
	if !isIdentifier(s) {
		return nil, d.errorf(n, "invalid identifier %q", s)
	}
	return &ast.Ident{ExprBase: base, Name: s, Ref: d.lookup(s)}, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
