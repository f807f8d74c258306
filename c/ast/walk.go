package ast

import "fmt"

// Inspect traverses the tree rooted at node in depth-first order, calling f
// for each node. If f returns false, the children of that node are
// skipped.
func Inspect(node Node, f func(Node) bool) {
	if node == nil || !f(node) {
		return
	}
	walkChildren(node, func(n Node) { Inspect(n, f) })
}

func walkChildren(node Node, visit func(Node)) {
	expr := func(e Expr) {
		if e != nil {
			visit(e)
		}
	}
	stmt := func(s Stmt) {
		if s != nil {
			visit(s)
		}
	}

	switch n := node.(type) {
	case *FuncDecl:
		for _, p := range n.Params {
			visit(p)
		}
		if n.Body != nil {
			visit(n.Body)
		}
	case *VarDecl:
		expr(n.Init)
	case *RecordDecl:
		for _, f := range n.Fields {
			visit(f)
		}
	case *ParamDecl, *FieldDecl:

	case *Block:
		for _, s := range n.List {
			stmt(s)
		}
	case *DeclStmt:
		for _, d := range n.Decls {
			visit(d)
		}
	case *ExprStmt:
		expr(n.X)
	case *Return:
		expr(n.X)
	case *If:
		expr(n.Cond)
		stmt(n.Then)
		stmt(n.Else)
	case *For:
		stmt(n.Init)
		expr(n.Cond)
		expr(n.Post)
		stmt(n.Body)
	case *While:
		expr(n.Cond)
		stmt(n.Body)

	case *Ident, *IntLit, *StringLit:
	case *Call:
		expr(n.Fun)
		for _, a := range n.Args {
			expr(a)
		}
	case *Cast:
		expr(n.X)
	case *Unary:
		expr(n.X)
	case *Binary:
		expr(n.X)
		expr(n.Y)
	case *Assign:
		expr(n.LHS)
		expr(n.RHS)
	case *Index:
		expr(n.X)
		expr(n.Index)
	case *Member:
		expr(n.X)
	case *Cond:
		expr(n.Cond)
		expr(n.Then)
		expr(n.Else)
	case *Paren:
		expr(n.X)
	case *InitList:
		for _, e := range n.Elems {
			expr(e)
		}
	case *SizeOf:
		expr(n.X)
	default:
		panic(fmt.Sprintf("unexpected node %T", n))
	}
}

// Index maps declaration positions of one unit to their declarations. It
// is the only way to get from a persistent position back to a node, and it
// must not outlive its unit.
type Index struct {
	unit    *Unit
	decls   map[Pos]Decl
	records map[string]*RecordDecl
	parents map[Pos]*FuncDecl
}

// NewIndex indexes every declaration in u, including locals, parameters
// and fields.
func NewIndex(u *Unit) *Index {
	idx := &Index{
		unit:    u,
		decls:   map[Pos]Decl{},
		records: map[string]*RecordDecl{},
		parents: map[Pos]*FuncDecl{},
	}
	for _, d := range u.Decls {
		var fn *FuncDecl
		if d, ok := d.(*FuncDecl); ok {
			fn = d
		}
		Inspect(d, func(n Node) bool {
			switch n := n.(type) {
			case *RecordDecl:
				key := n.Tag().String()
				if prev, ok := idx.records[key]; !ok || len(prev.Fields) == 0 {
					idx.records[key] = n
				}
			case Decl:
			default:
				return true
			}
			d := n.(Decl)
			if _, ok := idx.decls[d.Pos()]; !ok {
				idx.decls[d.Pos()] = d
			}
			if fn != nil {
				idx.parents[d.Pos()] = fn
			}
			return true
		})
	}
	return idx
}

func (idx *Index) Unit() *Unit { return idx.unit }

// Decl returns the declaration at pos.
func (idx *Index) Decl(pos Pos) (Decl, bool) {
	d, ok := idx.decls[pos]
	return d, ok
}

// Record returns the definition of a struct or union by its tag, such as
// "struct node".
func (idx *Index) Record(tag string) (*RecordDecl, bool) {
	r, ok := idx.records[tag]
	return r, ok
}

// Func returns the function enclosing the declaration at pos.
func (idx *Index) Func(pos Pos) (*FuncDecl, bool) {
	fn, ok := idx.parents[pos]
	return fn, ok
}
