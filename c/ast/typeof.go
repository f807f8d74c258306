package ast

import "honnef.co/go/cconv/c/types"

var sizeType = &types.Basic{Name: "unsigned long"}

// FillTypes assigns static types to expressions whose type the front end
// left out, deriving them from declarations and operand types. Types that
// are already set are kept.
func FillTypes(idx *Index) {
	for _, d := range idx.unit.Decls {
		Inspect(d, func(n Node) bool {
			if e, ok := n.(Expr); ok {
				typeOf(idx, e)
				return false
			}
			return true
		})
	}
}

func declType(d Decl) types.Type {
	switch d := d.(type) {
	case *VarDecl:
		return d.T
	case *ParamDecl:
		return d.T
	case *FieldDecl:
		return d.T
	case *FuncDecl:
		return d.Type()
	default:
		return nil
	}
}

func pointee(t types.Type) types.Type {
	if e, ok := types.Elem(t); ok {
		return e
	}
	return nil
}

func typeOf(idx *Index, e Expr) types.Type {
	if e == nil {
		return nil
	}
	// Children first, so that operands are typed even when e already is.
	walkChildren(e, func(n Node) {
		if c, ok := n.(Expr); ok {
			typeOf(idx, c)
		}
	})
	if m, ok := e.(*Member); ok && !m.Field.IsValid() {
		resolveField(idx, m)
	}
	if t := e.Type(); t != nil {
		return t
	}

	var t types.Type
	switch e := e.(type) {
	case *Ident:
		if d, ok := idx.Decl(e.Ref); ok {
			t = declType(d)
		}
	case *IntLit:
		t = types.Int
	case *StringLit:
		t = &types.Array{Elem: types.Char, Len: len(e.Value) + 1, Sized: true}
	case *Call:
		ft := e.Fun.Type()
		if p, ok := ft.(*types.Pointer); ok {
			ft = p.Elem
		}
		if f, ok := ft.(*types.Func); ok {
			t = f.Result
		}
	case *Unary:
		switch e.Op {
		case "&":
			if x := e.X.Type(); x != nil {
				t = types.NewPointer(x)
			}
		case "*":
			t = pointee(e.X.Type())
		case "!":
			t = types.Int
		default:
			t = e.X.Type()
		}
	case *Binary:
		switch e.Op {
		case "+", "-":
			xt, yt := e.X.Type(), e.Y.Type()
			switch {
			case types.IsPointer(xt) && types.IsPointer(yt):
				t = &types.Basic{Name: "long"}
			case types.IsPointer(xt):
				t = decay(xt)
			case types.IsPointer(yt):
				t = decay(yt)
			default:
				t = xt
			}
		case "==", "!=", "<", ">", "<=", ">=", "&&", "||":
			t = types.Int
		default:
			t = e.X.Type()
		}
	case *Assign:
		t = e.LHS.Type()
	case *Index:
		t = pointee(e.X.Type())
	case *Member:
		if d, ok := idx.Decl(e.Field); ok {
			t = declType(d)
		}
	case *Cond:
		t = e.Then.Type()
		if t == nil || types.IsPointer(t) && types.IsVoidPointer(t) {
			if et := e.Else.Type(); et != nil {
				t = et
			}
		}
	case *Paren:
		t = e.X.Type()
	case *InitList:
	case *SizeOf:
		t = sizeType
	}
	if t != nil {
		setType(e, t)
	}
	return t
}

func resolveField(idx *Index, m *Member) {
	r, ok := idx.Record(recordOf(m))
	if !ok {
		return
	}
	for _, f := range r.Fields {
		if f.Name == m.Name {
			m.Field = f.At
			return
		}
	}
}

func recordOf(m *Member) string {
	t := m.X.Type()
	if m.Arrow {
		t = pointee(t)
	}
	if n, ok := t.(*types.Named); ok {
		return n.String()
	}
	return ""
}

// decay turns an array type into a pointer to its element type.
func decay(t types.Type) types.Type {
	if a, ok := t.(*types.Array); ok {
		return types.NewPointer(a.Elem)
	}
	return t
}

type typeSetter interface {
	SetType(types.Type)
}

func setType(e Expr, t types.Type) {
	if s, ok := e.(typeSetter); ok {
		s.SetType(t)
	}
}
