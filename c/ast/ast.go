// Package ast declares the C syntax tree consumed by the inference engine.
//
// Trees are produced by an external front end, one translation unit at a
// time. Nodes carry source positions; positions are plain values and are
// the only part of a tree that may outlive the unit it came from.
package ast

import (
	"fmt"
	"strconv"
	"strings"

	"honnef.co/go/cconv/c/types"
)

// Pos is a persistent source location. Ordinal disambiguates distinct
// entities that share a location, such as the pieces of a macro expansion.
type Pos struct {
	File    string
	Line    int
	Column  int
	Ordinal int
}

func (p Pos) IsValid() bool { return p.File != "" }

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	s := fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	if p.Ordinal != 0 {
		s += "#" + strconv.Itoa(p.Ordinal)
	}
	return s
}

// Compare orders positions by file, line, column and ordinal.
func Compare(a, b Pos) int {
	if c := strings.Compare(a.File, b.File); c != 0 {
		return c
	}
	switch {
	case a.Line != b.Line:
		return cmpInt(a.Line, b.Line)
	case a.Column != b.Column:
		return cmpInt(a.Column, b.Column)
	default:
		return cmpInt(a.Ordinal, b.Ordinal)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParsePos parses the output of Pos.String.
func ParsePos(s string) (Pos, error) {
	var p Pos
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		n, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return Pos{}, fmt.Errorf("invalid position %q: %v", s, err)
		}
		p.Ordinal = n
		s = s[:i]
	}
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return Pos{}, fmt.Errorf("invalid position %q", s)
	}
	col, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return Pos{}, fmt.Errorf("invalid position %q: %v", s, err)
	}
	line, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return Pos{}, fmt.Errorf("invalid position %q: %v", s, err)
	}
	p.File = strings.Join(parts[:len(parts)-2], ":")
	p.Line = line
	p.Column = col
	return p, nil
}

// Range is a half-open span of source text.
type Range struct {
	Start, End Pos
}

func (r Range) IsValid() bool { return r.Start.IsValid() && r.End.IsValid() }

type Storage uint8

const (
	NoStorage Storage = iota
	Static
	Extern
)

func (s Storage) String() string {
	switch s {
	case Static:
		return "static"
	case Extern:
		return "extern"
	default:
		return ""
	}
}

type Node interface {
	Pos() Pos
}

type Decl interface {
	Node
	declNode()
}

type Expr interface {
	Node
	// Type returns the static type of the expression. It may be nil for
	// expressions whose type is irrelevant.
	Type() types.Type
	// Extent returns the source text of the expression, if the front end
	// provided it.
	Extent() Range
	exprNode()
}

type Stmt interface {
	Node
	stmtNode()
}

// Unit is one translation unit.
type Unit struct {
	File   string
	Source string // optional; needed only for rewriting
	Decls  []Decl
}

type BoundsKind uint8

const (
	CountBounds BoundsKind = iota + 1
	ByteCountBounds
	RangeBounds
)

// BoundsExpr is a declared bounds annotation: count(X), byte_count(X) or
// bounds(Lo, Hi).
type BoundsExpr struct {
	Kind   BoundsKind
	X      Expr
	Lo, Hi Expr
}

type (
	// VarDecl declares a global or local variable.
	VarDecl struct {
		At        Pos
		Begin     Pos // start of the declaration specifiers
		Name      string
		T         types.Type
		Itype     types.Type
		Bounds    *BoundsExpr
		Init      Expr
		Storage   Storage
		Global    bool
		Macro     bool
		SysHeader bool
		Range     Range // declaration text without the initializer
	}

	ParamDecl struct {
		At      Pos
		Name    string
		T       types.Type
		Itype   types.Type
		Bounds  *BoundsExpr
		TypeVar int // index of the bound type variable, or -1
		Range   Range
	}

	FuncDecl struct {
		At            Pos
		Name          string
		Result        types.Type
		ResultItype   types.Type
		ResultBounds  *BoundsExpr
		ResultTypeVar int // -1 if the result is not generic
		Params        []*ParamDecl
		Variadic      bool
		Prototyped    bool
		Storage       Storage
		TypeParams    int
		Body          *Block
		SysHeader     bool
		Range         Range // return type and name
		ParamsEnd     Pos   // just after the closing parenthesis
	}

	RecordDecl struct {
		At        Pos
		Name      string
		Union     bool
		Fields    []*FieldDecl
		SysHeader bool
	}

	FieldDecl struct {
		At     Pos
		Name   string
		T      types.Type
		Itype  types.Type
		Bounds *BoundsExpr
		Range  Range
	}
)

func (d *VarDecl) Pos() Pos    { return d.At }
func (d *ParamDecl) Pos() Pos  { return d.At }
func (d *FuncDecl) Pos() Pos   { return d.At }
func (d *RecordDecl) Pos() Pos { return d.At }
func (d *FieldDecl) Pos() Pos  { return d.At }

func (*VarDecl) declNode()    {}
func (*ParamDecl) declNode()  {}
func (*FuncDecl) declNode()   {}
func (*RecordDecl) declNode() {}
func (*FieldDecl) declNode()  {}

// Type returns the C function type of fn.
func (fn *FuncDecl) Type() *types.Func {
	out := &types.Func{Result: fn.Result, Variadic: fn.Variadic, Prototyped: fn.Prototyped}
	for _, p := range fn.Params {
		out.Params = append(out.Params, p.T)
	}
	return out
}

// Tag returns the record's type.
func (r *RecordDecl) Tag() *types.Named {
	if r.Union {
		return &types.Named{Tag: "union", Name: r.Name}
	}
	return &types.Named{Tag: "struct", Name: r.Name}
}

// ExprBase holds the fields shared by all expressions.
type ExprBase struct {
	At    Pos
	T     types.Type
	Macro bool  // the expression was produced by a macro expansion
	Span  Range // source text of the expression; optional
}

func (e *ExprBase) Pos() Pos             { return e.At }
func (e *ExprBase) Type() types.Type     { return e.T }
func (e *ExprBase) SetType(t types.Type) { e.T = t }
func (e *ExprBase) IsMacro() bool        { return e.Macro }
func (e *ExprBase) Extent() Range        { return e.Span }

type (
	// Ident refers to a variable, parameter or function. Ref is the
	// position of the referenced declaration; it is invalid for names the
	// front end could not resolve.
	Ident struct {
		ExprBase
		Name string
		Ref  Pos
	}

	IntLit struct {
		ExprBase
		Value int64
	}

	StringLit struct {
		ExprBase
		Value string
	}

	Call struct {
		ExprBase
		Fun  Expr
		Args []Expr
	}

	Cast struct {
		ExprBase
		X        Expr
		Implicit bool
	}

	// Unary is a prefix or postfix unary operation. Op is one of
	// & * - + ! ~ ++ --.
	Unary struct {
		ExprBase
		Op      string
		X       Expr
		Postfix bool
	}

	Binary struct {
		ExprBase
		Op   string
		X, Y Expr
	}

	// Assign is a simple or compound assignment.
	Assign struct {
		ExprBase
		Op       string
		LHS, RHS Expr
	}

	Index struct {
		ExprBase
		X, Index Expr
	}

	// Member is X.Name or X->Name. Field is the position of the field
	// declaration.
	Member struct {
		ExprBase
		X     Expr
		Name  string
		Arrow bool
		Field Pos
	}

	Cond struct {
		ExprBase
		Cond, Then, Else Expr
	}

	Paren struct {
		ExprBase
		X Expr
	}

	InitList struct {
		ExprBase
		Elems []Expr
	}

	// SizeOf is sizeof(Arg) or sizeof X.
	SizeOf struct {
		ExprBase
		Arg types.Type
		X   Expr
	}
)

func (*Ident) exprNode()     {}
func (*IntLit) exprNode()    {}
func (*StringLit) exprNode() {}
func (*Call) exprNode()      {}
func (*Cast) exprNode()      {}
func (*Unary) exprNode()     {}
func (*Binary) exprNode()    {}
func (*Assign) exprNode()    {}
func (*Index) exprNode()     {}
func (*Member) exprNode()    {}
func (*Cond) exprNode()      {}
func (*Paren) exprNode()     {}
func (*InitList) exprNode()  {}
func (*SizeOf) exprNode()    {}

type (
	Block struct {
		At     Pos
		Lbrace Pos // opening brace, if known
		List   []Stmt
	}

	// DeclStmt declares local variables or records.
	DeclStmt struct {
		At    Pos
		Decls []Decl
	}

	ExprStmt struct {
		At Pos
		X  Expr
	}

	Return struct {
		At Pos
		X  Expr // nil for a bare return
	}

	If struct {
		At   Pos
		Cond Expr
		Then Stmt
		Else Stmt
	}

	For struct {
		At   Pos
		Init Stmt
		Cond Expr
		Post Expr
		Body Stmt
	}

	While struct {
		At   Pos
		Cond Expr
		Body Stmt
		Do   bool
	}
)

func (s *Block) Pos() Pos    { return s.At }
func (s *DeclStmt) Pos() Pos { return s.At }
func (s *ExprStmt) Pos() Pos { return s.At }
func (s *Return) Pos() Pos   { return s.At }
func (s *If) Pos() Pos       { return s.At }
func (s *For) Pos() Pos      { return s.At }
func (s *While) Pos() Pos    { return s.At }

func (*Block) stmtNode()    {}
func (*DeclStmt) stmtNode() {}
func (*ExprStmt) stmtNode() {}
func (*Return) stmtNode()   {}
func (*If) stmtNode()       {}
func (*For) stmtNode()      {}
func (*While) stmtNode()    {}

// Unparen strips parentheses and, if implicit is set, implicit casts.
func Unparen(e Expr, implicit bool) Expr {
	for {
		switch x := e.(type) {
		case *Paren:
			e = x.X
		case *Cast:
			if !implicit || !x.Implicit {
				return e
			}
			e = x.X
		default:
			return e
		}
	}
}

// IsNull reports whether e is a null pointer constant.
func IsNull(e Expr) bool {
	switch x := Unparen(e, false).(type) {
	case *IntLit:
		return x.Value == 0
	case *Cast:
		return types.IsVoidPointer(x.T) && IsNull(x.X)
	default:
		return false
	}
}
