// Package types models the subset of C types that pointer-qualifier
// inference cares about: scalars, tagged records, pointers, arrays and
// function types, together with the checked pointer kinds the rewriter can
// emit.
package types

import (
	"fmt"
	"strings"
)

// Checked describes the checked kind of a pointer or array level.
type Checked uint8

const (
	Unchecked Checked = iota
	CheckedPtr
	CheckedArray
	CheckedNTArray
)

func (c Checked) String() string {
	switch c {
	case Unchecked:
		return "unchecked"
	case CheckedPtr:
		return "_Ptr"
	case CheckedArray:
		return "_Array_ptr"
	case CheckedNTArray:
		return "_Nt_array_ptr"
	default:
		return fmt.Sprintf("Checked(%d)", c)
	}
}

// Type is a C type. The set of implementations is closed.
type Type interface {
	String() string
	aType()
}

// Basic is a scalar, void or typedef name, including any qualifiers that
// were written in front of it, such as "const char" or "size_t".
type Basic struct {
	Name string
}

// Named is a tagged struct, union or enum type.
type Named struct {
	Tag  string // "struct", "union" or "enum"
	Name string
}

type Pointer struct {
	Elem Type
	Kind Checked
}

// Array is an array type. Unsized arrays (int a[]) have Sized == false.
type Array struct {
	Elem  Type
	Len   int
	Sized bool
	Kind  Checked
}

type Func struct {
	Result     Type
	Params     []Type
	Variadic   bool
	Prototyped bool
}

func (*Basic) aType()   {}
func (*Named) aType()   {}
func (*Pointer) aType() {}
func (*Array) aType()   {}
func (*Func) aType()    {}

func (t *Basic) String() string   { return t.Name }
func (t *Named) String() string   { return t.Tag + " " + t.Name }
func (t *Pointer) String() string { return Declarator(t, "") }
func (t *Array) String() string   { return Declarator(t, "") }
func (t *Func) String() string    { return Declarator(t, "") }

var (
	Void = &Basic{Name: "void"}
	Int  = &Basic{Name: "int"}
	Char = &Basic{Name: "char"}
)

// NewPointer returns an unchecked pointer to elem.
func NewPointer(elem Type) *Pointer { return &Pointer{Elem: elem} }

// Declarator renders t as a C declaration of name. An empty name yields an
// abstract declarator, as used in casts and type arguments.
func Declarator(t Type, name string) string {
	return declarator(t, name)
}

func declarator(t Type, inner string) string {
	switch t := t.(type) {
	case *Basic:
		return join(t.Name, inner)
	case *Named:
		return join(t.String(), inner)
	case *Pointer:
		if t.Kind != Unchecked {
			return join(t.Kind.String()+"<"+declarator(t.Elem, "")+">", inner)
		}
		s := "*" + inner
		switch t.Elem.(type) {
		case *Array, *Func:
			s = "(" + s + ")"
		}
		return declarator(t.Elem, s)
	case *Array:
		dim := ""
		if t.Sized {
			dim = fmt.Sprint(t.Len)
		}
		switch t.Kind {
		case CheckedArray, CheckedPtr:
			return declarator(t.Elem, suffix(inner, "_Checked["+dim+"]"))
		case CheckedNTArray:
			return declarator(t.Elem, suffix(inner, "_Nt_checked["+dim+"]"))
		default:
			return declarator(t.Elem, inner+"["+dim+"]")
		}
	case *Func:
		var params []string
		for _, p := range t.Params {
			params = append(params, declarator(p, ""))
		}
		if t.Variadic {
			params = append(params, "...")
		}
		if len(params) == 0 && t.Prototyped {
			params = append(params, "void")
		}
		return declarator(t.Result, inner+"("+strings.Join(params, ", ")+")")
	case nil:
		return join("<nil>", inner)
	default:
		panic(fmt.Sprintf("unexpected type %T", t))
	}
}

func join(base, inner string) string {
	if inner == "" {
		return base
	}
	return base + " " + inner
}

func suffix(inner, s string) string {
	if inner == "" {
		return s
	}
	return inner + " " + s
}

// Identical reports whether x and y denote the same type, ignoring checked
// kinds.
func Identical(x, y Type) bool {
	switch x := x.(type) {
	case *Basic:
		y, ok := y.(*Basic)
		return ok && x.Name == y.Name
	case *Named:
		y, ok := y.(*Named)
		return ok && x.Tag == y.Tag && x.Name == y.Name
	case *Pointer:
		y, ok := y.(*Pointer)
		return ok && Identical(x.Elem, y.Elem)
	case *Array:
		y, ok := y.(*Array)
		return ok && x.Len == y.Len && x.Sized == y.Sized && Identical(x.Elem, y.Elem)
	case *Func:
		y, ok := y.(*Func)
		if !ok || x.Variadic != y.Variadic || len(x.Params) != len(y.Params) || !Identical(x.Result, y.Result) {
			return false
		}
		for i := range x.Params {
			if !Identical(x.Params[i], y.Params[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Elem returns the element type of a pointer or array type.
func Elem(t Type) (Type, bool) {
	switch t := t.(type) {
	case *Pointer:
		return t.Elem, true
	case *Array:
		return t.Elem, true
	default:
		return nil, false
	}
}

// IsPointer reports whether t is a pointer or an array. Arrays decay to
// pointers in every context this package is used in.
func IsPointer(t Type) bool {
	_, ok := Elem(t)
	return ok
}

// IsFuncPointer reports whether t is a pointer to a function.
func IsFuncPointer(t Type) bool {
	p, ok := t.(*Pointer)
	if !ok {
		return false
	}
	_, ok = p.Elem.(*Func)
	return ok
}

// Base strips every pointer and array level off t.
func Base(t Type) Type {
	for {
		e, ok := Elem(t)
		if !ok {
			return t
		}
		t = e
	}
}

// Depth returns the number of pointer and array levels in t.
func Depth(t Type) int {
	n := 0
	for {
		e, ok := Elem(t)
		if !ok {
			return n
		}
		t = e
		n++
	}
}

// IsVoidPointer reports whether the innermost pointee of t is void.
func IsVoidPointer(t Type) bool {
	if !IsPointer(t) {
		return false
	}
	b, ok := Base(t).(*Basic)
	return ok && stripQualifiers(b.Name) == "void"
}

// IsVaList reports whether t is the va_list typedef.
func IsVaList(t Type) bool {
	b, ok := t.(*Basic)
	return ok && (b.Name == "va_list" || b.Name == "__builtin_va_list")
}

// IsChecked reports whether any level of t carries a checked annotation.
func IsChecked(t Type) bool {
	for {
		switch tt := t.(type) {
		case *Pointer:
			if tt.Kind != Unchecked {
				return true
			}
			t = tt.Elem
		case *Array:
			if tt.Kind != Unchecked {
				return true
			}
			t = tt.Elem
		case *Func:
			if IsChecked(tt.Result) {
				return true
			}
			for _, p := range tt.Params {
				if IsChecked(p) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
}

// Uncheck returns a copy of t with every checked annotation removed.
func Uncheck(t Type) Type {
	switch t := t.(type) {
	case *Pointer:
		return &Pointer{Elem: Uncheck(t.Elem)}
	case *Array:
		return &Array{Elem: Uncheck(t.Elem), Len: t.Len, Sized: t.Sized}
	case *Func:
		out := &Func{Result: Uncheck(t.Result), Variadic: t.Variadic, Prototyped: t.Prototyped}
		for _, p := range t.Params {
			out.Params = append(out.Params, Uncheck(p))
		}
		return out
	default:
		return t
	}
}

func stripQualifiers(name string) string {
	fields := strings.Fields(name)
	out := fields[:0]
	for _, f := range fields {
		switch f {
		case "const", "volatile", "restrict":
		default:
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

type scalarClass int

const (
	notScalar scalarClass = iota
	charClass
	intClass
	floatClass
)

func classify(t Type) scalarClass {
	switch t := t.(type) {
	case *Named:
		if t.Tag == "enum" {
			return intClass
		}
		return notScalar
	case *Basic:
		name := stripQualifiers(t.Name)
		switch {
		case strings.Contains(name, "char"):
			return charClass
		case strings.Contains(name, "float"), strings.Contains(name, "double"):
			return floatClass
		case strings.Contains(name, "int"), strings.Contains(name, "short"), strings.Contains(name, "long"),
			name == "signed", name == "unsigned", name == "_Bool", name == "size_t", name == "ssize_t":
			return intClass
		}
	}
	return notScalar
}

// CastSafe reports whether a cast from src to dst preserves the layout the
// analysis relies on. Pointer pairs are compared level by level; a pointer
// and a non-pointer never match; scalars must belong to the same class
// (character, integer, floating point); everything else must be identical.
// A function designator decays to a pointer to the function.
func CastSafe(dst, src Type) bool {
	if f, ok := src.(*Func); ok {
		if _, ok := dst.(*Func); !ok {
			src = &Pointer{Elem: f}
		}
	}
	return castSafe(dst, src)
}

func castSafe(dst, src Type) bool {
	de, dok := Elem(dst)
	se, sok := Elem(src)
	switch {
	case dok && sok:
		return castSafe(de, se)
	case dok != sok:
		return false
	}
	if _, ok := dst.(*Func); ok {
		return Identical(dst, src)
	}
	dc, sc := classify(dst), classify(src)
	if dc == notScalar || sc == notScalar {
		return Identical(dst, src)
	}
	return dc == sc
}
