package types

import "testing"

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"int", "int"},
		{"int *", "int *"},
		{"int**", "int **"},
		{"const char *", "const char *"},
		{"unsigned long int", "unsigned long int"},
		{"struct node *", "struct node *"},
		{"char [10]", "char [10]"},
		{"int *[4]", "int *[4]"},
		{"int (*)[4]", "int (*)[4]"},
		{"int (*)(int *, char)", "int (*)(int *, char)"},
		{"void (*)(void)", "void (*)(void)"},
		{"int (*)(const char *, ...)", "int (*)(const char *, ...)"},
		{"_Ptr<int>", "_Ptr<int>"},
		{"_Array_ptr<_Ptr<char>>", "_Array_ptr<_Ptr<char>>"},
		{"_Ptr<int (int)>", "_Ptr<int (int)>"},
		{"int _Checked[10]", "int _Checked[10]"},
		{"size_t", "size_t"},
		{"int *p", "int *"},
	}
	for _, tt := range tests {
		typ, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got := typ.String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "*", "int [x]", "_Ptr<int", "struct *", "int $"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestDeclarator(t *testing.T) {
	tests := []struct {
		typ  Type
		name string
		want string
	}{
		{MustParse("int *"), "p", "int *p"},
		{MustParse("int **"), "p", "int **p"},
		{MustParse("int (*)(int)"), "fp", "int (*fp)(int)"},
		{MustParse("int *[3]"), "a", "int *a[3]"},
		{&Pointer{Elem: Int, Kind: CheckedPtr}, "p", "_Ptr<int> p"},
		{&Pointer{Elem: &Pointer{Elem: Int, Kind: CheckedPtr}}, "p", "_Ptr<int> *p"},
		{&Pointer{Elem: &Pointer{Elem: Int}, Kind: CheckedArray}, "p", "_Array_ptr<int *> p"},
		{&Array{Elem: Int, Len: 10, Sized: true, Kind: CheckedArray}, "a", "int a _Checked[10]"},
		{&Array{Elem: Char, Len: 8, Sized: true, Kind: CheckedNTArray}, "s", "char s _Nt_checked[8]"},
	}
	for _, tt := range tests {
		if got := Declarator(tt.typ, tt.name); got != tt.want {
			t.Errorf("Declarator(%v, %q) = %q, want %q", tt.typ, tt.name, got, tt.want)
		}
	}
}

func TestCastSafe(t *testing.T) {
	tests := []struct {
		dst, src string
		want     bool
	}{
		{"int *", "int *", true},
		{"int *", "long *", true},
		{"char *", "int *", false},
		{"struct Foo *", "int *", false},
		{"struct Foo *", "struct Foo *", true},
		{"int **", "int *", false},
		{"int", "int *", false},
		{"double *", "float *", true},
		{"void *", "int *", false},
		{"enum e *", "int *", true},
		{"int (*)(int)", "int (*)(int)", true},
		{"int (*)(int)", "int (*)(char *)", false},
	}
	for _, tt := range tests {
		got := CastSafe(MustParse(tt.dst), MustParse(tt.src))
		if got != tt.want {
			t.Errorf("CastSafe(%s, %s) = %t, want %t", tt.dst, tt.src, got, tt.want)
		}
	}
}

func TestCastSafeFunctionDesignator(t *testing.T) {
	add1 := &Func{Result: MustParse("int *"), Params: []Type{MustParse("int *")}}
	if !CastSafe(MustParse("int *(*)(int *)"), add1) {
		t.Error("a function should cast to a pointer to its own type")
	}
	if CastSafe(MustParse("char *(*)(int *)"), add1) {
		t.Error("a function should not cast to a pointer to a different function type")
	}
	if CastSafe(MustParse("int *"), add1) {
		t.Error("a function should not cast to a data pointer")
	}
}

func TestPredicates(t *testing.T) {
	if !IsFuncPointer(MustParse("void (*)(int)")) {
		t.Error("void (*)(int) should be a function pointer")
	}
	if IsFuncPointer(MustParse("int *")) {
		t.Error("int * is not a function pointer")
	}
	if !IsVoidPointer(MustParse("const void **")) {
		t.Error("const void ** should be a void pointer")
	}
	if got := Depth(MustParse("char *[4]")); got != 2 {
		t.Errorf("Depth(char *[4]) = %d, want 2", got)
	}
	if !IsChecked(MustParse("int (*)(_Ptr<int>)")) {
		t.Error("a checked parameter makes the function type checked")
	}
	if got := Uncheck(MustParse("_Ptr<_Array_ptr<int>>")).String(); got != "int **" {
		t.Errorf("Uncheck = %q, want %q", got, "int **")
	}
}
