package gen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/loader"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/program"
)

const allocDecls = `
  - func: {pos: "1:7", name: malloc, result: "void *", params: [{pos: "1:28", name: size, type: "unsigned long"}]}
  - func:
      pos: "2:7"
      name: calloc
      result: "void *"
      params: [{pos: "2:28", name: n, type: "unsigned long"}, {pos: "2:45", name: size, type: "unsigned long"}]
  - func: {pos: "3:6", name: free, result: "void", params: [{pos: "3:17", name: p, type: "void *"}]}
`

func analyze(t *testing.T, opts program.Options, units ...string) *program.Info {
	t.Helper()
	info := program.New(opts, nil)
	for i, src := range units {
		u, err := loader.Decode(strings.NewReader(src), "unit"+string(rune('a'+i))+".yaml")
		require.NoError(t, err)
		info.EnterUnit(u)
		Unit(info)
		info.ExitUnit()
	}
	require.NoError(t, info.Link())
	info.Solve()
	return info
}

func lookup(t *testing.T, info *program.Info, pos string) program.Entry {
	t.Helper()
	p, err := ast.ParsePos(pos)
	require.NoError(t, err)
	e, ok := info.Lookup(p)
	require.True(t, ok, "no declaration at %s", pos)
	return e
}

func outer(t *testing.T, info *program.Info, pos string) constraints.Qualifier {
	t.Helper()
	e := lookup(t, info, pos)
	require.NotEmpty(t, e.Levels)
	return e.Levels[0].Q
}

func TestAllocationStaysSafe(t *testing.T) {
	src := `
file: a.c
decls:` + allocDecls + `
  - func:
      pos: "5:5"
      name: f
      body:
        - var: {pos: "6:7", name: p, type: "int *", init: {cast: "int *", implicit: true, x: {call: malloc, args: [{sizeof: int}]}}}
        - expr: {assign: "=", lhs: {unary: "*", x: p}, rhs: 1}
        - expr: {call: free, args: [{cast: "void *", implicit: true, x: p}]}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:6:7")
	assert.Equal(t, constraints.Ptr, e.Levels[0].Q)
	assert.Equal(t, "_Ptr<int> p", e.Type)
	assert.True(t, e.Changed)
	assert.Empty(t, info.Casts(), "calls to allow-listed functions need no casts")
}

func TestUnsafeCast(t *testing.T) {
	src := `
file: a.c
decls:` + allocDecls + `
  - record: {pos: "4:8", name: Foo, fields: [{pos: "4:18", name: x, type: int}]}
  - func:
      pos: "5:5"
      name: f
      body:
        - var: {pos: "6:7", name: p, type: "int *", init: {cast: "int *", implicit: true, x: {call: malloc, args: [4]}}}
        - expr: {assign: "=", lhs: p, rhs: {cast: "int *", implicit: true, x: {cast: "struct Foo *", x: p}}}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:6:7")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Contains(t, e.Levels[0].Reason, "int *")
	assert.Contains(t, e.Levels[0].Reason, "struct Foo *")
	assert.True(t, strings.HasPrefix(e.Levels[0].Reason, "Casted from "))
}

func TestSafeCastKeepsPointer(t *testing.T) {
	src := `
file: a.c
decls:
  - func:
      pos: "1:5"
      name: f
      params: [{pos: "1:13", name: q, type: "unsigned int *"}]
      body:
        - var: {pos: "2:7", name: p, type: "int *", init: {cast: "int *", x: q}}
`
	info := analyze(t, program.DefaultOptions(), src)
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:2:7"))
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:1:13"))
}

const callSites = `
file: a.c
decls:
  - func:
      pos: "1:6"
      name: id
      result: "int *"
      params: [{pos: "1:14", name: x, type: "int *"}]
      body:
        - return: x
  - func:
      pos: "3:5"
      name: main
      body:
        - var: {pos: "4:7", name: a, type: "int *", init: NULL}
        - var: {pos: "5:7", name: b, type: "int *", init: NULL}
        - expr: {call: id, args: [a]}
        - expr: {call: id, args: [b]}
        - expr: {unary: "++", x: b, postfix: true}
`

func TestCallJoinsArguments(t *testing.T) {
	info := analyze(t, program.DefaultOptions(), callSites)
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:4:7"))
	assert.Equal(t, constraints.Arr, outer(t, info, "a.c:5:7"))
	assert.Equal(t, constraints.Arr, outer(t, info, "a.c:1:14"), "parameter must be at least as unsafe as every argument")
	assert.Equal(t, constraints.Arr, outer(t, info, "a.c:1:6"), "returned value flows into the result")
}

func TestCallWildArgument(t *testing.T) {
	src := callSites + `        - expr: {assign: "=", lhs: b, rhs: {cast: "int *", x: {cast: "char *", x: b}}}
`
	info := analyze(t, program.DefaultOptions(), src)
	assert.Equal(t, constraints.Wild, outer(t, info, "a.c:5:7"))
	assert.Equal(t, constraints.Wild, outer(t, info, "a.c:1:14"))
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:4:7"), "a Wild parameter does not taint other arguments")
}

func TestCastSiteRecorded(t *testing.T) {
	src := `
file: a.c
decls:
  - func:
      pos: "1:6"
      name: sink
      params: [{pos: "1:16", name: x, type: "int *"}]
      body:
        - expr: {assign: "=", lhs: x, rhs: {cast: "int *", x: {cast: "char *", x: x}}}
  - func:
      pos: "3:5"
      name: main
      body:
        - var: {pos: "4:7", name: a, type: "int *", init: NULL}
        - expr: {call: sink, args: [a]}
`
	info := analyze(t, program.DefaultOptions(), src)
	assert.Equal(t, constraints.Wild, outer(t, info, "a.c:1:16"))
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:4:7"))
	require.Len(t, info.Casts(), 1)
	c := info.Casts()[0]
	assert.Equal(t, "x", c.Param.Name())
	assert.Equal(t, "a", c.Arg.Name())
}

func TestUnion(t *testing.T) {
	src := `
file: a.c
decls:
  - record: {pos: "1:7", name: U, union: true, fields: [{pos: "1:16", name: p, type: "int *"}, {pos: "1:23", name: i, type: int}]}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:1:16")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, reasonExtStruct, e.Levels[0].Reason)
}

func TestExternLinking(t *testing.T) {
	a := `
file: a.c
decls:
  - var: {pos: "1:5", name: x, type: int}
  - var: {pos: "2:6", name: g, type: "int *", init: {unary: "&", x: x}}
`
	b := `
file: b.c
decls:
  - var: {pos: "1:13", name: g, type: "int *", storage: extern}
  - func:
      pos: "2:6"
      name: use
      result: void
      body:
        - expr: {assign: "=", lhs: {unary: "*", x: g}, rhs: 1}
`
	info := analyze(t, program.DefaultOptions(), a, b)
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:2:6"))
	assert.Equal(t, constraints.Ptr, outer(t, info, "b.c:1:13"))

	c := `
file: c.c
decls:
  - var: {pos: "1:13", name: g, type: "int *", storage: extern}
  - func:
      pos: "2:6"
      name: bump
      result: void
      body:
        - expr: {unary: "++", x: g}
`
	info = analyze(t, program.DefaultOptions(), a, b, c)
	for _, pos := range []string{"a.c:2:6", "b.c:1:13", "c.c:1:13"} {
		assert.Equal(t, constraints.Arr, outer(t, info, pos), pos)
	}
}

func TestUndefinedExtern(t *testing.T) {
	src := `
file: a.c
decls:
  - var: {pos: "1:13", name: g, type: "int *", storage: extern}
  - func: {pos: "2:6", name: ext, result: "int *", params: [{pos: "2:15", name: p, type: "char *"}]}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:1:13")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, "External global variable g has no definition.", e.Levels[0].Reason)
	assert.Equal(t, constraints.Wild, outer(t, info, "a.c:2:6"))
	assert.Equal(t, constraints.Wild, outer(t, info, "a.c:2:15"))
}

func TestCallocLoopBounds(t *testing.T) {
	src := `
file: a.c
decls:` + allocDecls + `
  - func:
      pos: "5:6"
      name: f
      result: void
      body:
        - var: {pos: "6:7", name: y, type: "int *", init: {cast: "int *", implicit: true, x: {call: calloc, args: [5, {sizeof: int}]}}}
        - var: {pos: "7:6", name: i, type: int}
        - for:
            init: {expr: {assign: "=", lhs: i, rhs: 0}}
            cond: {binary: "<", x: i, y: 5}
            post: {unary: "++", x: i, postfix: true}
            body:
              - expr: {assign: "=", lhs: {index: y, i: i}, rhs: 0}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:6:7")
	assert.Equal(t, constraints.Arr, e.Levels[0].Q)
	assert.Equal(t, reasonSubscript, e.Levels[0].Reason)
	assert.Equal(t, "count(5)", e.Bounds)
	assert.Equal(t, "_Array_ptr<int> y", e.Type)
}

func TestUnknownCallee(t *testing.T) {
	src := `
file: a.c
decls:
  - func:
      pos: "1:6"
      name: f
      result: void
      body:
        - var: {pos: "2:7", name: p, type: "int *", init: NULL}
        - expr: {call: frob, args: [p]}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:2:7")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, "Argument to function frob without constraint variables.", e.Levels[0].Reason)
}

func TestVarargs(t *testing.T) {
	src := `
file: a.c
decls:
  - func: {pos: "1:5", name: printf, variadic: true, params: [{pos: "1:24", name: fmt, type: "const char *"}]}
  - func:
      pos: "2:6"
      name: f
      result: void
      body:
        - var: {pos: "3:7", name: p, type: "int *", init: NULL}
        - expr: {call: printf, args: [{str: "%p"}, p]}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:3:7")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, reasonVarargs, e.Levels[0].Reason)

	opts := program.DefaultOptions()
	opts.HandleVarargs = false
	info = analyze(t, opts, src)
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:3:7"))
}

func TestFunctionPointerArithmetic(t *testing.T) {
	src := `
file: a.c
decls:
  - var: {pos: "1:7", name: fp, type: "int (*)(int)"}
  - func:
      pos: "2:6"
      name: f
      result: void
      body:
        - expr: {unary: "++", x: fp}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:1:7")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, reasonFnArith, e.Levels[0].Reason)
}

func TestFunctionDesignatorCast(t *testing.T) {
	unit := func(typ string) string {
		return `
file: a.c
decls:
  - func:
      pos: "1:6"
      name: add1
      result: "int *"
      params: [{pos: "1:16", name: x, type: "int *"}]
      body:
        - return: x
  - var: {pos: "2:9", name: fp, type: "` + typ + `", init: {cast: "` + typ + `", x: add1}}
`
	}

	info := analyze(t, program.DefaultOptions(), unit("int *(*)(int *)"))
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:1:6"), "a function decays to a pointer to itself")
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:1:16"))

	info = analyze(t, program.DefaultOptions(), unit("char *(*)(int *)"))
	e := lookup(t, info, "a.c:1:6")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Contains(t, e.Levels[0].Reason, "Casted from")
}

func TestMacroPointers(t *testing.T) {
	src := `
file: a.c
decls:
  - var: {pos: "1:7", name: m, type: "int **", macro: true}
  - var: {pos: "2:6", name: q, type: "int *"}
  - func:
      pos: "3:6"
      name: f
      result: void
      body:
        - var: {pos: "4:10", name: p, type: "int *"}
        - expr: {assign: "=", lhs: p, rhs: {ident: q, macro: true}}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:1:7")
	require.Len(t, e.Levels, 2)
	for _, l := range e.Levels {
		assert.Equal(t, constraints.Wild, l.Q)
		assert.Equal(t, reasonMacro, l.Reason)
	}
	e = lookup(t, info, "a.c:2:6")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, reasonMacro, e.Levels[0].Reason)
	assert.Equal(t, constraints.Wild, outer(t, info, "a.c:4:10"), "macro values flow like any other")
}

func TestVaList(t *testing.T) {
	src := `
file: a.c
decls:
  - var: {pos: "1:10", name: ap, type: "va_list *"}
  - var: {pos: "2:6", name: p, type: "int *"}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:1:10")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, reasonVaList, e.Levels[0].Reason)
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:2:6"))
}

func TestSystemHeaderRecord(t *testing.T) {
	src := `
file: a.c
decls:
  - record: {pos: "1:8", name: S, sysheader: true, fields: [{pos: "1:17", name: p, type: "int **"}]}
  - record: {pos: "2:8", name: T, fields: [{pos: "2:17", name: q, type: "int *"}]}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:1:17")
	require.Len(t, e.Levels, 2)
	for _, l := range e.Levels {
		assert.Equal(t, constraints.Wild, l.Q)
		assert.Equal(t, reasonExtStruct, l.Reason)
	}
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:2:17"))
}

func TestVoidPointerInnermostLevel(t *testing.T) {
	src := `
file: a.c
decls:
  - var: {pos: "1:8", name: pp, type: "void **"}
  - var: {pos: "2:7", name: p, type: "void *"}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:1:8")
	require.Len(t, e.Levels, 2)
	assert.Equal(t, constraints.Ptr, e.Levels[0].Q)
	assert.Equal(t, constraints.Wild, e.Levels[1].Q)
	assert.Equal(t, reasonVoid, e.Levels[1].Reason)

	e = lookup(t, info, "a.c:2:7")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, reasonVoid, e.Levels[0].Reason)
}

func TestIndirectCallsEquateTargets(t *testing.T) {
	src := `
file: a.c
decls:
  - func:
      pos: "1:5"
      name: f
      params: [{pos: "1:12", name: p, type: "int *"}]
      body:
        - return: 0
  - func:
      pos: "2:5"
      name: g
      params: [{pos: "2:12", name: q, type: "int *"}]
      body:
        - expr: {unary: "++", x: q}
        - return: 0
  - func:
      pos: "3:6"
      name: h
      result: void
      params: [{pos: "3:12", name: c, type: int}]
      body:
        - expr: {call: {paren: {cond: c, then: f, else: g, type: "int (*)(int *)"}}, args: [NULL]}
`
	info := analyze(t, program.DefaultOptions(), src)
	assert.Equal(t, constraints.Arr, outer(t, info, "a.c:1:12"), "targets of one indirect call are equated")
	assert.Equal(t, constraints.Arr, outer(t, info, "a.c:2:12"))
}

func TestStringLiteral(t *testing.T) {
	src := `
file: a.c
decls:
  - var: {pos: "1:7", name: s, type: "char *", init: {str: "hello"}}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:1:7")
	assert.Equal(t, constraints.NTArr, e.Levels[0].Q)
	assert.Equal(t, "_Nt_array_ptr<char> s", e.Type)
}

func TestAllTypesDisabled(t *testing.T) {
	opts := program.DefaultOptions()
	opts.AllTypes = false
	info := analyze(t, opts, callSites)
	e := lookup(t, info, "a.c:5:7")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, "Pointer is array but alltypes is disabled.", e.Levels[0].Reason)
}

func TestInlineStruct(t *testing.T) {
	src := `
file: a.c
decls:
  - record: {pos: "1:8", name: S, fields: [{pos: "1:17", name: p, type: "int *"}]}
  - var: {pos: "1:24", name: s, type: "struct S *"}
  - var: {pos: "2:12", name: t, type: "struct S *"}
`
	info := analyze(t, program.DefaultOptions(), src)
	e := lookup(t, info, "a.c:1:24")
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, reasonInline, e.Levels[0].Reason)
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:2:12"))
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:1:17"))
}

func TestGenericCall(t *testing.T) {
	src := `
file: a.c
decls:
  - func:
      pos: "1:7"
      name: copy
      result: "void *"
      result_typevar: 0
      type_params: 1
      params: [{pos: "1:18", name: p, type: "void *", typevar: 0}]
      body:
        - return: p
  - func:
      pos: "3:6"
      name: f
      result: void
      body:
        - var: {pos: "4:7", name: a, type: "int *", init: NULL}
        - var: {pos: "5:7", name: b, type: "int *", init: {cast: "int *", implicit: true, x: {call: copy, args: [{cast: "void *", implicit: true, x: a}]}}}
`
	info := analyze(t, program.DefaultOptions(), src)
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:4:7"))
	assert.Equal(t, constraints.Ptr, outer(t, info, "a.c:5:7"))
	var found bool
	for _, pos := range []string{"a.c:5:7#1", "a.c:5:7#2"} {
		p, _ := ast.ParsePos(pos)
		if args, ok := info.TypeArgs(p); ok {
			found = true
			require.Len(t, args, 1)
			assert.Equal(t, "int", args[0].String())
		}
	}
	assert.True(t, found, "instantiation of copy must be recorded")
}
