package bounds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
)

func at(line, col int) ast.Pos { return ast.Pos{File: "t.c", Line: line, Column: col} }

func TestScopeVisibility(t *testing.T) {
	foo := Param("foo", false, "a.c")
	fooLocal := Function("foo", false, "a.c")
	bar := Param("bar", false, "a.c")
	sfoo := Param("foo", true, "b.c")

	assert.True(t, foo.Sees(Global()))
	assert.True(t, foo.Sees(foo))
	assert.False(t, foo.Sees(fooLocal), "parameters cannot see locals")
	assert.True(t, fooLocal.Sees(foo))
	assert.False(t, foo.Sees(bar))
	assert.False(t, foo.Sees(sfoo), "static functions are distinct per file")
	assert.False(t, Struct("s").Sees(Global()))
	assert.True(t, Struct("s").Sees(Scope{Kind: ConstScope}))
	assert.False(t, Struct("s").Sees(Struct("t")))
}

func TestInsertAndLookup(t *testing.T) {
	info := NewInfo()
	k := info.InsertVariable(at(1, 5), "n", Global(), types.Int)
	require.Equal(t, k, info.InsertVariable(at(1, 5), "n", Global(), types.Int))

	got, ok := info.TryGetExprKey(&ast.Paren{X: &ast.Ident{Name: "n", Ref: at(1, 5)}})
	require.True(t, ok)
	assert.Equal(t, k, got)

	c1, _ := info.TryGetExprKey(&ast.IntLit{Value: 5})
	c2 := info.ConstKey(5)
	assert.Equal(t, c1, c2)

	_, ok = info.TryGetExprKey(&ast.Binary{Op: "+", X: &ast.IntLit{Value: 1}, Y: &ast.IntLit{Value: 2}})
	assert.False(t, ok)

	b := info.GetBoundsInfo(&ast.BoundsExpr{Kind: ast.RangeBounds, Lo: &ast.IntLit{Value: 0}, Hi: &ast.Ident{Ref: at(1, 5)}})
	assert.Equal(t, "bounds(0, n)", b.MkString(info))
	assert.Nil(t, info.GetBoundsInfo(&ast.BoundsExpr{Kind: ast.CountBounds, X: &ast.Ident{Ref: at(9, 9)}}))
}

func arrays(ks ...Key) func(Key) bool {
	return func(k Key) bool {
		for _, x := range ks {
			if x == k {
				return true
			}
		}
		return false
	}
}

func TestInferAcrossCall(t *testing.T) {
	// void foo(int *arr, int len);
	// main: int n; int *a = malloc(n * sizeof(int)); foo(a, n);
	info := NewInfo()
	arr := info.InsertVariable(at(1, 15), "arr", Param("foo", false, "t.c"), types.NewPointer(types.Int))
	length := info.InsertVariable(at(1, 24), "len", Param("foo", false, "t.c"), types.Int)
	n := info.InsertVariable(at(3, 7), "n", Function("main", false, "t.c"), types.Int)
	a := info.InsertVariable(at(4, 8), "a", Function("main", false, "t.c"), types.NewPointer(types.Int))

	info.AddAllocation(a, CountBound{n})
	info.AddAssignment(arr, a)
	info.AddAssignment(length, n)
	info.Infer(arrays(arr, a))

	b, src, ok := info.Bounds(a)
	require.True(t, ok)
	assert.Equal(t, Allocator, src)
	assert.Equal(t, "count(n)", b.MkString(info))

	b, src, ok = info.Bounds(arr)
	require.True(t, ok)
	assert.Equal(t, Dataflow, src)
	assert.Equal(t, "count(len)", b.MkString(info))

	assert.Equal(t, Stats{Arrays: 2, Allocator: 1, Dataflow: 1}, info.Stats())
}

func TestInferConflict(t *testing.T) {
	info := NewInfo()
	scope := Function("f", false, "t.c")
	p := info.InsertVariable(at(1, 1), "p", scope, types.NewPointer(types.Int))
	q := info.InsertVariable(at(2, 1), "q", scope, types.NewPointer(types.Int))
	r := info.InsertVariable(at(3, 1), "r", scope, types.NewPointer(types.Int))
	info.SetDeclared(q, CountBound{info.ConstKey(4)})
	info.SetDeclared(r, CountBound{info.ConstKey(8)})
	info.AddAssignment(p, q)
	info.AddAssignment(p, r)
	info.Infer(arrays(p, q, r))

	_, _, ok := info.Bounds(p)
	assert.False(t, ok)
	assert.True(t, info.Invalid(p))
	assert.Equal(t, 1, info.Stats().Invalid)
}

func TestInferAllocatorConflict(t *testing.T) {
	info := NewInfo()
	scope := Function("f", false, "t.c")
	p := info.InsertVariable(at(1, 1), "p", scope, types.NewPointer(types.Int))
	info.AddAllocation(p, CountBound{info.ConstKey(4)})
	info.AddAllocation(p, CountBound{info.ConstKey(5)})
	info.Infer(arrays(p))
	_, _, ok := info.Bounds(p)
	assert.False(t, ok)
	assert.Equal(t, 1, info.Stats().Missing)
}

func TestInferLoop(t *testing.T) {
	info := NewInfo()
	scope := Function("main", false, "t.c")
	y := info.InsertVariable(at(1, 8), "y", scope, types.NewPointer(types.Int))
	n := info.InsertVariable(at(2, 7), "n", scope, types.Int)
	info.AddPotential(y, n)
	info.AddPotential(y, n)
	info.Infer(arrays(y))
	b, src, ok := info.Bounds(y)
	require.True(t, ok)
	assert.Equal(t, Loop, src)
	assert.Equal(t, "count(n)", b.MkString(info))
}

func TestInferNames(t *testing.T) {
	info := NewInfo()
	scope := Param("sum", false, "t.c")
	buf := info.InsertVariable(at(1, 10), "buf", scope, types.NewPointer(types.Int))
	info.InsertVariable(at(1, 20), "buf_len", scope, types.Int)
	info.InsertVariable(at(1, 30), "flags", scope, types.Int)

	info.Infer(arrays(buf))
	_, _, ok := info.Bounds(buf)
	assert.False(t, ok, "name heuristics are off by default")

	info.NameHeuristics = true
	info.Infer(arrays(buf))
	b, src, ok := info.Bounds(buf)
	require.True(t, ok)
	assert.Equal(t, NameMatch, src)
	assert.Equal(t, "count(buf_len)", b.MkString(info))
}

func TestInferOutOfScope(t *testing.T) {
	// A global array assigned from a local allocation has no visible bound.
	info := NewInfo()
	g := info.InsertVariable(at(1, 6), "g", Global(), types.NewPointer(types.Int))
	n := info.InsertVariable(at(3, 7), "n", Function("main", false, "t.c"), types.Int)
	p := info.InsertVariable(at(4, 8), "p", Function("main", false, "t.c"), types.NewPointer(types.Int))
	info.AddAllocation(p, ByteBound{n})
	info.AddAssignment(g, p)
	info.Infer(arrays(g, p))

	_, _, ok := info.Bounds(g)
	assert.False(t, ok)
	b, _, ok := info.Bounds(p)
	require.True(t, ok)
	assert.Equal(t, "byte_count(n)", b.MkString(info))
}
