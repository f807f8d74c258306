package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/loader"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/program"
	"honnef.co/go/cconv/runner"
)

const unit = `
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
        - expr: {unary: "++", x: b, postfix: true}
`

func run(t *testing.T) *runner.Result {
	t.Helper()
	res, err := runner.Run(loader.Docs(loader.Doc{Name: "a.yaml", Data: []byte(unit)}), program.DefaultOptions(), nil)
	require.NoError(t, err)
	return res
}

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cconv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLookup(t *testing.T) {
	s := open(t)
	res := run(t)
	require.NoError(t, s.SaveAssignment(res.Info))
	// Saving twice replaces the previous solution.
	require.NoError(t, s.SaveAssignment(res.Info))

	b := ast.Pos{File: "a.c", Line: 5, Column: 7}
	r, ok, err := s.Lookup(b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", r.Name)
	assert.Equal(t, "_Array_ptr<int> b", r.Type)
	assert.True(t, r.Changed)
	require.Len(t, r.Levels, 1)
	assert.Equal(t, constraints.Arr, r.Levels[0].Q)
	assert.Equal(t, "Pointer arithmetic.", r.Levels[0].Reason)

	_, ok, err = s.Lookup(ast.Pos{File: "a.c", Line: 40, Column: 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOverrides(t *testing.T) {
	s := open(t)
	ovs, err := s.LoadOverrides()
	require.NoError(t, err)
	assert.Empty(t, ovs)

	a := ast.Pos{File: "a.c", Line: 4, Column: 7}
	require.NoError(t, s.AddOverride(program.Override{Pos: a, Q: constraints.Wild, Reason: "checked by hand"}))
	require.NoError(t, s.AddOverride(program.Override{Pos: ast.Pos{File: "a.c", Line: 5, Column: 7}, Q: constraints.NTArr}))
	ovs, err = s.LoadOverrides()
	require.NoError(t, err)
	require.Len(t, ovs, 2)
	assert.Equal(t, a, ovs[0].Pos)
	assert.Equal(t, constraints.Wild, ovs[0].Q)
	assert.Equal(t, "checked by hand", ovs[0].Reason)
	assert.Equal(t, constraints.NTArr, ovs[1].Q)

	res := run(t)
	assert.Equal(t, 0, res.Resolve(ovs))
	require.NoError(t, s.SaveAssignment(res.Info))
	r, ok, err := s.Lookup(a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, constraints.Wild, r.Levels[0].Q)
	assert.Equal(t, "checked by hand", r.Levels[0].Reason)
	assert.Equal(t, "int *a", r.Type)
}
