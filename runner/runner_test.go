package runner_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/loader"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/internal/testutil"
	"honnef.co/go/cconv/program"
	"honnef.co/go/cconv/runner"
)

func TestFixtures(t *testing.T) {
	testutil.Run(t, "testdata/*.txtar")
}

func load(t *testing.T, path string) *testutil.Fixture {
	t.Helper()
	fx, err := testutil.Load(path)
	require.NoError(t, err)
	return fx
}

func TestNoUnits(t *testing.T) {
	_, err := runner.Run(loader.Docs(), program.DefaultOptions(), nil)
	assert.Error(t, err)
}

func TestDeterministicOutput(t *testing.T) {
	fx := load(t, "testdata/extern_link.txtar")
	var outs [2]bytes.Buffer
	for i := range outs {
		res, err := runner.Run(loader.Docs(fx.Units...), fx.Config.Options(), nil)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Units)
		require.NoError(t, res.Info.WriteJSON(&outs[i]))
	}
	assert.Equal(t, outs[0].String(), outs[1].String())
}

func TestResolve(t *testing.T) {
	fx := load(t, "testdata/call_join.txtar")
	res, err := runner.Run(loader.Docs(fx.Units...), fx.Config.Options(), nil)
	require.NoError(t, err)

	a := ast.Pos{File: "a.c", Line: 4, Column: 7}
	x := ast.Pos{File: "a.c", Line: 1, Column: 14}
	e, ok := res.Info.Lookup(a)
	require.True(t, ok)
	require.Equal(t, constraints.Ptr, e.Levels[0].Q)

	missed := res.Resolve([]program.Override{
		{Pos: a, Level: 0, Q: constraints.Wild},
		{Pos: ast.Pos{File: "a.c", Line: 99, Column: 1}, Level: 0, Q: constraints.Wild},
		{Pos: a, Level: 3, Q: constraints.Wild},
	})
	assert.Equal(t, 2, missed)

	e, ok = res.Info.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, "Set by user.", e.Levels[0].Reason)
	e, ok = res.Info.Lookup(x)
	require.True(t, ok)
	assert.Equal(t, constraints.Wild, e.Levels[0].Q, "overrides flow like any other constraint")
}

func TestResolveTwice(t *testing.T) {
	fx := load(t, "testdata/call_join.txtar")
	res, err := runner.Run(loader.Docs(fx.Units...), fx.Config.Options(), nil)
	require.NoError(t, err)

	a := ast.Pos{File: "a.c", Line: 4, Column: 7}
	assert.Zero(t, res.Resolve([]program.Override{{Pos: a, Level: 0, Q: constraints.Arr, Reason: "first"}}))
	e, ok := res.Info.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, constraints.Arr, e.Levels[0].Q)

	assert.Zero(t, res.Resolve([]program.Override{{Pos: a, Level: 0, Q: constraints.Wild, Reason: "second"}}))
	e, ok = res.Info.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, constraints.Wild, e.Levels[0].Q)
	assert.Equal(t, "second", e.Levels[0].Reason)

	// A later, safer choice replaces the earlier one.
	assert.Zero(t, res.Resolve([]program.Override{{Pos: a, Level: 0, Q: constraints.Arr, Reason: "third"}}))
	e, ok = res.Info.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, constraints.Arr, e.Levels[0].Q)
	assert.Equal(t, "third", e.Levels[0].Reason)
}
