package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/loader"
	"honnef.co/go/cconv/program"
	"honnef.co/go/cconv/runner"
)

const unit = `
file: a.c
decls:
  - var: {pos: "1:6", name: p, type: "int *"}
  - var: {pos: "2:6", name: q, type: "int *"}
  - func:
      pos: "3:6"
      name: f
      result: void
      body:
        - expr: {assign: "=", lhs: q, rhs: p}
        - expr: {assign: "=", lhs: p, rhs: {cast: "int *", x: {cast: "char *", x: p}}}
`

func solve(t *testing.T) *program.Info {
	t.Helper()
	res, err := runner.Run(loader.Docs(loader.Doc{Name: "a.yaml", Data: []byte(unit)}), program.DefaultOptions(), nil)
	require.NoError(t, err)
	return res.Info
}

func TestExplain(t *testing.T) {
	info := solve(t)
	s, err := Explain(info, ast.Pos{File: "a.c", Line: 2, Column: 6})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(s), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "a.c:2:6 int *q", lines[0])
	assert.Contains(t, lines[1], "WILD: Casted from ")

	s, err = Explain(info, ast.Pos{File: "a.c", Line: 3, Column: 6})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "a.c:3:6 "))

	_, err = Explain(info, ast.Pos{File: "a.c", Line: 9, Column: 1})
	assert.Error(t, err)
}

func TestWriteDot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "g.dot")
	require.NoError(t, WriteDot(path, solve(t)))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "digraph constraints {\n"))
	assert.Contains(t, string(b), "color=red")
}
