package convcmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/program"
	"honnef.co/go/cconv/store"
)

const unit = `
file: DIR/a.c
source: |
  int *p;
  int *q;
  void f(void) { q = (int *)(char *)q; }
decls:
  - var: {pos: "1:6", name: p, type: "int *", range: "1:1-1:7"}
  - var: {pos: "2:6", name: q, type: "int *", range: "2:1-2:7"}
  - func:
      pos: "3:6"
      name: f
      result: void
      body:
        - expr: {assign: "=", lhs: q, rhs: {cast: "int *", x: {cast: "char *", x: q}}}
`

const rewritten = "_Ptr<int> p;\nint *q;\nvoid f(void) { q = (int *)(char *)q; }\n"

// setup writes the unit to a fresh directory and returns the directory
// and the unit's path.
func setup(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(unit, "DIR", dir)), 0o644))
	return dir, path
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewCommand("cconv")
	cmd.SetOutput(&stdout, &stderr)
	code := cmd.Execute(args)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := execute(t, "--version")
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "cconv "))
}

func TestUsageErrors(t *testing.T) {
	code, _, stderr := execute(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "no translation units")

	code, _, _ = execute(t, "--no-such-flag")
	assert.Equal(t, 2, code)

	_, path := setup(t)
	code, _, stderr = execute(t, "-f", "xml", path)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unsupported output format "xml"`)
}

func TestRewriteFiles(t *testing.T) {
	dir, path := setup(t)
	code, out, _ := execute(t, path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "a.c:2:6: variable q stays unchecked: Casted from")
	assert.NotContains(t, out, "a.c:1:6")

	b, err := os.ReadFile(filepath.Join(dir, "a.checked.c"))
	require.NoError(t, err)
	assert.Equal(t, rewritten, string(b))
}

func TestDiff(t *testing.T) {
	dir, path := setup(t)
	code, out, _ := execute(t, "--diff", "-f", "null", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "-int *p;\n+_Ptr<int> p;\n")
	_, err := os.Stat(filepath.Join(dir, "a.checked.c"))
	assert.True(t, os.IsNotExist(err), "diff mode must not write files")
}

func TestPrintRewritten(t *testing.T) {
	_, path := setup(t)
	code, out, _ := execute(t, "--output-postfix", "-", "-f", "null", path)
	require.Equal(t, 0, code)
	assert.True(t, strings.HasSuffix(out, rewritten))
}

func TestJSONDiagnostics(t *testing.T) {
	_, path := setup(t)
	code, out, _ := execute(t, "-f", "json", "--output-postfix", "", path)
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var d struct {
		Code     string `json:"code"`
		Severity string `json:"severity"`
		Location struct {
			Line   int `json:"line"`
			Column int `json:"column"`
		} `json:"location"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &d))
	assert.Equal(t, "unchecked", d.Code)
	assert.Equal(t, "warning", d.Severity)
	assert.Equal(t, 2, d.Location.Line)
	assert.Equal(t, 6, d.Location.Column)
}

func TestStylish(t *testing.T) {
	_, path := setup(t)
	code, out, _ := execute(t, "-f", "stylish", "--output-postfix", "", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "  (2, 6)")
	assert.Contains(t, out, "1 problems (0 errors, 1 warnings)")
	assert.NotContains(t, out, "\x1b[", "output to a buffer is not coloured")
}

func TestDumps(t *testing.T) {
	_, path := setup(t)
	code, out, _ := execute(t, "--dump-json", "-f", "null", "--output-postfix", "", path)
	require.Equal(t, 0, code)
	var summary struct {
		Declarations []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"declarations"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	types := map[string]string{}
	for _, d := range summary.Declarations {
		types[d.Name] = d.Type
	}
	assert.Equal(t, "_Ptr<int> p", types["p"])
	assert.Equal(t, "int *q", types["q"])

	code, out, _ = execute(t, "--stats", "--dump", "-f", "null", "--output-postfix", "", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "1 units")
	assert.Contains(t, out, "variables")
	assert.Contains(t, out, "conflicts: 0")
}

func TestExplainAndDot(t *testing.T) {
	dir, path := setup(t)
	dot := filepath.Join(dir, "g.dot")
	pos := filepath.Join(dir, "a.c") + ":2:6"
	code, out, _ := execute(t, "--explain", pos, "--debug.dot", dot, "-f", "null", "--output-postfix", "", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "level 0: WILD: Casted from")
	_, err := os.Stat(dot)
	assert.NoError(t, err)
}

func TestConfigFile(t *testing.T) {
	dir, path := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cconv.conf"), []byte("[output]\npostfix = \"safe\"\nformat = \"null\"\n"), 0o644))
	code, out, _ := execute(t, path)
	require.Equal(t, 0, code)
	assert.Empty(t, out)
	_, err := os.Stat(filepath.Join(dir, "a.safe.c"))
	assert.NoError(t, err)

	other := filepath.Join(t.TempDir(), "other.conf")
	require.NoError(t, os.WriteFile(other, []byte("[output]\npostfix = \"\"\n"), 0o644))
	code, _, _ = execute(t, "--config", other, path)
	require.Equal(t, 0, code)
	_, err = os.Stat(filepath.Join(dir, "a.checked.c"))
	assert.True(t, os.IsNotExist(err))
	// An empty postfix does not rewrite in place either.
	_, err = os.Stat(filepath.Join(dir, "a.c"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore(t *testing.T) {
	dir, path := setup(t)
	db := filepath.Join(dir, "cconv.db")
	p := ast.Pos{File: filepath.Join(dir, "a.c"), Line: 1, Column: 6}

	s, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, s.AddOverride(program.Override{Pos: p, Q: constraints.Wild, Reason: "kept unchecked"}))
	require.NoError(t, s.Close())

	code, out, _ := execute(t, "--store", db, "--output-postfix", "", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "variable p stays unchecked: kept unchecked")

	s, err = store.Open(db)
	require.NoError(t, err)
	defer s.Close()
	r, ok, err := s.Lookup(p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, constraints.Wild, r.Levels[0].Q)
}

func TestCheckedName(t *testing.T) {
	assert.Equal(t, "dir/a.checked.c", checkedName("dir/a.c", "checked"))
	assert.Equal(t, "Makefile.x", checkedName("Makefile", "x"))
}
