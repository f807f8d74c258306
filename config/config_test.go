package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLists(t *testing.T) {
	tests := []struct {
		a, b []string
		want []string
	}{
		{[]string{"malloc"}, []string{"inherit", "xmalloc"}, []string{"malloc", "xmalloc"}},
		{[]string{"malloc"}, []string{"xmalloc"}, []string{"xmalloc"}},
		{nil, []string{"inherit"}, []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mergeLists(tt.a, tt.b))
	}
}

func TestNormalizeList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, normalizeList([]string{"b", "a", "b"}))
	assert.Panics(t, func() { normalizeList([]string{"inherit"}) })
}

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
[analysis]
all_types = false
checked_regions = true
allocators = ["inherit", "xmalloc"]

[bounds]
name_heuristics = true
`), "test.conf")
	require.NoError(t, err)

	assert.False(t, cfg.Analysis.AllTypes)
	assert.True(t, cfg.Analysis.HandleVarargs, "unset keys keep their defaults")
	assert.True(t, cfg.Analysis.CheckedRegions)
	assert.False(t, Default().Analysis.CheckedRegions)
	assert.Equal(t, []string{"calloc", "malloc", "realloc", "xmalloc"}, cfg.Analysis.Allocators)

	opts := cfg.Options()
	assert.False(t, opts.AllTypes)
	assert.True(t, opts.InferBounds)
	assert.True(t, opts.NameHeuristics)
	assert.True(t, opts.IsAllocator("xmalloc"))
}

func TestParseError(t *testing.T) {
	_, err := Parse(strings.NewReader("[analysis\n"), "broken.conf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.conf")
}

func TestLoadHierarchy(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "src", "lib")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	write := func(dir, data string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, configName), []byte(data), 0o644))
	}
	write(root, `
[analysis]
extern_allow = ["inherit", "printf"]
handle_varargs = false
`)
	write(sub, `
[analysis]
extern_allow = ["inherit", "puts"]

[output]
postfix = "c3"
`)

	cfg, err := Load(sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"calloc", "free", "malloc", "printf", "puts", "realloc"}, cfg.Analysis.ExternAllow)
	assert.False(t, cfg.Analysis.HandleVarargs)
	assert.Equal(t, "c3", cfg.Output.Postfix)
	assert.Equal(t, "text", cfg.Output.Format)

	cfg, err = Load(filepath.Join(root, "src"))
	require.NoError(t, err)
	assert.Equal(t, "checked", cfg.Output.Postfix)
}

func TestDefaultIsolated(t *testing.T) {
	cfg := Default()
	cfg.Analysis.Allocators[0] = "changed"
	assert.Equal(t, "malloc", Default().Analysis.Allocators[0])
}
