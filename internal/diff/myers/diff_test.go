package myers

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func apply(es []Edit) string {
	var sb strings.Builder
	for _, e := range es {
		if e.Kind != Delete {
			sb.WriteString(e.Line)
		}
	}
	return sb.String()
}

func TestComputeEdits(t *testing.T) {
	tests := []struct {
		before, after string
	}{
		{"", ""},
		{"a\n", ""},
		{"", "a\n"},
		{"a\nb\nc\n", "a\nc\n"},
		{"a\nb\nc\n", "x\na\nb\ny\nc\n"},
		{"int *p;\nint *q;\n", "_Ptr<int> p;\nint *q;\n"},
		{"a\nb", "a\nc"},
	}
	for _, tt := range tests {
		es := ComputeEdits(tt.before, tt.after)
		assert.Equal(t, tt.after, apply(es), "%q -> %q", tt.before, tt.after)

		var old strings.Builder
		for _, e := range es {
			if e.Kind != Insert {
				old.WriteString(e.Line)
			}
		}
		assert.Equal(t, tt.before, old.String())
	}
}

func TestUnified(t *testing.T) {
	assert.Empty(t, Unified("a", "b", "x\n", "x\n"))

	before := "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n"
	after := "1\n2\n3\n4\nfive\n6\n7\n8\n9\n10\n"
	want := `--- a.c
+++ a.c.checked
@@ -2,7 +2,7 @@
 2
 3
 4
-5
+five
 6
 7
 8
`
	assert.Equal(t, want, Unified("a.c", "a.c.checked", before, after))
}

func TestUnifiedNoNewline(t *testing.T) {
	got := Unified("a", "b", "x", "y")
	assert.Equal(t, "--- a\n+++ b\n@@ -1 +1 @@\n-x\n\\ No newline at end of file\n+y\n\\ No newline at end of file\n", got)
}

func TestUnifiedSeparateHunks(t *testing.T) {
	var before, after []string
	for i := 0; i < 20; i++ {
		before = append(before, fmt.Sprintf("line %d\n", i))
		after = append(after, fmt.Sprintf("line %d\n", i))
	}
	after[1] = "first\n"
	after[18] = "second\n"
	got := Unified("a", "b", strings.Join(before, ""), strings.Join(after, ""))
	assert.Equal(t, 2, strings.Count(got, "@@ -"))
	assert.Contains(t, got, "@@ -1,5 +1,5 @@\n")
	assert.Contains(t, got, "@@ -16,5 +16,5 @@\n")
}
