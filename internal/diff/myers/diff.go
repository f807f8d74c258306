// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package myers computes line-based diffs of rewritten files with Myers'
// algorithm and renders them in unified format.
package myers

import (
	"fmt"
	"slices"
	"strings"
)

// OpKind is used to denote the type of operation a line represents.
type OpKind int

const (
	// Delete is the operation kind for a line that is present in the input
	// but not in the output.
	Delete OpKind = iota
	// Insert is the operation kind for a line that is new in the output.
	Insert
	// Equal is the operation kind for a line that is the same in the input and
	// output, often used to provide context around edited lines.
	Equal
)

func (k OpKind) String() string {
	switch k {
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	case Equal:
		return "equal"
	default:
		panic("unknown operation kind")
	}
}

func (k OpKind) prefix() byte {
	switch k {
	case Delete:
		return '-'
	case Insert:
		return '+'
	default:
		return ' '
	}
}

// Edit is one line of a diff. I and J are the indices of the line in the
// old and new text; for insertions I is the index of the following old
// line, for deletions J that of the following new line.
type Edit struct {
	Kind OpKind
	I, J int
	Line string
}

// Sources:
// https://blog.jcoglan.com/2017/02/17/the-myers-diff-algorithm-part-3/

// ComputeEdits returns the line edits converting before into after,
// including unchanged lines.
func ComputeEdits(before, after string) []Edit {
	return edits(splitLines(before), splitLines(after))
}

func edits(a, b []string) []Edit {
	n, m := len(a), len(b)
	off := n + m
	trace := shortestEdit(a, b)

	var out []Edit
	x, y := n, m
	for d := len(trace) - 1; d >= 0; d-- {
		v := trace[d]
		k := x - y
		var pk int
		if k == -d || (k != d && v[off+k-1] < v[off+k+1]) {
			pk = k + 1
		} else {
			pk = k - 1
		}
		px := v[off+pk]
		py := px - pk
		for x > px && y > py {
			x--
			y--
			out = append(out, Edit{Kind: Equal, I: x, J: y, Line: a[x]})
		}
		if d == 0 {
			break
		}
		if x == px {
			out = append(out, Edit{Kind: Insert, I: px, J: py, Line: b[py]})
		} else {
			out = append(out, Edit{Kind: Delete, I: px, J: py, Line: a[px]})
		}
		x, y = px, py
	}
	slices.Reverse(out)
	return out
}

// shortestEdit returns the frontier of every round of the greedy search,
// as it was before the round.
func shortestEdit(a, b []string) [][]int {
	n, m := len(a), len(b)
	max := n + m
	off := max
	v := make([]int, 2*max+2)
	var trace [][]int
	for d := 0; d <= max; d++ {
		trace = append(trace, slices.Clone(v))
		for k := -d; k <= d; k += 2 {
			// Prefer deletions to insertions.
			var x int
			if k == -d || (k != d && v[off+k-1] < v[off+k+1]) {
				x = v[off+k+1]
			} else {
				x = v[off+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[off+k] = x
			if x >= n && y >= m {
				return trace
			}
		}
	}
	return trace
}

const contextLines = 3

// Unified returns a unified diff from before to after, or the empty
// string if they are equal.
func Unified(oldName, newName, before, after string) string {
	es := ComputeEdits(before, after)
	if !slices.ContainsFunc(es, func(e Edit) bool { return e.Kind != Equal }) {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", oldName, newName)
	done := 0
	for i := 0; i < len(es); {
		if es[i].Kind == Equal {
			i++
			continue
		}
		start := i - contextLines
		if start < done {
			start = done
		}
		end := i
		for {
			for end < len(es) && es[end].Kind != Equal {
				end++
			}
			j := end
			for j < len(es) && es[j].Kind == Equal {
				j++
			}
			if j < len(es) && j-end <= 2*contextLines {
				end = j
				continue
			}
			end = min(end+contextLines, len(es))
			break
		}
		hunk(&sb, es[start:end])
		done, i = end, end
	}
	return sb.String()
}

func hunk(sb *strings.Builder, es []Edit) {
	var n1, n2 int
	for _, e := range es {
		if e.Kind != Insert {
			n1++
		}
		if e.Kind != Delete {
			n2++
		}
	}
	l1, l2 := es[0].I+1, es[0].J+1
	if n1 == 0 {
		l1--
	}
	if n2 == 0 {
		l2--
	}
	fmt.Fprintf(sb, "@@ -%s +%s @@\n", span(l1, n1), span(l2, n2))
	for _, e := range es {
		sb.WriteByte(e.Kind.prefix())
		sb.WriteString(e.Line)
		if !strings.HasSuffix(e.Line, "\n") {
			sb.WriteString("\n\\ No newline at end of file\n")
		}
	}
}

func span(start, n int) string {
	if n == 1 {
		return fmt.Sprint(start)
	}
	return fmt.Sprintf("%d,%d", start, n)
}

func splitLines(text string) []string {
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
