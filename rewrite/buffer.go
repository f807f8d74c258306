package rewrite

import (
	"fmt"
	"sort"
	"strings"

	"honnef.co/go/cconv/c/ast"
)

type editKind uint8

const (
	insertBefore editKind = iota
	insertAfter
	replace
)

type edit struct {
	kind       editKind
	start, end int
	text       string
	seq        int
}

// Buffer collects edits to the text of one file. Positions are 1-based
// lines and byte columns, as produced by front ends. Edits refer to the
// original text and are applied together by String.
type Buffer struct {
	file  string
	src   string
	lines []int
	edits []edit
}

func NewBuffer(file, src string) *Buffer {
	lines := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &Buffer{file: file, src: src, lines: lines}
}

// Offset converts a position in the buffer's file to a byte offset.
func (b *Buffer) Offset(p ast.Pos) (int, error) {
	if p.File != b.file {
		return 0, fmt.Errorf("position %s is not in %s", p, b.file)
	}
	if p.Line < 1 || p.Line > len(b.lines) {
		return 0, fmt.Errorf("position %s: line out of range", p)
	}
	start := b.lines[p.Line-1]
	end := len(b.src)
	if p.Line < len(b.lines) {
		end = b.lines[p.Line]
	}
	off := start + p.Column - 1
	if p.Column < 1 || off > end {
		return 0, fmt.Errorf("position %s: column out of range", p)
	}
	return off, nil
}

func (b *Buffer) add(e edit) error {
	e.seq = len(b.edits)
	for _, o := range b.edits {
		if e.kind == replace && o.kind == replace {
			if e.start == o.start && e.end == o.end && e.text == o.text {
				return nil
			}
			if e.start < o.end && o.start < e.end {
				return fmt.Errorf("%s: overlapping replacements at offsets %d and %d", b.file, o.start, e.start)
			}
		}
		r, p := e, o
		if p.kind == replace {
			r, p = p, r
		}
		if r.kind == replace && p.kind != replace && r.start < p.start && p.start < r.end {
			return fmt.Errorf("%s: insertion at offset %d inside replaced text", b.file, p.start)
		}
	}
	b.edits = append(b.edits, e)
	return nil
}

// ReplaceText replaces the text in r.
func (b *Buffer) ReplaceText(r ast.Range, text string) error {
	start, err := b.Offset(r.Start)
	if err != nil {
		return err
	}
	end, err := b.Offset(r.End)
	if err != nil {
		return err
	}
	if end < start {
		return fmt.Errorf("invalid range %s-%s", r.Start, r.End)
	}
	return b.add(edit{kind: replace, start: start, end: end, text: text})
}

// InsertBefore inserts text at p, before any text inserted there earlier.
func (b *Buffer) InsertBefore(p ast.Pos, text string) error {
	off, err := b.Offset(p)
	if err != nil {
		return err
	}
	return b.add(edit{kind: insertBefore, start: off, end: off, text: text})
}

// InsertAfter inserts text at p, after any text inserted there earlier.
func (b *Buffer) InsertAfter(p ast.Pos, text string) error {
	off, err := b.Offset(p)
	if err != nil {
		return err
	}
	return b.add(edit{kind: insertAfter, start: off, end: off, text: text})
}

// Changed reports whether any edit has been made.
func (b *Buffer) Changed() bool { return len(b.edits) > 0 }

// String returns the edited text.
func (b *Buffer) String() string {
	es := make([]edit, len(b.edits))
	copy(es, b.edits)
	sort.Slice(es, func(i, j int) bool {
		x, y := es[i], es[j]
		if x.start != y.start {
			return x.start < y.start
		}
		if x.kind != y.kind {
			return x.kind < y.kind
		}
		if x.kind == insertBefore {
			return x.seq > y.seq
		}
		return x.seq < y.seq
	})

	var sb strings.Builder
	last := 0
	for _, e := range es {
		sb.WriteString(b.src[last:e.start])
		sb.WriteString(e.text)
		last = e.end
	}
	sb.WriteString(b.src[last:])
	return sb.String()
}
