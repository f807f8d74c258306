package convcmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/program"
)

type severity uint8

const (
	severityWarning severity = iota
	severityError
)

func (s severity) String() string {
	switch s {
	case severityWarning:
		return "warning"
	case severityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", s)
	}
}

type related struct {
	Position ast.Pos
	Message  string
}

// A diagnostic reports a declaration that stays unchecked, or a conflict
// between the solution and an explicit annotation.
type diagnostic struct {
	Position ast.Pos
	Category string
	Severity severity
	Message  string
	Related  []related
}

func (d diagnostic) String() string {
	return fmt.Sprintf("%s (%s)", d.Message, d.Category)
}

// diagnostics derives the diagnostics of a solved program. Every
// declaration that keeps an unchecked level yields one warning, pointing
// at the root cause where it is known.
func diagnostics(info *program.Info) []diagnostic {
	var out []diagnostic
	for _, e := range info.Entries() {
		for i, l := range e.Levels {
			if l.Q != constraints.Wild {
				continue
			}
			d := diagnostic{
				Position: e.Decl.Pos,
				Category: "unchecked",
				Severity: severityWarning,
				Message:  fmt.Sprintf("%s %s stays unchecked: %s", e.Decl.Kind, e.Decl.Name, l.Reason),
			}
			if i > 0 {
				d.Message = fmt.Sprintf("level %d of %s %s stays unchecked: %s", i, e.Decl.Kind, e.Decl.Name, l.Reason)
			}
			if l.Pos.IsValid() && l.Pos != e.Decl.Pos {
				d.Related = append(d.Related, related{Position: l.Pos, Message: "root cause"})
			}
			out = append(out, d)
			break
		}
	}
	for _, c := range info.Assignment().Conflicts() {
		out = append(out, diagnostic{
			Position: c.Edge.Pos,
			Category: "conflict",
			Severity: severityError,
			Message:  fmt.Sprintf("declared %s but needs %s: %s", c.Edge.LHS, c.Got, c.Edge.Reason),
		})
	}
	return out
}

func shortPath(path string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(cwd, path); err == nil && len(rel) < len(path) {
		return rel
	}
	return path
}

func relativePositionString(pos ast.Pos) string {
	if !pos.IsValid() {
		return "-"
	}
	pos.File = shortPath(pos.File)
	return pos.String()
}

type statter interface {
	Stats(total, errors, warnings int)
}

type formatter interface {
	Format(d diagnostic)
}

type textFormatter struct {
	W io.Writer
}

func (o textFormatter) Format(d diagnostic) {
	fmt.Fprintf(o.W, "%s: %s\n", relativePositionString(d.Position), d.String())
	for _, r := range d.Related {
		fmt.Fprintf(o.W, "\t%s: %s\n", relativePositionString(r.Position), r.Message)
	}
}

type nullFormatter struct{}

func (nullFormatter) Format(diagnostic) {}

type jsonFormatter struct {
	W io.Writer
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func location(p ast.Pos) jsonLocation {
	return jsonLocation{File: p.File, Line: p.Line, Column: p.Column}
}

func (o jsonFormatter) Format(d diagnostic) {
	type jsonRelated struct {
		Location jsonLocation `json:"location"`
		Message  string       `json:"message"`
	}
	jd := struct {
		Code     string        `json:"code"`
		Severity string        `json:"severity"`
		Location jsonLocation  `json:"location"`
		Message  string        `json:"message"`
		Related  []jsonRelated `json:"related,omitempty"`
	}{
		Code:     d.Category,
		Severity: d.Severity.String(),
		Location: location(d.Position),
		Message:  d.Message,
	}
	for _, r := range d.Related {
		jd.Related = append(jd.Related, jsonRelated{Location: location(r.Position), Message: r.Message})
	}
	_ = json.NewEncoder(o.W).Encode(jd)
}

// isTerminal reports whether w is a terminal, and thus whether output to
// it should be coloured.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type stylishFormatter struct {
	W io.Writer

	prevFile string
	tw       *tabwriter.Writer

	errorStyle   *color.Color
	warningStyle *color.Color
	okStyle      *color.Color
}

func newStylishFormatter(w io.Writer) *stylishFormatter {
	o := &stylishFormatter{
		W:            w,
		errorStyle:   color.New(color.FgRed, color.Bold),
		warningStyle: color.New(color.FgYellow),
		okStyle:      color.New(color.FgGreen),
	}
	if !isTerminal(w) {
		for _, c := range []*color.Color{o.errorStyle, o.warningStyle, o.okStyle} {
			c.DisableColor()
		}
	}
	return o
}

func (o *stylishFormatter) Format(d diagnostic) {
	pos := d.Position
	file := pos.File
	if file == "" {
		file = "-"
	}
	if file != o.prevFile {
		if o.prevFile != "" {
			o.tw.Flush()
			fmt.Fprintln(o.W)
		}
		fmt.Fprintln(o.W, shortPath(file))
		o.prevFile = file
		o.tw = tabwriter.NewWriter(o.W, 0, 4, 2, ' ', 0)
	}

	style := o.warningStyle
	if d.Severity == severityError {
		style = o.errorStyle
	}
	fmt.Fprintf(o.tw, "  (%d, %d)\t%s\t%s\n", pos.Line, pos.Column, style.Sprint(d.Category), d.Message)
	for _, r := range d.Related {
		fmt.Fprintf(o.tw, "    (%d, %d)\t\t  %s\n", r.Position.Line, r.Position.Column, r.Message)
	}
}

func (o *stylishFormatter) Stats(total, errors, warnings int) {
	if o.tw != nil {
		o.tw.Flush()
		fmt.Fprintln(o.W)
	}

	icon := o.okStyle.Sprint("✔")
	if warnings != 0 {
		icon = o.warningStyle.Sprint("!")
	}
	if errors != 0 {
		icon = o.errorStyle.Sprint("✘")
	}
	fmt.Fprintf(o.W, " %s %d problems (%d errors, %d warnings)\n", icon, total, errors, warnings)
}

func newFormatter(name string, w io.Writer) (formatter, error) {
	switch name {
	case "text":
		return textFormatter{W: w}, nil
	case "stylish":
		return newStylishFormatter(w), nil
	case "json":
		return jsonFormatter{W: w}, nil
	case "null":
		return nullFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", name)
	}
}

// printStats writes the counts of a solved program as a table.
func printStats(w io.Writer, st program.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tptr\tntarr\tarr\twild\t")
	row := func(name string, c program.Counts) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t\n", name, c.Ptr, c.NTArr, c.Arr, c.Wild)
	}
	row("variables", st.Variables)
	row("parameters", st.Parameters)
	row("returns", st.Returns)
	row("fields", st.Fields)
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "bounds: %d declared, %d inferred, %d invalid, %d missing\nconflicts: %d\n",
		st.BoundsDeclared, st.BoundsInferred, st.BoundsInvalid, st.BoundsMissing, st.Conflicts)
	return err
}
