// Package rewrite turns a solved program into source edits: new
// declaration text for every declaration whose pointers changed, explicit
// casts where a checked argument is passed to an unchecked parameter, type
// arguments of generic calls, initializers of struct variables with
// checked fields and, optionally, checked regions.
package rewrite

import (
	"slices"
	"strings"

	"github.com/pkg/errors"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/cvars"
	"honnef.co/go/cconv/program"
)

type Options struct {
	// PreferItypes rewrites the parameters and results of externally
	// visible functions as interop types, leaving their unchecked types
	// intact for callers that are not converted.
	PreferItypes bool
	// CheckedRegions marks the outermost compound statements that use no
	// unchecked pointers as _Checked.
	CheckedRegions bool
}

// DeclEdit replaces the text of one declaration. Suffix, if set, is
// inserted at After; it carries the annotations of function results.
type DeclEdit struct {
	Pos    ast.Pos
	Name   string
	Range  ast.Range
	Text   string
	After  ast.Pos
	Suffix string
	Itype  bool
}

// CastEdit wraps a call argument in an explicit cast to Type.
type CastEdit struct {
	Pos  ast.Pos
	Span ast.Range
	Type string
}

// TypeArgEdit inserts the type arguments of a generic call after the
// name of the callee.
type TypeArgEdit struct {
	Call ast.Pos
	At   ast.Pos
	Args []string
}

// InitEdit adds an empty initializer to a struct variable.
type InitEdit struct {
	Pos  ast.Pos
	Name string
	At   ast.Pos
}

// RegionEdit marks the compound statement opened at Lbrace as checked.
type RegionEdit struct {
	Lbrace ast.Pos
}

// Plan is the frozen set of edits for a solved program.
type Plan struct {
	Decls    []DeclEdit
	Casts    []CastEdit
	TypeArgs []TypeArgEdit
	Inits    []InitEdit
	Regions  []RegionEdit
}

type planner struct {
	info *program.Info
	a    *constraints.Assignment
	opts Options
	// edits of declarations whose text is rewritten
	edits map[ast.Pos]DeclEdit
}

// NewPlan computes the edits for a solved program.
func NewPlan(info *program.Info, opts Options) *Plan {
	a := info.Assignment()
	if a == nil {
		panic("rewrite plan requested before solving")
	}
	pl := &planner{info: info, a: a, opts: opts, edits: map[ast.Pos]DeclEdit{}}
	p := &Plan{}
	for _, d := range info.Decls() {
		if e, ok := pl.decl(d); ok {
			p.Decls = append(p.Decls, e)
			pl.edits[d.Pos] = e
		}
	}
	for _, cs := range info.Casts() {
		if e, ok := pl.cast(cs); ok {
			p.Casts = append(p.Casts, e)
		}
	}
	for _, inst := range info.Instantiations() {
		if !inst.Callee.IsValid() {
			continue
		}
		e := TypeArgEdit{Call: inst.Call, At: inst.Callee.End}
		for _, t := range inst.Args {
			e.Args = append(e.Args, t.String())
		}
		p.TypeArgs = append(p.TypeArgs, e)
	}
	p.Inits = pl.inits()
	if opts.CheckedRegions {
		p.Regions = pl.regions()
	}
	return p
}

func (pl *planner) bounds(pv *cvars.PointerVariable) string {
	at := pv.Outer()
	if at == nil || pl.a.Of(at) != constraints.Arr {
		return ""
	}
	k := pv.BoundsKey()
	if k == 0 {
		return ""
	}
	b, _, ok := pl.info.Bounds.Bounds(k)
	if !ok {
		return ""
	}
	return b.MkString(pl.info.Bounds)
}

func (pl *planner) itype(d *program.Decl) bool {
	if d.Itype != nil {
		return true
	}
	return pl.opts.PreferItypes && !d.Static && (d.Kind == program.KindParam || d.Kind == program.KindFunc)
}

func storagePrefix(d *program.Decl) string {
	if s := d.Storage.String(); s != "" {
		return s + " "
	}
	return ""
}

func (pl *planner) decl(d *program.Decl) (DeclEdit, bool) {
	if d.SysHeader || d.Macro || !d.Range.IsValid() {
		return DeclEdit{}, false
	}
	var pv *cvars.PointerVariable
	switch v := pl.info.Variable(d.Pos).(type) {
	case *cvars.PointerVariable:
		pv = v
	case *cvars.FunctionVariable:
		// Function pointer results would need the parameter list spliced
		// into the declarator.
		if d.Itype != nil || v.Return.FV() != nil || !d.ParamsEnd.IsValid() {
			return DeclEdit{}, false
		}
		pv = v.Return
	}
	if pv.Depth() == 0 || !pv.AnyChanges(pl.a) {
		return DeclEdit{}, false
	}

	e := DeclEdit{Pos: d.Pos, Name: d.Name, Range: d.Range, Itype: pl.itype(d)}
	var ann []string
	if e.Itype {
		ann = append(ann, "itype("+pv.MkString(pl.a, cvars.MkOpts{ForItype: true})+")")
	}
	if b := pl.bounds(pv); b != "" {
		ann = append(ann, b)
	}
	var suffix string
	if len(ann) > 0 {
		suffix = " : " + strings.Join(ann, " ")
	}

	text := types.Declarator(types.Uncheck(d.Declared), d.Name)
	if !e.Itype {
		text = pv.MkString(pl.a, cvars.MkOpts{Name: d.Name})
	}
	text = storagePrefix(d) + text
	if d.Kind == program.KindFunc {
		e.After, e.Suffix = d.ParamsEnd, suffix
		if e.Itype {
			// The result type itself stays as declared.
			text = ""
		}
	} else {
		text += suffix
	}
	e.Text = text
	return e, true
}

// cast reports whether an argument that solved to a checked pointer is
// passed to a parameter that remained unchecked.
func (pl *planner) cast(cs program.CastSite) (CastEdit, bool) {
	if !cs.Span.IsValid() {
		return CastEdit{}, false
	}
	pa, aa := cs.Param.Outer(), cs.Arg.Outer()
	if pa == nil || aa == nil {
		return CastEdit{}, false
	}
	if pl.a.Of(pa) != constraints.Wild || pl.a.Of(aa) == constraints.Wild {
		return CastEdit{}, false
	}
	return CastEdit{
		Pos:  cs.Pos,
		Span: cs.Span,
		Type: cs.Param.MkString(pl.a, cvars.MkOpts{ForItype: true}),
	}, true
}

// Files returns the files touched by the plan, sorted.
func (p *Plan) Files() []string {
	var out []string
	add := func(f string) {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	for _, e := range p.Decls {
		add(e.Range.Start.File)
	}
	for _, e := range p.Casts {
		add(e.Span.Start.File)
	}
	for _, e := range p.TypeArgs {
		add(e.At.File)
	}
	for _, e := range p.Inits {
		add(e.At.File)
	}
	for _, e := range p.Regions {
		add(e.Lbrace.File)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of edits.
func (p *Plan) Len() int {
	return len(p.Decls) + len(p.Casts) + len(p.TypeArgs) + len(p.Inits) + len(p.Regions)
}

// Apply returns src, the text of file, with the plan's edits applied.
func (p *Plan) Apply(file, src string) (string, error) {
	buf := NewBuffer(file, src)
	for _, e := range p.Decls {
		if e.Range.Start.File != file {
			continue
		}
		if e.Text != "" {
			if err := buf.ReplaceText(e.Range, e.Text); err != nil {
				return "", errors.Wrapf(err, "rewriting %s", e.Name)
			}
		}
		if e.Suffix != "" {
			if err := buf.InsertAfter(e.After, e.Suffix); err != nil {
				return "", errors.Wrapf(err, "annotating %s", e.Name)
			}
		}
	}
	for _, e := range p.Casts {
		if e.Span.Start.File != file {
			continue
		}
		if err := buf.InsertBefore(e.Span.Start, "(("+e.Type+")"); err != nil {
			return "", errors.Wrapf(err, "inserting cast at %s", e.Pos)
		}
		if err := buf.InsertAfter(e.Span.End, ")"); err != nil {
			return "", errors.Wrapf(err, "inserting cast at %s", e.Pos)
		}
	}
	for _, e := range p.TypeArgs {
		if e.At.File != file {
			continue
		}
		if err := buf.InsertAfter(e.At, "<"+strings.Join(e.Args, ", ")+">"); err != nil {
			return "", errors.Wrapf(err, "instantiating call at %s", e.Call)
		}
	}
	for _, e := range p.Inits {
		if e.At.File != file {
			continue
		}
		if err := buf.InsertAfter(e.At, " = {}"); err != nil {
			return "", errors.Wrapf(err, "initializing %s", e.Name)
		}
	}
	for _, e := range p.Regions {
		if e.Lbrace.File != file {
			continue
		}
		if err := buf.InsertBefore(e.Lbrace, "_Checked "); err != nil {
			return "", errors.Wrapf(err, "marking checked region at %s", e.Lbrace)
		}
	}
	return buf.String(), nil
}

// ApplyAll rewrites every touched file whose source text the units
// carried. Files without source are skipped.
func (p *Plan) ApplyAll(info *program.Info) (map[string]string, error) {
	out := map[string]string{}
	for _, f := range p.Files() {
		src, ok := info.Source(f)
		if !ok {
			continue
		}
		s, err := p.Apply(f, src)
		if err != nil {
			return nil, err
		}
		out[f] = s
	}
	return out, nil
}
