package program

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/cvars"
)

// idNamespace is the namespace of declaration IDs in JSON summaries. IDs
// are derived from the declaration's position and name, so they are
// stable across runs.
var idNamespace = uuid.MustParse("6f1c1d0e-8a4e-4c3b-9d55-2b8f3f0c7a11")

// LevelInfo is the solved state of one pointer level.
type LevelInfo struct {
	Q constraints.Qualifier
	// Reason and Pos explain a qualifier other than Ptr.
	Reason string
	Pos    ast.Pos
}

// Entry is the solved state of one declaration.
type Entry struct {
	Decl   *Decl
	Var    cvars.Var
	Type   string
	Levels []LevelInfo
	Bounds string
	// Changed reports whether the rewriter would change the declaration.
	Changed bool
}

func (info *Info) mustSolved() *constraints.Assignment {
	if info.assign == nil {
		panic("querying results before Solve")
	}
	return info.assign
}

// pointerOf returns the variable whose levels describe d: the variable
// itself, or a function's result.
func pointerOf(v cvars.Var) *cvars.PointerVariable {
	switch v := v.(type) {
	case *cvars.PointerVariable:
		return v
	case *cvars.FunctionVariable:
		return v.Return
	default:
		panic(fmt.Sprintf("unexpected variable %T", v))
	}
}

func (info *Info) entry(d *Decl) Entry {
	a := info.mustSolved()
	v := info.Variable(d.Pos)
	e := Entry{
		Decl:    d,
		Var:     v,
		Type:    v.MkString(a, cvars.MkOpts{Name: d.Name}),
		Changed: v.AnyChanges(a),
	}
	pv := pointerOf(v)
	for _, at := range pv.Atoms() {
		li := LevelInfo{Q: a.Of(at)}
		if va, ok := at.(*constraints.VarAtom); ok {
			if c, ok := a.Why(va); ok {
				li.Reason, li.Pos = c.Reason, c.Pos
			}
		}
		e.Levels = append(e.Levels, li)
	}
	if k := pv.BoundsKey(); k != 0 {
		if b, _, ok := info.Bounds.Bounds(k); ok {
			e.Bounds = b.MkString(info.Bounds)
		}
	}
	return e
}

// Lookup returns the solved state of the declaration at pos.
func (info *Info) Lookup(pos ast.Pos) (Entry, bool) {
	d, ok := info.decls[pos]
	if !ok {
		return Entry{}, false
	}
	return info.entry(d), true
}

// Entries returns the solved state of every declaration, ordered by
// position.
func (info *Info) Entries() []Entry {
	var out []Entry
	for _, d := range info.Decls() {
		out = append(out, info.entry(d))
	}
	return out
}

// Print writes a human-readable dump of every declaration, its solved
// type and the reasons for every level that is not Ptr, followed by any
// conflicts.
func (info *Info) Print(w io.Writer) error {
	a := info.mustSolved()
	for _, e := range info.Entries() {
		line := fmt.Sprintf("%s\t%s\t%s", e.Decl.Pos, e.Decl.Kind, e.Type)
		if e.Bounds != "" {
			line += " : " + e.Bounds
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		for i, l := range e.Levels {
			if l.Q == constraints.Ptr {
				continue
			}
			s := fmt.Sprintf("\tlevel %d: %s", i, l.Q)
			if l.Reason != "" {
				s += ": " + l.Reason
			}
			if l.Pos.IsValid() {
				s += " (" + l.Pos.String() + ")"
			}
			if _, err := fmt.Fprintln(w, s); err != nil {
				return err
			}
		}
	}
	for _, c := range a.Conflicts() {
		if _, err := fmt.Fprintf(w, "conflict: %s\n", c); err != nil {
			return err
		}
	}
	return nil
}

type jsonLevel struct {
	Qualifier string `json:"qualifier"`
	Reason    string `json:"reason,omitempty"`
	Pos       string `json:"pos,omitempty"`
}

type jsonEntry struct {
	ID      string      `json:"id"`
	Pos     string      `json:"pos"`
	Name    string      `json:"name"`
	Kind    string      `json:"kind"`
	Type    string      `json:"type"`
	Changed bool        `json:"changed"`
	Bounds  string      `json:"bounds,omitempty"`
	Levels  []jsonLevel `json:"levels"`
}

type jsonSummary struct {
	Declarations []jsonEntry `json:"declarations"`
	Conflicts    []string    `json:"conflicts"`
	Stats        Stats       `json:"stats"`
}

// DeclID returns the stable ID of a declaration.
func DeclID(d *Decl) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(d.Pos.String()+"\x00"+d.Name))
}

// WriteJSON writes a machine-readable summary of the solution.
func (info *Info) WriteJSON(w io.Writer) error {
	a := info.mustSolved()
	out := jsonSummary{
		Declarations: []jsonEntry{},
		Conflicts:    []string{},
		Stats:        info.Stats(),
	}
	for _, e := range info.Entries() {
		je := jsonEntry{
			ID:      DeclID(e.Decl).String(),
			Pos:     e.Decl.Pos.String(),
			Name:    e.Decl.Name,
			Kind:    e.Decl.Kind.String(),
			Type:    e.Type,
			Changed: e.Changed,
			Bounds:  e.Bounds,
			Levels:  []jsonLevel{},
		}
		for _, l := range e.Levels {
			jl := jsonLevel{Qualifier: l.Q.String(), Reason: l.Reason}
			if l.Pos.IsValid() {
				jl.Pos = l.Pos.String()
			}
			je.Levels = append(je.Levels, jl)
		}
		out.Declarations = append(out.Declarations, je)
	}
	for _, c := range a.Conflicts() {
		out.Conflicts = append(out.Conflicts, c.String())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(out)
}

// Counts holds the number of declarations per outermost qualifier.
type Counts struct {
	Ptr   int `json:"ptr"`
	NTArr int `json:"ntarr"`
	Arr   int `json:"arr"`
	Wild  int `json:"wild"`
}

func (c *Counts) add(q constraints.Qualifier) {
	switch q {
	case constraints.Ptr:
		c.Ptr++
	case constraints.NTArr:
		c.NTArr++
	case constraints.Arr:
		c.Arr++
	case constraints.Wild:
		c.Wild++
	}
}

func (c Counts) Total() int { return c.Ptr + c.NTArr + c.Arr + c.Wild }

// Stats aggregates the solution per category of declaration.
type Stats struct {
	Variables  Counts `json:"variables"`
	Parameters Counts `json:"parameters"`
	Returns    Counts `json:"returns"`
	Fields     Counts `json:"fields"`
	Conflicts  int    `json:"conflicts"`

	BoundsDeclared int `json:"bounds_declared"`
	BoundsInferred int `json:"bounds_inferred"`
	BoundsInvalid  int `json:"bounds_invalid"`
	BoundsMissing  int `json:"bounds_missing"`
}

// Stats counts pointer declarations by their outermost qualifier. If files
// is not empty, only declarations in those files are counted; bounds
// statistics always cover the whole program.
func (info *Info) Stats(files ...string) Stats {
	a := info.mustSolved()
	var st Stats
	for _, d := range info.Decls() {
		if len(files) > 0 && !slices.Contains(files, d.File) {
			continue
		}
		pv := pointerOf(info.Variable(d.Pos))
		at := pv.Outer()
		if at == nil {
			continue
		}
		q := a.Of(at)
		switch d.Kind {
		case KindVar:
			st.Variables.add(q)
		case KindParam:
			st.Parameters.add(q)
		case KindFunc:
			st.Returns.add(q)
		case KindField:
			st.Fields.add(q)
		}
	}
	st.Conflicts = len(a.Conflicts())
	bs := info.Bounds.Stats()
	st.BoundsDeclared = bs.Declared
	st.BoundsInferred = bs.Allocator + bs.Loop + bs.Dataflow + bs.NameMatch
	st.BoundsInvalid = bs.Invalid
	st.BoundsMissing = bs.Missing
	return st
}
