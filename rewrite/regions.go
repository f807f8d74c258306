package rewrite

import (
	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/cvars"
	"honnef.co/go/cconv/program"
)

// declaredChecked reports whether d is written with a checked or interop
// type before any rewriting.
func declaredChecked(d *program.Decl) bool {
	return d.Itype != nil || (d.Declared != nil && types.IsChecked(d.Declared))
}

// checkedField reports whether the field d has a checked type after
// rewriting. Interop types leave the field unchecked outside checked
// regions.
func (pl *planner) checkedField(d *program.Decl) bool {
	if d.Declared != nil && types.IsChecked(d.Declared) {
		return true
	}
	e, ok := pl.edits[d.Pos]
	if !ok || e.Itype {
		return false
	}
	pv, ok := pl.info.Variable(d.Pos).(*cvars.PointerVariable)
	return ok && types.IsChecked(pv.Type(pl.a))
}

// inits returns an empty initializer for every local struct variable whose
// struct has a checked field; Checked C rejects such variables without
// one.
func (pl *planner) inits() []InitEdit {
	records := map[string]bool{}
	for _, d := range pl.info.Decls() {
		if d.Kind == program.KindField && d.Record != "" && !records[d.Record] && pl.checkedField(d) {
			records[d.Record] = true
		}
	}
	var out []InitEdit
	for _, si := range pl.info.StructInits() {
		if records[si.Record] {
			out = append(out, InitEdit{Pos: si.Pos, Name: si.Name, At: si.End})
		}
	}
	return out
}

// regions returns the outermost compound statements that can be checked.
func (pl *planner) regions() []RegionEdit {
	rs := pl.info.Regions()
	checked := make(map[ast.Pos]bool, len(rs))
	for _, r := range rs {
		checked[r.Lbrace] = pl.checkedRegion(r)
	}
	var out []RegionEdit
	for _, r := range rs {
		if checked[r.Lbrace] && !checked[r.Parent] {
			out = append(out, RegionEdit{Lbrace: r.Lbrace})
		}
	}
	return out
}

func (pl *planner) checkedRegion(r program.Region) bool {
	if r.Unsafe != "" {
		return false
	}
	for _, pos := range r.Refs {
		if !pl.checkedUse(pos) {
			return false
		}
	}
	return true
}

// checkedUse reports whether the declaration at pos may be used in a
// checked region: none of its levels is Wild and its pointers end up
// written with checked types.
func (pl *planner) checkedUse(pos ast.Pos) bool {
	vs := pl.info.Vars(pos)
	if vs == nil {
		return true
	}
	for _, v := range vs.Slice() {
		if cvars.AnyWild(v, pl.a) {
			return false
		}
	}
	d, ok := pl.info.Decl(pos)
	if !ok || declaredChecked(d) {
		return true
	}
	if _, ok := pl.edits[pos]; ok {
		return true
	}
	for _, v := range vs.Slice() {
		pv, ok := v.(*cvars.PointerVariable)
		if fv, isFunc := v.(*cvars.FunctionVariable); isFunc {
			// Parameters are declarations of their own.
			pv, ok = fv.Return, true
		}
		if ok && pv.AnyChanges(pl.a) {
			return false
		}
	}
	return true
}
