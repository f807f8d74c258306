package program

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/types"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/cvars"
)

// symbolKey identifies a symbol across units. Symbols with internal
// linkage are qualified by their file.
type symbolKey struct {
	file string
	name string
}

type symbol struct {
	key     symbolKey
	decls   []ast.Pos
	funcPos ast.Pos
	varPos  ast.Pos
	isFunc  bool
	isVar   bool
	defined bool
	def     ast.Pos
	checked bool
}

// LinkError reports a symbol that is declared both as a function and as a
// variable.
type LinkError struct {
	Name     string
	FuncPos  ast.Pos
	OtherPos ast.Pos
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s: %s is declared as a function at %s and as a variable", e.OtherPos, e.Name, e.FuncPos)
}

// AddSymbol records a declaration of a function or global variable for
// linking. The declaration's variable must already be registered.
func (info *Info) AddSymbol(d Decl, isFunc, defined bool) {
	key := symbolKey{name: d.Name}
	if d.Static {
		key.file = d.File
	}
	sym, ok := info.symbols[key]
	if !ok {
		sym = &symbol{key: key}
		info.symbols[key] = sym
		info.symList = append(info.symList, sym)
	}
	if !slices.Contains(sym.decls, d.Pos) {
		sym.decls = append(sym.decls, d.Pos)
	}
	if isFunc {
		if !sym.isFunc {
			sym.funcPos = d.Pos
		}
		sym.isFunc = true
	} else {
		if !sym.isVar {
			sym.varPos = d.Pos
		}
		sym.isVar = true
	}
	if defined && !sym.defined {
		sym.defined = true
		sym.def = d.Pos
	}
	if d.Itype != nil || (d.Declared != nil && types.IsChecked(d.Declared)) {
		sym.checked = true
	}
}

// LookupFunc returns the canonical function variable of the function name
// as seen from file. It prefers a static function of that file.
func (info *Info) LookupFunc(name, file string) (*cvars.FunctionVariable, bool) {
	for _, key := range []symbolKey{{file, name}, {"", name}} {
		sym, ok := info.symbols[key]
		if !ok || !sym.isFunc {
			continue
		}
		fv, ok := info.Variable(sym.rep()).(*cvars.FunctionVariable)
		return fv, ok
	}
	return nil, false
}

func (sym *symbol) rep() ast.Pos {
	if sym.defined {
		return sym.def
	}
	return sym.decls[0]
}

// Link unifies the variables of every function and global variable
// declared more than once, possibly in different units, and constrains
// symbols that are never defined. It must be called once, after the last
// unit has been exited and before solving.
func (info *Info) Link() error {
	if info.unit != nil {
		panic("Link called while a unit is active")
	}
	if info.linked {
		return nil
	}
	for _, sym := range info.symList {
		if sym.isFunc && sym.isVar {
			return &LinkError{Name: sym.key.name, FuncPos: sym.funcPos, OtherPos: sym.varPos}
		}
	}
	info.linked = true

	g := info.Graph
	for _, sym := range info.symList {
		// Globals without pointers have no variables to link.
		decls := slices.DeleteFunc(slices.Clone(sym.decls), func(pos ast.Pos) bool { return !info.HasVariable(pos) })
		if len(decls) == 0 {
			continue
		}
		name := sym.key.name
		rep := sym.rep()
		if !info.HasVariable(rep) {
			rep = decls[0]
		}
		rv := info.Variable(rep)

		mismatch := false
		for _, pos := range decls {
			if pos == rep {
				continue
			}
			v := info.Variable(pos)
			if sym.isFunc && paramMismatch(rv.(*cvars.FunctionVariable), v.(*cvars.FunctionVariable)) {
				mismatch = true
			}
			cvars.Eq(g, rv, v, fmt.Sprintf("Linked declarations of %s.", name), pos)
		}

		switch {
		case mismatch:
			reason := fmt.Sprintf("Function %s declared with mismatched parameter counts.", name)
			info.Logger.Warn("mismatched declarations", zap.String("name", name), zap.Stringer("pos", rep))
			for _, pos := range decls {
				cvars.ConstrainAllTo(g, info.Variable(pos), constraints.Wild, reason, pos)
			}
		case !sym.defined && !sym.checked && !info.Options.IsExternAllowed(name):
			var reason string
			if sym.isFunc {
				reason = fmt.Sprintf("Unchecked pointer in parameter or return of external function %s.", name)
			} else {
				reason = fmt.Sprintf("External global variable %s has no definition.", name)
			}
			cvars.ConstrainAllTo(g, rv, constraints.Wild, reason, rep)
		}
	}
	info.Logger.Debug("linked symbols", zap.Int("symbols", len(info.symList)))
	return nil
}

func paramMismatch(x, y *cvars.FunctionVariable) bool {
	if !x.Prototyped && len(x.Params) == 0 || !y.Prototyped && len(y.Params) == 0 {
		return false
	}
	return len(x.Params) != len(y.Params)
}
