// Package debug contains helpers for debugging the analysis.
package debug

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/cvars"
	"honnef.co/go/cconv/program"
)

// WriteDot writes the constraint graph of a solved program, in Graphviz
// format, to the file at path.
func WriteDot(path string, info *program.Info) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating graph dump")
	}
	if err := info.Graph.WriteDot(f, info.Assignment()); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return f.Close()
}

// Explain describes how every unsafe level of the declaration at pos
// got its qualifier: the root reason and the atoms the qualifier
// propagated through.
func Explain(info *program.Info, pos ast.Pos) (string, error) {
	e, ok := info.Lookup(pos)
	if !ok {
		return "", fmt.Errorf("no declaration at %s", pos)
	}
	a := info.Assignment()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", e.Decl.Pos, e.Type)
	pv, ok := e.Var.(*cvars.PointerVariable)
	if fv, isFunc := e.Var.(*cvars.FunctionVariable); isFunc {
		pv, ok = fv.Return, true
	}
	if !ok {
		return sb.String(), nil
	}
	for i, at := range pv.Atoms() {
		va, ok := at.(*constraints.VarAtom)
		if !ok {
			fmt.Fprintf(&sb, "  level %d: %s (declared)\n", i, at)
			continue
		}
		c, ok := a.Why(va)
		if !ok {
			fmt.Fprintf(&sb, "  level %d: %s\n", i, constraints.Ptr)
			continue
		}
		fmt.Fprintf(&sb, "  level %d: %s: %s", i, a.Of(va), c.Reason)
		if c.Pos.IsValid() {
			fmt.Fprintf(&sb, " (%s)", c.Pos)
		}
		sb.WriteString("\n")
		for _, step := range c.Chain {
			if sv, ok := step.(*constraints.VarAtom); ok && sv.Name() != "" {
				fmt.Fprintf(&sb, "    %s %s\n", sv, sv.Name())
			} else {
				fmt.Fprintf(&sb, "    %s\n", step)
			}
		}
	}
	return sb.String(), nil
}
