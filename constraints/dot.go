package constraints

import (
	"fmt"
	"io"
	"strings"

	"honnef.co/go/cconv/analysis/dfa"
)

// LatticeDot returns the Hasse diagram of the qualifier lattice in
// Graphviz format.
func LatticeDot() string {
	return dfa.Dot(qualifierJoin, Qualifiers[1:len(Qualifiers)-1], Ptr, Wild)
}

// WriteDot writes the constraint graph in Graphviz format. If a is not
// nil, atoms are labelled with their solved qualifiers and Wild atoms are
// highlighted.
func (g *Graph) WriteDot(w io.Writer, a *Assignment) error {
	var sb strings.Builder
	sb.WriteString("digraph constraints {\n")
	sb.WriteString("rankdir=\"BT\"\n")
	for _, q := range Qualifiers {
		fmt.Fprintf(&sb, "%s [shape=box]\n", q)
	}
	for _, v := range g.atoms {
		label := v.String()
		if v.name != "" {
			label += " " + v.name
		}
		attrs := ""
		if a != nil {
			q := a.Of(v)
			label += " = " + q.String()
			if q == Wild {
				attrs = ", color=red"
			}
		}
		fmt.Fprintf(&sb, "%s [label=%q%s]\n", v, label, attrs)
	}
	for _, e := range g.edges {
		fmt.Fprintf(&sb, "%s -> %s [tooltip=%q]\n", e.RHS, e.LHS, e.Reason)
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
