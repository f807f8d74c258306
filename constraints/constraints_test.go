package constraints

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"honnef.co/go/cconv/c/ast"
)

func pos(line int) ast.Pos { return ast.Pos{File: "t.c", Line: line, Column: 1} }

func TestJoin(t *testing.T) {
	for _, a := range Qualifiers {
		for _, b := range Qualifiers {
			want := Join(a, b)
			var got Qualifier
			switch {
			case a == Wild || b == Wild:
				got = Wild
			case a == Ptr:
				got = b
			case b == Ptr:
				got = a
			case a == b:
				got = a
			default:
				got = qualifierJoin(a, b)
			}
			if got != want {
				t.Errorf("join(%s, %s) = %s, want %s", a, b, got, want)
			}
		}
	}
	if Height() != 3 {
		t.Errorf("Height() = %d, want 3", Height())
	}
}

func TestLatticeDot(t *testing.T) {
	dot := LatticeDot()
	if !strings.Contains(dot, `n0 -> n1`) {
		t.Errorf("NTARR should be below ARR in\n%s", dot)
	}
}

func TestAddDedup(t *testing.T) {
	g := NewGraph(true)
	a, b := g.NewAtom("a", false), g.NewAtom("b", false)
	if e := g.Add(a, a, "self", pos(1)); e != nil {
		t.Errorf("self edge was recorded: %v", e)
	}
	if e := g.Add(Wild, Arr, "const", pos(1)); e != nil {
		t.Errorf("constant edge was recorded: %v", e)
	}
	first := g.Add(a, b, "first", pos(1))
	second := g.Add(a, b, "second", pos(2))
	if first != second || second.Reason != "first" {
		t.Errorf("duplicate edge replaced the first reason: %v", second.Reason)
	}
	if n := len(g.Edges()); n != 1 {
		t.Errorf("got %d edges, want 1", n)
	}
}

func TestSolveChain(t *testing.T) {
	g := NewGraph(true)
	p := g.NewAtom("p", false)
	q := g.NewAtom("q", false)
	r := g.NewAtom("r", false)
	s := g.NewAtom("s", false)
	g.Add(q, p, "q = p", pos(1))
	g.Add(r, q, "r = q", pos(2))
	g.Add(p, Arr, "p[i]", pos(3))
	g.Add(s, r, "s = r", pos(4))
	g.Add(r, Wild, "Casted from int * to struct Foo *", pos(5))

	a := g.Solve(nil)
	want := map[*VarAtom]Qualifier{p: Arr, q: Arr, r: Wild, s: Wild}
	for v, w := range want {
		if got := a.Of(v); got != w {
			t.Errorf("%s = %s, want %s", v.Name(), got, w)
		}
	}

	c, ok := a.Why(s)
	if !ok {
		t.Fatal("s has no cause")
	}
	if c.Reason != "Casted from int * to struct Foo *" || c.Pos != pos(5) {
		t.Errorf("cause of s = %q at %v", c.Reason, c.Pos)
	}
	if len(c.Chain) != 2 || c.Chain[0] != s || c.Chain[1] != r {
		t.Errorf("chain = %v, want [s r]", c.Chain)
	}
	if _, ok := a.Why(g.NewAtom("fresh", false)); ok {
		t.Error("an unconstrained atom should have no cause")
	}
}

func TestNoArray(t *testing.T) {
	g := NewGraph(true)
	fp := g.NewAtom("fp", true)
	g.Add(fp, Arr, "fp++", pos(1))
	if got := g.Solve(nil).Of(fp); got != Wild {
		t.Errorf("function pointer raised to array = %s, want WILD", got)
	}
}

func TestAllTypesDisabled(t *testing.T) {
	g := NewGraph(false)
	p := g.NewAtom("p", false)
	e := g.Add(p, Arr, "p[i]", pos(1))
	if e.RHS != Wild || e.Reason != allTypesReason {
		t.Errorf("edge = %v (%q), want WILD with alltypes reason", e, e.Reason)
	}
	if got := g.Solve(nil).Of(p); got != Wild {
		t.Errorf("p = %s, want WILD", got)
	}
}

func TestConflicts(t *testing.T) {
	g := NewGraph(true)
	p := g.NewAtom("p", false)
	g.Add(Ptr, p, "declared _Ptr", pos(1))
	g.Add(p, Wild, "unsafe cast", pos(2))
	a := g.Solve(nil)
	if len(a.Conflicts()) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(a.Conflicts()))
	}
	if c := a.Conflicts()[0]; c.Got != Wild || c.Edge.RHS != p {
		t.Errorf("unexpected conflict %v", c)
	}
}

func TestOverrides(t *testing.T) {
	g := NewGraph(true)
	p := g.NewAtom("p", false)
	q := g.NewAtom("q", false)
	g.Add(q, p, "q = p", pos(1))
	a := g.Solve([]Override{{Atom: p, Q: NTArr, Reason: "user"}})
	if a.Of(q) != NTArr {
		t.Errorf("q = %s, want NTARR", a.Of(q))
	}
	if c, _ := a.Why(q); c.Reason != "user" {
		t.Errorf("cause = %q, want user", c.Reason)
	}
	if b := g.Solve(nil); b.Of(q) != Ptr {
		t.Errorf("re-solving without overrides: q = %s, want PTR", b.Of(q))
	}
}

func TestLastOverrideWins(t *testing.T) {
	g := NewGraph(true)
	p := g.NewAtom("p", false)
	a := g.Solve([]Override{
		{Atom: p, Q: Arr, Reason: "first"},
		{Atom: p, Q: Wild, Reason: "second"},
	})
	if a.Of(p) != Wild {
		t.Errorf("p = %s, want WILD", a.Of(p))
	}
	if c, _ := a.Why(p); c.Reason != "second" {
		t.Errorf("cause = %q, want second", c.Reason)
	}
}

// randomGraph builds a graph with n atoms and m random edges, including
// constant edges. The same seed always produces the same graph.
func randomGraph(seed int64, n, m int, perm []int) *Graph {
	rng := rand.New(rand.NewSource(seed))
	g := NewGraph(true)
	for i := 0; i < n; i++ {
		g.NewAtom(fmt.Sprint(i), i%7 == 0)
	}
	type edge struct {
		lhs, rhs Atom
	}
	var edges []edge
	for i := 0; i < m; i++ {
		var lhs, rhs Atom = g.atoms[rng.Intn(n)], g.atoms[rng.Intn(n)]
		switch rng.Intn(10) {
		case 0:
			rhs = Qualifiers[1+rng.Intn(3)]
		case 1:
			lhs = Qualifiers[rng.Intn(4)]
		}
		edges = append(edges, edge{lhs, rhs})
	}
	if perm != nil {
		shuffled := make([]edge, len(edges))
		for i, j := range perm {
			shuffled[i] = edges[j]
		}
		edges = shuffled
	}
	for i, e := range edges {
		g.Add(e.lhs, e.rhs, fmt.Sprint("edge ", i), pos(i))
	}
	return g
}

func TestSolveProperties(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		g := randomGraph(seed, 40, 80, nil)
		a := g.Solve(nil)

		// Soundness: every edge with a variable left-hand side holds.
		for _, e := range g.Edges() {
			if _, ok := e.LHS.(*VarAtom); !ok {
				continue
			}
			if a.Of(e.LHS) < a.Of(e.RHS) {
				t.Fatalf("seed %d: violated %v: %s < %s", seed, e, a.Of(e.LHS), a.Of(e.RHS))
			}
		}

		// Taint closure: everything reachable from a Wild atom along ≥
		// edges is Wild.
		for _, e := range g.Edges() {
			if _, ok := e.LHS.(*VarAtom); ok && a.Of(e.RHS) == Wild && a.Of(e.LHS) != Wild {
				t.Fatalf("seed %d: %v does not propagate WILD", seed, e)
			}
		}

		// Determinism under edge reordering.
		perm := rand.New(rand.NewSource(seed + 1000)).Perm(80)
		b := randomGraph(seed, 40, 80, perm).Solve(nil)
		for i := range g.atoms {
			if a.vals[i] != b.vals[i] {
				t.Fatalf("seed %d: atom %d solved to %s and %s depending on edge order", seed, i, a.vals[i], b.vals[i])
			}
		}

		// Determinism across runs, including reasons.
		c := randomGraph(seed, 40, 80, nil).Solve(nil)
		for i, v := range g.atoms {
			ca, _ := a.Why(v)
			cc, _ := c.Why(c.g.atoms[i])
			if a.vals[i] != c.vals[i] || ca.Reason != cc.Reason {
				t.Fatalf("seed %d: atom %d differs between runs", seed, i)
			}
		}
	}
}
