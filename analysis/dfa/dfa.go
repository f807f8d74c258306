// Package dfa provides types and functions for implementing sparse data-flow analyses over constraint graphs.
package dfa

import (
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
)

const debugging = false

func debugf(f string, args ...any) {
	if debugging {
		log.Printf(f, args...)
	}
}

// Join defines the [∨] operation for a [join-semilattice]. It must implement a commutative and associative binary operation
// that returns the least upper bound of two states from S.
//
// Code that calls Join functions is expected to handle the [⊥ and ⊤ elements], as well as implement idempotency. That is,
// the following properties will be enforced:
//
//   - x ∨ ⊥ = x
//   - x ∨ ⊤ = ⊤
//   - x ∨ x = x
//
// Simple table-based join functions can be created using [JoinTable].
//
// [∨]: https://en.wikipedia.org/wiki/Join_and_meet
// [join-semilattice]: https://en.wikipedia.org/wiki/Semilattice
// [⊥ and ⊤ elements]: https://en.wikipedia.org/wiki/Greatest_element_and_least_element#Top_and_bottom
type Join[S comparable] func(S, S) S

// Mapping maps a single node to an abstract state.
type Mapping[N, S comparable] struct {
	Node     N
	State    S
	Decision Decision[N]
}

// Decision describes how a mapping from a node to an abstract state came to be.
// Decisions are provided by transfer functions when they create mappings.
type Decision[N comparable] struct {
	// The relevant nodes that the transfer function used to make the decision.
	Inputs []N
	// A human-readable description of the decision.
	Description string
	// Whether this is the source of an abstract state. For example, in a taint analysis, the constraint that
	// forces a node to be tainted would be the source of the taint state, and any edges that merely propagate
	// tainted states would not be sources.
	Source bool
}

func (m Mapping[N, S]) String() string {
	return fmt.Sprintf("%v = %v", m.Node, m.State)
}

// M is a helper for constructing instances of [Mapping].
func M[N, S comparable](n N, s S, d Decision[N]) Mapping[N, S] {
	return Mapping[N, S]{Node: n, State: s, Decision: d}
}

// Framework describes a monotone data-flow framework ⟨S, ∨, Transfer⟩ using a bounded join-semilattice ⟨S, ∨⟩ and a
// monotonic transfer function.
//
// Transfer implements the transfer function. Given a node whose state has changed, it should return zero or more
// mappings from dependent nodes to abstract values, i.e. values from the semilattice. Transfer must be monotonic.
//
// The set S is defined implicitly by the values returned by Join and Transfer. In addition, it contains the elements
// ⊥ and ⊤ (Bottom and Top) with Join(x, ⊥) = x and Join(x, ⊤) = ⊤. The provided Join function is wrapped to handle
// these elements automatically. All nodes start in the ⊥ state.
//
// Height bounds the number of times a single node may change state. It should be the height of the lattice; a node
// that changes more often than that indicates a non-monotonic transfer function. A zero Height disables the check.
type Framework[N, S comparable] struct {
	Join     Join[S]
	Transfer func(*Instance[N, S], N) []Mapping[N, S]
	Bottom   S
	Top      S
	Height   int
	// Compare orders nodes for debug output. It may be nil.
	Compare func(N, N) int
}

// Start returns a new instance of the framework. See also [Framework.Solve].
func (fw *Framework[N, S]) Start() *Instance[N, S] {
	if fw.Bottom == fw.Top {
		panic("framework's ⊥ and ⊤ are identical; did you forget to specify them?")
	}

	return &Instance[N, S]{
		Framework: fw,
		Mapping:   map[N]Mapping[N, S]{},
		changes:   map[N]int{},
	}
}

// Solve runs the analysis to a fixed point, starting from the given seed mappings. It combines [Framework.Start] and
// [Instance.Run].
func (fw *Framework[N, S]) Solve(seeds []Mapping[N, S]) *Instance[N, S] {
	ins := fw.Start()
	ins.Run(seeds)
	return ins
}

// Dot returns a directed graph in [Graphviz] format that represents the finite join-semilattice ⟨S, ≤⟩.
// Vertices represent elements in S and edges represent the ≤ relation between elements.
// We map from ⟨S, ∨⟩ to ⟨S, ≤⟩ by computing x ∨ y for all elements in [S]², where x ≤ y iff x ∨ y == y.
//
// The resulting graph can be filtered through [tred] to compute the transitive reduction of the graph, the
// visualisation of which corresponds to the Hasse diagram of the semilattice.
//
// [Graphviz]: https://graphviz.org/
// [tred]: https://graphviz.org/docs/cli/tred/
func Dot[S comparable](fn Join[S], states []S, bottom, top S) string {
	var sb strings.Builder
	sb.WriteString("digraph{\n")
	sb.WriteString("rankdir=\"BT\"\n")

	for i, v := range states {
		if vs, ok := any(v).(fmt.Stringer); ok {
			fmt.Fprintf(&sb, "n%d [label=%q]\n", i, vs)
		} else {
			fmt.Fprintf(&sb, "n%d [label=%q]\n", i, fmt.Sprintf("%v", v))
		}
	}

	for dx, x := range states {
		for dy, y := range states {
			if dx == dy {
				continue
			}

			if join(fn, x, y, bottom, top) == y {
				fmt.Fprintf(&sb, "n%d -> n%d\n", dx, dy)
			}
		}
	}

	sb.WriteString("}")
	return sb.String()
}

// Instance is an instance of a data-flow analysis. It is created by [Framework.Start].
type Instance[N, S comparable] struct {
	Framework *Framework[N, S]
	// Mapping is the result of the analysis. Consider using Instance.Value instead of accessing Mapping
	// directly, as it correctly returns ⊥ for missing values.
	Mapping map[N]Mapping[N, S]

	changes map[N]int
}

// Set maps n to the abstract value d. It does not apply any checks. This should only be used before calling
// [Instance.Run], to set initial states of nodes.
func (ins *Instance[N, S]) Set(n N, d S) {
	ins.Mapping[n] = Mapping[N, S]{Node: n, State: d}
}

// Value returns the abstract value for n. If none was set, it returns ⊥.
func (ins *Instance[N, S]) Value(n N) S {
	m, ok := ins.Mapping[n]
	if ok {
		return m.State
	} else {
		return ins.Framework.Bottom
	}
}

// Decision returns the decision of the mapping for n, if any.
func (ins *Instance[N, S]) Decision(n N) Decision[N] {
	return ins.Mapping[n].Decision
}

// Join joins two states using the framework's join function, handling ⊥ and ⊤.
func (ins *Instance[N, S]) Join(a, b S) S {
	return join(ins.Framework.Join, a, b, ins.Framework.Bottom, ins.Framework.Top)
}

var dfsDebugMu sync.Mutex

func join[S comparable](fn Join[S], a, b, bottom, top S) S {
	switch {
	case a == top || b == top:
		return top
	case a == bottom:
		return b
	case b == bottom:
		return a
	case a == b:
		return a
	default:
		return fn(a, b)
	}
}

// Run propagates states to a fixed point. Seeds are applied in order, as if a transfer function had produced them.
// The worklist is processed first in, first out, so that for a given seed order and transfer function the
// resulting decisions are deterministic.
func (ins *Instance[N, S]) Run(seeds []Mapping[N, S]) {
	if debugging {
		dfsDebugMu.Lock()
		defer dfsDebugMu.Unlock()
	}

	if ins.Mapping == nil {
		ins.Mapping = map[N]Mapping[N, S]{}
	}
	if ins.changes == nil {
		ins.changes = map[N]int{}
	}

	var worklist []N
	queued := map[N]struct{}{}
	enqueue := func(n N) {
		if _, ok := queued[n]; !ok {
			queued[n] = struct{}{}
			worklist = append(worklist, n)
		}
	}
	apply := func(src string, ds []Mapping[N, S]) {
		for i, d := range ds {
			old := ins.Value(d.Node)
			dd := d.State
			if dd == old {
				continue
			}
			if j := ins.Join(old, dd); j != dd {
				panic(fmt.Sprintf("transfer function isn't monotonic; Transfer(%s)[%d] = %v; join(%v, %v) = %v", src, i, dd, old, dd, j))
			}
			ins.changes[d.Node]++
			if h := ins.Framework.Height; h > 0 && ins.changes[d.Node] > h {
				panic(fmt.Sprintf("node %v changed state %d times in a lattice of height %d", d.Node, ins.changes[d.Node], h))
			}
			ins.Mapping[d.Node] = d
			enqueue(d.Node)
		}
	}

	apply("seed", seeds)
	for len(worklist) > 0 {
		n := worklist[0]
		worklist = worklist[1:]
		delete(queued, n)

		ds := ins.Framework.Transfer(ins, n)
		if len(ds) > 0 {
			debugf("transfer(%v) = %v", n, ds)
		}
		apply(fmt.Sprint(n), ds)
	}
	ins.printMapping()
}

// Propagate is a helper for creating a [Mapping] that propagates the abstract state of src to dst.
// The desc parameter is used as the value of Decision.Description.
func (ins *Instance[N, S]) Propagate(dst, src N, desc string) Mapping[N, S] {
	return M(dst, ins.Join(ins.Value(dst), ins.Value(src)), Decision[N]{Inputs: []N{src}, Description: desc})
}

// Transform is like Propagate, but maps dst to s instead of the state of src.
func (ins *Instance[N, S]) Transform(dst N, s S, src N, desc string) Mapping[N, S] {
	return M(dst, s, Decision[N]{Inputs: []N{src}, Description: desc})
}

// Trace follows the first input of each decision, starting at n, and returns the chain of nodes up to and
// including the node whose decision has no inputs or is a source.
func (ins *Instance[N, S]) Trace(n N) []N {
	out := []N{n}
	seen := map[N]struct{}{n: {}}
	for {
		d := ins.Decision(n)
		if d.Source || len(d.Inputs) == 0 {
			return out
		}
		n = d.Inputs[0]
		if _, ok := seen[n]; ok {
			return out
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
}

func (ins *Instance[N, S]) printMapping() {
	if !debugging {
		return
	}

	debugf("Mapping:\n")
	var keys []N
	for k := range ins.Mapping {
		keys = append(keys, k)
	}
	if cmp := ins.Framework.Compare; cmp != nil {
		slices.SortFunc(keys, cmp)
	}
	for _, k := range keys {
		v := ins.Mapping[k]
		debugf("\t%v\n", v)
	}
}

// JoinTable returns a [Join] function based on the provided mapping.
// For missing pairs of values, the default value will be returned.
func JoinTable[S comparable](top S, m map[[2]S]S) Join[S] {
	return func(a, b S) S {
		if d, ok := m[[2]S{a, b}]; ok {
			return d
		} else if d, ok := m[[2]S{b, a}]; ok {
			return d
		} else {
			return top
		}
	}
}
