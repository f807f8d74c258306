package bounds

import (
	"slices"
	"strings"

	"golang.org/x/tools/container/intsets"
)

// Stats counts the outcome of bounds inference per source.
type Stats struct {
	Arrays    int
	Declared  int
	Allocator int
	Loop      int
	Dataflow  int
	NameMatch int
	Invalid   int
	Missing   int
}

func (info *Info) Stats() Stats { return info.stats }

// Infer computes a bound for every key for which isArray reports true.
// Facts local to a declaration are used first: annotations, allocator
// calls and loop conditions. Bounds then flow along assignment edges,
// translated into the scope of the receiving variable. Finally, if
// enabled, integer variables named after an array are used.
//
// A key with more than one distinct candidate bound is left unbounded.
// Infer is deterministic: keys are processed in ascending order.
func (info *Info) Infer(isArray func(Key) bool) {
	info.results = map[Key]result{}
	info.invalid.Clear()
	info.stats = Stats{}

	var arrays []Key
	for _, k := range sortedKeys(info.vars) {
		if isArray(k) {
			arrays = append(arrays, k)
		}
	}
	info.stats.Arrays = len(arrays)

	for _, k := range arrays {
		if b, ok := info.declared[k]; ok {
			info.results[k] = result{b, Declared}
			continue
		}
		if b, ok := info.allocs[k]; ok && !info.allocInvalid.Has(int(k)) {
			if b, ok := info.translate(b, k); ok {
				info.results[k] = result{b, Allocator}
				continue
			}
		}
		if cands := info.potential[k]; len(cands) == 1 {
			if b, ok := info.translate(CountBound{cands[0]}, k); ok {
				info.results[k] = result{b, Loop}
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, k := range arrays {
			if _, ok := info.results[k]; ok || info.Invalid(k) {
				continue
			}
			var cands []ABounds
			for _, n := range info.Neighbors(k) {
				r, ok := info.results[n]
				if !ok {
					continue
				}
				if b, ok := info.translate(r.b, k); ok && !slices.Contains(cands, b) {
					cands = append(cands, b)
				}
			}
			switch len(cands) {
			case 0:
			case 1:
				info.results[k] = result{cands[0], Dataflow}
				changed = true
			default:
				info.invalid.Insert(int(k))
			}
		}
	}

	if info.NameHeuristics {
		for _, k := range arrays {
			if _, ok := info.results[k]; ok || info.Invalid(k) {
				continue
			}
			if n, ok := info.byName(k); ok {
				info.results[k] = result{CountBound{n}, NameMatch}
			}
		}
	}

	for _, k := range arrays {
		r, ok := info.results[k]
		switch {
		case info.Invalid(k):
			info.stats.Invalid++
		case !ok:
			info.stats.Missing++
		case r.src == Declared:
			info.stats.Declared++
		case r.src == Allocator:
			info.stats.Allocator++
		case r.src == Loop:
			info.stats.Loop++
		case r.src == Dataflow:
			info.stats.Dataflow++
		case r.src == NameMatch:
			info.stats.NameMatch++
		}
	}
}

// translate rewrites b so that every key it mentions is visible from k's
// scope. A key that is not visible is replaced by the unique visible key
// closest to it along assignment edges.
func (info *Info) translate(b ABounds, k Key) (ABounds, bool) {
	target, ok := info.vars[k]
	if !ok {
		return nil, false
	}
	keys := b.Keys()
	out := make([]Key, len(keys))
	for i, bk := range keys {
		v, ok := info.vars[bk]
		if !ok || !v.Integer {
			return nil, false
		}
		if target.Scope.Sees(v.Scope) {
			out[i] = bk
			continue
		}
		alt, ok := info.nearestVisible(bk, target.Scope)
		if !ok {
			return nil, false
		}
		out[i] = alt
	}
	return withKeys(b, out), true
}

// nearestVisible searches breadth-first from k for integer keys visible
// from scope. It fails if none or more than one is found at the minimal
// distance.
func (info *Info) nearestVisible(k Key, scope Scope) (Key, bool) {
	var seen intsets.Sparse
	seen.Insert(int(k))
	frontier := []Key{k}
	for len(frontier) > 0 {
		var next []Key
		var found []Key
		for _, f := range frontier {
			for _, n := range info.Neighbors(f) {
				if !seen.Insert(int(n)) {
					continue
				}
				v := info.vars[n]
				if v.Integer && scope.Sees(v.Scope) {
					found = append(found, n)
				} else {
					next = append(next, n)
				}
			}
		}
		switch len(found) {
		case 0:
			frontier = next
		case 1:
			return found[0], true
		default:
			return 0, false
		}
	}
	return 0, false
}

// byName looks for a single integer variable in the array's scope whose
// name identifies it as the array's length.
func (info *Info) byName(k Key) (Key, bool) {
	arr := info.vars[k]
	name := strings.ToLower(arr.Name)
	patterns := []string{
		name + "_len", name + "len", name + "_length", name + "_size",
		name + "_count", name + "_num", "len_" + name, "n_" + name, "num_" + name,
	}
	var match Key
	n := 0
	for _, ck := range sortedKeys(info.vars) {
		v := info.vars[ck]
		if ck == k || !v.Integer || v.Const || v.Scope != arr.Scope {
			continue
		}
		if slices.Contains(patterns, strings.ToLower(v.Name)) {
			match = ck
			n++
		}
	}
	return match, n == 1
}
