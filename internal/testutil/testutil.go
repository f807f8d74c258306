// Package testutil runs fixture-driven tests over txtar archives.
//
// An archive holds the translation units of one program as .yaml files,
// analyzed in archive order, an optional cconv.conf, a want file listing
// expected results, and optional <file>.golden files with the expected
// rewritten source of <file>.
//
// Each line of want has the form
//
//	<pos> <QUALIFIER> [<bounds>] ["<reason substring>"]
//	<pos> type "<rendered declaration>"
//
// Empty lines and lines starting with # are ignored.
package testutil

import (
	"bytes"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/loader"
	"honnef.co/go/cconv/config"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/internal/diff/myers"
	"honnef.co/go/cconv/program"
	"honnef.co/go/cconv/rewrite"
	"honnef.co/go/cconv/runner"
)

type Want struct {
	line   int
	pos    ast.Pos
	q      constraints.Qualifier
	typ    string
	bounds string
	reason string
}

func parseWant(s string) (Want, error) {
	var w Want
	p, rest, _ := strings.Cut(strings.TrimSpace(s), " ")
	pos, err := ast.ParsePos(p)
	if err != nil {
		return w, err
	}
	w.pos = pos
	word, rest, _ := strings.Cut(strings.TrimSpace(rest), " ")
	rest = strings.TrimSpace(rest)
	if word == "type" {
		w.typ, err = strconv.Unquote(rest)
		return w, err
	}
	if w.q, err = constraints.ParseQualifier(word); err != nil {
		return w, err
	}
	if rest != "" && rest[0] != '"' {
		w.bounds, rest, _ = strings.Cut(rest, " ")
		rest = strings.TrimSpace(rest)
	}
	if rest != "" {
		q, err := strconv.QuotedPrefix(rest)
		if err != nil {
			return w, err
		}
		w.reason, _ = strconv.Unquote(q)
	}
	return w, nil
}

// Fixture is a parsed archive.
type Fixture struct {
	Name    string
	Config  config.Config
	Units   []loader.Doc
	Wants   []Want
	Goldens map[string]string
}

func Load(path string) (*Fixture, error) {
	ar, err := txtar.ParseFile(path)
	if err != nil {
		return nil, err
	}
	fx := &Fixture{Name: filepath.Base(path), Config: config.Default(), Goldens: map[string]string{}}
	for _, f := range ar.Files {
		switch {
		case f.Name == "cconv.conf":
			if fx.Config, err = config.Parse(bytes.NewReader(f.Data), path+":"+f.Name); err != nil {
				return nil, err
			}
		case f.Name == "want":
			for i, l := range strings.Split(string(f.Data), "\n") {
				l = strings.TrimSpace(l)
				if l == "" || strings.HasPrefix(l, "#") {
					continue
				}
				w, err := parseWant(l)
				if err != nil {
					return nil, err
				}
				w.line = i + 1
				fx.Wants = append(fx.Wants, w)
			}
		case strings.HasSuffix(f.Name, ".golden"):
			fx.Goldens[strings.TrimSuffix(f.Name, ".golden")] = string(f.Data)
		case strings.HasSuffix(f.Name, ".yaml"):
			fx.Units = append(fx.Units, loader.Doc{Name: f.Name, Data: f.Data})
		}
	}
	return fx, nil
}

// Run runs every archive matching pattern as a subtest.
func Run(t *testing.T, pattern string) {
	t.Helper()
	paths, err := filepath.Glob(pattern)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatalf("no fixtures match %s", pattern)
	}
	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			fx, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			Check(t, fx)
		})
	}
}

// Check analyzes a fixture and compares the results to its expectations.
func Check(t *testing.T, fx *Fixture) *program.Info {
	t.Helper()
	res, err := runner.Run(loader.Docs(fx.Units...), fx.Config.Options(), nil)
	if err != nil {
		t.Fatal(err)
	}
	info := res.Info
	for _, w := range fx.Wants {
		e, ok := info.Lookup(w.pos)
		if !ok {
			t.Errorf("want:%d: no declaration at %s", w.line, w.pos)
			continue
		}
		if w.typ != "" {
			if e.Type != w.typ {
				t.Errorf("want:%d: %s has type %q, want %q", w.line, w.pos, e.Type, w.typ)
			}
			continue
		}
		if len(e.Levels) == 0 {
			t.Errorf("want:%d: %s has no pointer levels", w.line, w.pos)
			continue
		}
		l := e.Levels[0]
		if l.Q != w.q {
			t.Errorf("want:%d: %s solved to %s, want %s (%s)", w.line, w.pos, l.Q, w.q, l.Reason)
		}
		if w.bounds != "" && strings.ReplaceAll(e.Bounds, " ", "") != w.bounds {
			t.Errorf("want:%d: %s has bounds %q, want %q", w.line, w.pos, e.Bounds, w.bounds)
		}
		if w.reason != "" && !strings.Contains(l.Reason, w.reason) {
			t.Errorf("want:%d: %s has reason %q, want it to contain %q", w.line, w.pos, l.Reason, w.reason)
		}
	}

	if len(fx.Goldens) == 0 {
		return info
	}
	plan := rewrite.NewPlan(info, rewrite.Options{
		PreferItypes:   fx.Config.Analysis.PreferItypes,
		CheckedRegions: fx.Config.Analysis.CheckedRegions,
	})
	for file, golden := range fx.Goldens {
		src, ok := info.Source(file)
		if !ok {
			t.Errorf("%s.golden: no unit carries the source of %s", file, file)
			continue
		}
		got, err := plan.Apply(file, src)
		if err != nil {
			t.Errorf("rewriting %s: %v", file, err)
			continue
		}
		if got != golden {
			t.Errorf("rewriting %s differs from golden file:\n%s", file, myers.Unified(file+".golden", file, golden, got))
		}
	}
	return info
}
