// Package runner drives one analysis run: it feeds translation units
// through constraint generation one at a time, links them, and solves
// the resulting constraint system.
package runner

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"honnef.co/go/cconv/c/loader"
	"honnef.co/go/cconv/gen"
	"honnef.co/go/cconv/program"
)

// Result is the frozen outcome of a run.
type Result struct {
	Info  *program.Info
	Units int
	// Durations of the two phases, for the -stats output.
	Generate time.Duration
	Solve    time.Duration
}

// Run analyzes every unit of src. The AST of a unit is released before
// the next one is read, so memory use is bounded by the largest unit
// plus the constraint system.
func Run(src loader.Source, opts program.Options, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info := program.New(opts, logger)
	res := &Result{Info: info}

	t := time.Now()
	for {
		u, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		logger.Debug("analyzing unit", zap.String("file", u.File), zap.Int("decls", len(u.Decls)))
		info.EnterUnit(u)
		gen.Unit(info)
		info.ExitUnit()
		res.Units++
		logger.Debug("done analyzing unit", zap.String("file", u.File))
	}
	if res.Units == 0 {
		return nil, errors.New("no translation units")
	}
	if err := info.Link(); err != nil {
		return nil, errors.Wrap(err, "linking")
	}
	res.Generate = time.Since(t)

	t = time.Now()
	info.Solve()
	res.Solve = time.Since(t)
	logger.Debug("solved",
		zap.Int("units", res.Units),
		zap.Duration("generate", res.Generate),
		zap.Duration("solve", res.Solve))
	return res, nil
}

// Resolve merges user supplied qualifiers into a finished run and solves
// again. It returns the number of overrides that did not apply to any
// declaration.
func (res *Result) Resolve(ovs []program.Override) int {
	n := 0
	for _, ok := range res.Info.MergeAssignment(ovs) {
		if !ok {
			n++
		}
	}
	t := time.Now()
	res.Info.Solve()
	res.Solve = time.Since(t)
	return n
}
