// Package convcmd implements the frontend of the converter. It serves as
// the entry point of the cconv command.
package convcmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/c/loader"
	"honnef.co/go/cconv/config"
	"honnef.co/go/cconv/debug"
	"honnef.co/go/cconv/internal/diff/myers"
	"honnef.co/go/cconv/program"
	"honnef.co/go/cconv/rewrite"
	"honnef.co/go/cconv/runner"
	"honnef.co/go/cconv/store"
	"honnef.co/go/cconv/version"
)

// Command represents the converter's command line tool.
type Command struct {
	name   string
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
	code   int

	flags struct {
		config  string
		format  string
		postfix string
		diff    bool
		dump    bool
		json    bool
		stats   bool
		store   string
		explain []string
		verbose bool

		printVersion    bool
		debugVersion    bool
		debugDot        string
		debugCpuprofile string
	}
}

// NewCommand returns a new Command.
func NewCommand(name string) *Command {
	cmd := &Command{name: name, stdout: os.Stdout, stderr: os.Stderr}
	cmd.root = &cobra.Command{
		Use:           name + " [flags] units...",
		Short:         "Infer checked pointer types for C translation units",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			code, err := cmd.run(c, args)
			cmd.code = code
			return err
		},
	}
	cmd.initFlags()
	return cmd
}

// SetOutput redirects the command's standard output and standard error.
func (cmd *Command) SetOutput(stdout, stderr io.Writer) {
	cmd.stdout, cmd.stderr = stdout, stderr
	cmd.root.SetOut(stdout)
	cmd.root.SetErr(stderr)
}

func (cmd *Command) initFlags() {
	fs := cmd.root.Flags()
	fs.StringVar(&cmd.flags.config, "config", "", "Use the configuration `file` instead of looking for cconv.conf files")
	fs.StringVarP(&cmd.flags.format, "format", "f", "text", "Output `format` of diagnostics (valid choices are 'stylish', 'text', 'json' and 'null')")
	fs.StringVar(&cmd.flags.postfix, "output-postfix", "checked", "Write rewritten files next to their originals, with `postfix` inserted before the extension; '-' prints them instead and '' disables rewriting")
	fs.BoolVar(&cmd.flags.diff, "diff", false, "Print unified diffs of the rewritten files instead of writing them")
	fs.BoolVar(&cmd.flags.dump, "dump", false, "Print the solved type of every declaration")
	fs.BoolVar(&cmd.flags.json, "dump-json", false, "Print a JSON summary of the solution")
	fs.BoolVar(&cmd.flags.stats, "stats", false, "Print statistics about the solution")
	fs.StringVar(&cmd.flags.store, "store", "", "Read overrides from and save the solution to the SQLite database `file`")
	fs.StringSliceVar(&cmd.flags.explain, "explain", nil, "Explain the qualifiers of the declarations at the given `positions`")
	fs.BoolVarP(&cmd.flags.verbose, "verbose", "v", false, "Log progress to standard error")
	fs.BoolVar(&cmd.flags.printVersion, "version", false, "Print version and exit")

	fs.BoolVar(&cmd.flags.debugVersion, "debug.version", false, "Print detailed version information about this program")
	fs.StringVar(&cmd.flags.debugDot, "debug.dot", "", "Write the constraint graph to `file` in Graphviz format")
	fs.StringVar(&cmd.flags.debugCpuprofile, "debug.cpuprofile", "", "Write CPU profile to `file`")
	for _, name := range []string{"debug.version", "debug.dot", "debug.cpuprofile"} {
		_ = fs.MarkHidden(name)
	}
}

// Execute parses args, runs the converter and returns the exit status:
// 0 on success, 1 if the solution conflicts with explicit annotations or
// the run failed, and 2 for usage errors.
func (cmd *Command) Execute(args []string) int {
	cmd.code = 0
	cmd.root.SetArgs(args)
	if err := cmd.root.Execute(); err != nil {
		fmt.Fprintln(cmd.stderr, "error:", err)
		if cmd.code == 0 {
			cmd.code = 2
		}
	}
	return cmd.code
}

func (cmd *Command) newLogger() (*zap.Logger, error) {
	if !cmd.flags.verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// loadConfig loads the configuration for the units in args and applies
// flags that were set explicitly.
func (cmd *Command) loadConfig(c *cobra.Command, args []string) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if cmd.flags.config != "" {
		cfg, err = config.LoadFile(cmd.flags.config)
	} else {
		var dir string
		dir, err = filepath.Abs(filepath.Dir(args[0]))
		if err == nil {
			cfg, err = config.Load(dir)
		}
	}
	if err != nil {
		return config.Config{}, err
	}
	if c.Flags().Changed("format") {
		cfg.Output.Format = cmd.flags.format
	}
	if c.Flags().Changed("output-postfix") {
		cfg.Output.Postfix = cmd.flags.postfix
	}
	return cfg, nil
}

func (cmd *Command) run(c *cobra.Command, args []string) (int, error) {
	if cmd.flags.debugVersion {
		version.Verbose(cmd.stdout, cmd.name)
		return 0, nil
	}
	if cmd.flags.printVersion {
		version.Print(cmd.stdout, cmd.name)
		return 0, nil
	}
	if len(args) == 0 {
		return 2, errors.New("no translation units given")
	}

	if path := cmd.flags.debugCpuprofile; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return 1, err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return 1, err
		}
		defer pprof.StopCPUProfile()
	}

	logger, err := cmd.newLogger()
	if err != nil {
		return 1, err
	}
	defer logger.Sync()

	cfg, err := cmd.loadConfig(c, args)
	if err != nil {
		return 2, err
	}
	f, err := newFormatter(cfg.Output.Format, cmd.stdout)
	if err != nil {
		return 2, err
	}

	res, err := runner.Run(loader.Files(args...), cfg.Options(), logger)
	if err != nil {
		return 1, err
	}
	info := res.Info
	logger.Info("analyzed program",
		zap.Int("units", res.Units),
		zap.Duration("generate", res.Generate),
		zap.Duration("solve", res.Solve))

	if cmd.flags.store != "" {
		if err := cmd.syncStore(res, logger); err != nil {
			return 1, err
		}
	}

	var numErrors, numWarnings int
	ds := diagnostics(info)
	for _, d := range ds {
		if d.Severity == severityError {
			numErrors++
		} else {
			numWarnings++
		}
		f.Format(d)
	}
	if f, ok := f.(statter); ok {
		f.Stats(len(ds), numErrors, numWarnings)
	}

	if err := cmd.report(info, res); err != nil {
		return 1, err
	}

	plan := rewrite.NewPlan(info, rewrite.Options{
		PreferItypes:   cfg.Analysis.PreferItypes,
		CheckedRegions: cfg.Analysis.CheckedRegions,
	})
	logger.Debug("planned rewrite", zap.Int("edits", plan.Len()), zap.Strings("files", plan.Files()))
	if err := cmd.emit(plan, info, cfg.Output.Postfix); err != nil {
		return 1, err
	}

	if numErrors > 0 {
		return 1, nil
	}
	return 0, nil
}

// syncStore applies the overrides stored in the database, solving again
// if there are any, and saves the final solution.
func (cmd *Command) syncStore(res *runner.Result, logger *zap.Logger) error {
	s, err := store.Open(cmd.flags.store)
	if err != nil {
		return err
	}
	defer s.Close()
	ovs, err := s.LoadOverrides()
	if err != nil {
		return err
	}
	if len(ovs) > 0 {
		missed := res.Resolve(ovs)
		logger.Info("applied overrides", zap.Int("overrides", len(ovs)), zap.Int("unmatched", missed))
		if missed > 0 {
			fmt.Fprintf(cmd.stderr, "warning: %d of %d overrides did not match any declaration\n", missed, len(ovs))
		}
	}
	return s.SaveAssignment(res.Info)
}

// report prints the dumps requested on the command line.
func (cmd *Command) report(info *program.Info, res *runner.Result) error {
	if cmd.flags.dump {
		if err := info.Print(cmd.stdout); err != nil {
			return err
		}
	}
	if cmd.flags.json {
		if err := info.WriteJSON(cmd.stdout); err != nil {
			return err
		}
	}
	if cmd.flags.stats {
		fmt.Fprintf(cmd.stdout, "%d units, generated in %s, solved in %s\n", res.Units, res.Generate, res.Solve)
		if err := printStats(cmd.stdout, info.Stats()); err != nil {
			return err
		}
	}
	for _, s := range cmd.flags.explain {
		pos, err := ast.ParsePos(s)
		if err != nil {
			return err
		}
		out, err := debug.Explain(info, pos)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.stdout, out)
	}
	if cmd.flags.debugDot != "" {
		return debug.WriteDot(cmd.flags.debugDot, info)
	}
	return nil
}

// checkedName returns the name of the rewritten version of file.
func checkedName(file, postfix string) string {
	ext := filepath.Ext(file)
	return strings.TrimSuffix(file, ext) + "." + postfix + ext
}

// emit writes, prints or diffs the rewritten files.
func (cmd *Command) emit(plan *rewrite.Plan, info *program.Info, postfix string) error {
	if postfix == "" && !cmd.flags.diff {
		return nil
	}
	out, err := plan.ApplyAll(info)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(out))
	for file := range out {
		files = append(files, file)
	}
	sort.Strings(files)

	for _, file := range files {
		text := out[file]
		switch {
		case cmd.flags.diff:
			src, _ := info.Source(file)
			name := file
			if postfix != "" && postfix != "-" {
				name = checkedName(file, postfix)
			}
			fmt.Fprint(cmd.stdout, myers.Unified(file, name, src, text))
		case postfix == "-":
			fmt.Fprintf(cmd.stdout, "// %s\n%s", file, text)
		default:
			if err := os.WriteFile(checkedName(file, postfix), []byte(text), 0o644); err != nil {
				return errors.Wrapf(err, "writing rewritten %s", file)
			}
		}
	}
	return nil
}
