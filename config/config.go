// Package config loads cconv.conf files. Configuration files are looked
// up from a directory towards the file system root and merged from the
// root down; lists may refer to the value of the parent configuration
// with the element "inherit".
package config

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"honnef.co/go/cconv/program"
)

type config struct {
	cfg  Config
	meta toml.MetaData
}

func mergeLists(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, el := range b {
		if el == "inherit" {
			out = append(out, a...)
		} else {
			out = append(out, el)
		}
	}
	return out
}

func normalizeList(list []string) []string {
	if len(list) > 1 {
		sort.Strings(list)
		nlist := make([]string, 0, len(list))
		nlist = append(nlist, list[0])
		for i, el := range list[1:] {
			if el != list[i] {
				nlist = append(nlist, el)
			}
		}
		list = nlist
	}

	for _, el := range list {
		if el == "inherit" {
			// The default config never uses "inherit".
			panic(`unresolved "inherit"`)
		}
	}
	return list
}

func (cfg config) Merge(ocfg config) config {
	a, oa := &cfg.cfg.Analysis, ocfg.cfg.Analysis
	if ocfg.meta.IsDefined("analysis", "all_types") {
		a.AllTypes = oa.AllTypes
	}
	if ocfg.meta.IsDefined("analysis", "handle_varargs") {
		a.HandleVarargs = oa.HandleVarargs
	}
	if ocfg.meta.IsDefined("analysis", "prefer_itypes") {
		a.PreferItypes = oa.PreferItypes
	}
	if ocfg.meta.IsDefined("analysis", "checked_regions") {
		a.CheckedRegions = oa.CheckedRegions
	}
	if ocfg.meta.IsDefined("analysis", "extern_allow") {
		a.ExternAllow = mergeLists(a.ExternAllow, oa.ExternAllow)
	}
	if ocfg.meta.IsDefined("analysis", "allocators") {
		a.Allocators = mergeLists(a.Allocators, oa.Allocators)
	}

	if ocfg.meta.IsDefined("bounds", "infer") {
		cfg.cfg.Bounds.Infer = ocfg.cfg.Bounds.Infer
	}
	if ocfg.meta.IsDefined("bounds", "name_heuristics") {
		cfg.cfg.Bounds.NameHeuristics = ocfg.cfg.Bounds.NameHeuristics
	}

	if ocfg.meta.IsDefined("output", "postfix") {
		cfg.cfg.Output.Postfix = ocfg.cfg.Output.Postfix
	}
	if ocfg.meta.IsDefined("output", "format") {
		cfg.cfg.Output.Format = ocfg.cfg.Output.Format
	}
	return cfg
}

type Config struct {
	Analysis AnalysisConfig `toml:"analysis"`
	Bounds   BoundsConfig   `toml:"bounds"`
	Output   OutputConfig   `toml:"output"`
}

type AnalysisConfig struct {
	AllTypes       bool     `toml:"all_types"`
	HandleVarargs  bool     `toml:"handle_varargs"`
	PreferItypes   bool     `toml:"prefer_itypes"`
	// CheckedRegions marks compound statements that only use checked
	// pointers as _Checked.
	CheckedRegions bool     `toml:"checked_regions"`
	ExternAllow    []string `toml:"extern_allow"`
	Allocators     []string `toml:"allocators"`
}

type BoundsConfig struct {
	Infer          bool `toml:"infer"`
	NameHeuristics bool `toml:"name_heuristics"`
}

type OutputConfig struct {
	// Postfix is inserted into the names of rewritten files, before the
	// extension. "-" prints rewritten files to standard output and an
	// empty postfix disables writing them.
	Postfix string `toml:"postfix"`
	Format  string `toml:"format"`
}

var defaultConfig = Config{
	Analysis: AnalysisConfig{
		AllTypes:      true,
		HandleVarargs: true,
		ExternAllow:   []string{"malloc", "calloc", "realloc", "free"},
		Allocators:    []string{"malloc", "calloc", "realloc"},
	},
	Bounds: BoundsConfig{
		Infer: true,
	},
	Output: OutputConfig{
		Postfix: "checked",
		Format:  "text",
	},
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	cfg := defaultConfig
	cfg.Analysis.ExternAllow = append([]string(nil), cfg.Analysis.ExternAllow...)
	cfg.Analysis.Allocators = append([]string(nil), cfg.Analysis.Allocators...)
	return cfg
}

// Options converts the configuration into analysis options.
func (cfg Config) Options() program.Options {
	return program.Options{
		AllTypes:       cfg.Analysis.AllTypes,
		HandleVarargs:  cfg.Analysis.HandleVarargs,
		ExternAllow:    cfg.Analysis.ExternAllow,
		Allocators:     cfg.Analysis.Allocators,
		InferBounds:    cfg.Bounds.Infer,
		NameHeuristics: cfg.Bounds.NameHeuristics,
	}
}

const configName = "cconv.conf"

func decode(r io.Reader, name string) (config, error) {
	var cfg Config
	meta, err := toml.DecodeReader(r, &cfg)
	if err != nil {
		return config{}, errors.Wrapf(err, "parsing %s", name)
	}
	return config{cfg, meta}, nil
}

func parseConfigs(dir string) ([]config, error) {
	var out []config

	for dir != "" {
		path := filepath.Join(dir, configName)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			ndir := filepath.Dir(dir)
			if ndir == dir {
				break
			}
			dir = ndir
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "opening configuration")
		}
		cfg, err := decode(f, path)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
		ndir := filepath.Dir(dir)
		if ndir == dir {
			break
		}
		dir = ndir
	}
	out = append(out, config{
		cfg:  Default(),
		meta: toml.MetaData{}, // meta of the base config should never be accessed
	})
	if len(out) < 2 {
		return out, nil
	}
	for i := 0; i < len(out)/2; i++ {
		out[i], out[len(out)-1-i] = out[len(out)-1-i], out[i]
	}
	return out, nil
}

func mergeConfigs(confs []config) Config {
	if len(confs) == 0 {
		panic("trying to merge zero configs")
	}
	conf := confs[0]
	for _, oconf := range confs[1:] {
		conf = conf.Merge(oconf)
	}
	return conf.cfg
}

func normalize(conf Config) Config {
	conf.Analysis.ExternAllow = normalizeList(conf.Analysis.ExternAllow)
	conf.Analysis.Allocators = normalizeList(conf.Analysis.Allocators)
	return conf
}

// Load returns the configuration in effect for files in dir.
func Load(dir string) (Config, error) {
	confs, err := parseConfigs(dir)
	if err != nil {
		return Config{}, err
	}
	return normalize(mergeConfigs(confs)), nil
}

// LoadFile returns the default configuration merged with the file at
// path, ignoring any cconv.conf files.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "opening configuration")
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse returns the default configuration merged with the document read
// from r.
func Parse(r io.Reader, name string) (Config, error) {
	cfg, err := decode(r, name)
	if err != nil {
		return Config{}, err
	}
	return normalize(mergeConfigs([]config{{cfg: Default()}, cfg})), nil
}
