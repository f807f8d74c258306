// Package version reports the version of the cconv binary.
package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// Version is set by release builds.
var Version = "devel"

// version returns a version descriptor and reports whether the
// version is a known release.
func version() (string, bool) {
	if Version != "devel" {
		return Version, true
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version, false
	}
	return "devel", false
}

// String returns the human-readable version of the program called name.
func String(name string) string {
	v, release := version()
	switch {
	case release:
		return fmt.Sprintf("%s %s", name, v)
	case v == "devel":
		return fmt.Sprintf("%s (no version)", name)
	default:
		return fmt.Sprintf("%s (devel, %s)", name, v)
	}
}

func Print(w io.Writer, name string) {
	fmt.Fprintln(w, String(name))
}

// Verbose prints the version, the Go version and the module versions
// the binary was built with.
func Verbose(w io.Writer, name string) {
	Print(w, name)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Compiled with Go version:", runtime.Version())
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Fprintln(w, "Built without Go modules")
		return
	}
	fmt.Fprintln(w, "Main module:")
	printModule(w, &info.Main)
	fmt.Fprintln(w, "Dependencies:")
	for _, dep := range info.Deps {
		printModule(w, dep)
	}
}

func printModule(w io.Writer, m *debug.Module) {
	fmt.Fprintf(w, "\t%s", m.Path)
	if m.Version != "(devel)" {
		fmt.Fprintf(w, "@%s", m.Version)
	}
	if m.Sum != "" {
		fmt.Fprintf(w, " (sum: %s)", m.Sum)
	}
	if m.Replace != nil {
		fmt.Fprintf(w, " (replace: %s)", m.Replace.Path)
	}
	fmt.Fprintln(w)
}
