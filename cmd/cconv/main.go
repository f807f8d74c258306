// cconv infers checked pointer types for the translation units of a C
// program and rewrites their declarations.
package main // import "honnef.co/go/cconv/cmd/cconv"

import (
	"os"

	"honnef.co/go/cconv/convcmd"
)

func main() {
	os.Exit(convcmd.NewCommand("cconv").Execute(os.Args[1:]))
}
