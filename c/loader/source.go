package loader

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"honnef.co/go/cconv/c/ast"
)

// Source yields translation units one at a time. Next returns io.EOF after
// the last unit. A unit returned by Next may be discarded by the caller
// before the following call.
type Source interface {
	Next() (*ast.Unit, error)
}

type fileSource struct {
	paths []string
}

// Files returns a Source that decodes each named file on demand.
func Files(paths ...string) Source {
	return &fileSource{paths: paths}
}

func (s *fileSource) Next() (*ast.Unit, error) {
	if len(s.paths) == 0 {
		return nil, io.EOF
	}
	path := s.paths[0]
	s.paths = s.paths[1:]
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening unit")
	}
	defer f.Close()
	return Decode(f, path)
}

// Doc is a named unit document held in memory.
type Doc struct {
	Name string
	Data []byte
}

type docSource struct {
	docs []Doc
}

// Docs returns a Source over in-memory documents.
func Docs(docs ...Doc) Source {
	return &docSource{docs: docs}
}

func (s *docSource) Next() (*ast.Unit, error) {
	if len(s.docs) == 0 {
		return nil, io.EOF
	}
	doc := s.docs[0]
	s.docs = s.docs[1:]
	return Decode(strings.NewReader(string(doc.Data)), doc.Name)
}

// Units returns a Source over already decoded units.
func Units(units ...*ast.Unit) Source {
	return &unitSource{units: units}
}

type unitSource struct {
	units []*ast.Unit
}

func (s *unitSource) Next() (*ast.Unit, error) {
	if len(s.units) == 0 {
		return nil, io.EOF
	}
	u := s.units[0]
	s.units = s.units[1:]
	return u, nil
}
