package types

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse parses a C type name such as "int **", "char [10]",
// "int (*)(int *, ...)" or "_Ptr<struct node>". A declarator name may be
// present and is ignored.
func Parse(s string) (Type, error) {
	p := &parser{src: s}
	if err := p.tokenize(); err != nil {
		return nil, err
	}
	t, err := p.typeName()
	if err != nil {
		return nil, err
	}
	if p.peek() != "" {
		return nil, fmt.Errorf("parsing %q: unexpected %q", s, p.peek())
	}
	return t, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	src  string
	toks []string
	pos  int
}

func (p *parser) tokenize() error {
	s := p.src
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c):
			j := i
			for j < len(s) && (s[j] == '_' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			p.toks = append(p.toks, s[i:j])
			i = j
		case strings.HasPrefix(s[i:], "..."):
			p.toks = append(p.toks, "...")
			i += 3
		case strings.ContainsRune("*()[],<>", c):
			p.toks = append(p.toks, string(c))
			i++
		default:
			return fmt.Errorf("parsing %q: unexpected character %q", s, c)
		}
	}
	return nil
}

func (p *parser) peek() string {
	return p.peekN(0)
}

func (p *parser) peekN(n int) string {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return ""
}

func (p *parser) next() string {
	tok := p.peek()
	if tok != "" {
		p.pos++
	}
	return tok
}

func (p *parser) expect(tok string) error {
	if got := p.next(); got != tok {
		if got == "" {
			got = "end of input"
		}
		return fmt.Errorf("parsing %q: expected %q, found %q", p.src, tok, got)
	}
	return nil
}

func isIdent(tok string) bool {
	if tok == "" {
		return false
	}
	c := rune(tok[0])
	return c == '_' || unicode.IsLetter(c)
}

var checkedKinds = map[string]Checked{
	"_Ptr":          CheckedPtr,
	"_Array_ptr":    CheckedArray,
	"_Nt_array_ptr": CheckedNTArray,
}

func isQualifier(tok string) bool {
	return tok == "const" || tok == "volatile" || tok == "restrict"
}

func (p *parser) typeName() (Type, error) {
	base, err := p.specifiers()
	if err != nil {
		return nil, err
	}
	decl, err := p.declarator()
	if err != nil {
		return nil, err
	}
	return decl(base), nil
}

func (p *parser) specifiers() (Type, error) {
	tok := p.peek()
	if kind, ok := checkedKinds[tok]; ok {
		p.next()
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		elem, err := p.typeName()
		if err != nil {
			return nil, err
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		for isQualifier(p.peek()) {
			p.next()
		}
		return &Pointer{Elem: elem, Kind: kind}, nil
	}

	var words []string
	for isQualifier(p.peek()) {
		words = append(words, p.next())
	}
	switch tok := p.peek(); tok {
	case "struct", "union", "enum":
		p.next()
		name := p.next()
		if !isIdent(name) {
			return nil, fmt.Errorf("parsing %q: expected tag name after %s", p.src, tok)
		}
		for isQualifier(p.peek()) {
			p.next()
		}
		return &Named{Tag: tok, Name: name}, nil
	}
	for isIdent(p.peek()) && !isSuffixKeyword(p.peek()) {
		// A trailing identifier following a complete specifier list is the
		// declarator name, not part of the type.
		if len(words) > 0 && !isSpecifierWord(p.peek()) && hasTypeWord(words) {
			break
		}
		words = append(words, p.next())
	}
	if !hasTypeWord(words) {
		return nil, fmt.Errorf("parsing %q: missing type specifier", p.src)
	}
	return &Basic{Name: strings.Join(words, " ")}, nil
}

func isSuffixKeyword(tok string) bool {
	return tok == "_Checked" || tok == "_Nt_checked"
}

var specifierWords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"_Bool": true, "const": true, "volatile": true, "restrict": true,
}

func isSpecifierWord(tok string) bool { return specifierWords[tok] }

func hasTypeWord(words []string) bool {
	for _, w := range words {
		if !isQualifier(w) {
			return true
		}
	}
	return false
}

func (p *parser) declarator() (func(Type) Type, error) {
	ptrs := 0
	for p.peek() == "*" {
		p.next()
		ptrs++
		for isQualifier(p.peek()) {
			p.next()
		}
	}

	inner := func(t Type) Type { return t }
	if p.peek() == "(" && p.peekN(1) == "*" {
		p.next()
		d, err := p.declarator()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		inner = d
	} else if isIdent(p.peek()) && !isSuffixKeyword(p.peek()) {
		p.next()
	}

	var suffixes []func(Type) Type
	for {
		switch tok := p.peek(); {
		case tok == "[" || isSuffixKeyword(tok):
			kind := Unchecked
			if tok == "_Checked" {
				kind = CheckedArray
				p.next()
			} else if tok == "_Nt_checked" {
				kind = CheckedNTArray
				p.next()
			}
			if err := p.expect("["); err != nil {
				return nil, err
			}
			n, sized := 0, false
			if p.peek() != "]" {
				v, err := strconv.Atoi(p.next())
				if err != nil {
					return nil, fmt.Errorf("parsing %q: bad array length: %v", p.src, err)
				}
				n, sized = v, true
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			suffixes = append(suffixes, func(t Type) Type {
				return &Array{Elem: t, Len: n, Sized: sized, Kind: kind}
			})
		case tok == "(":
			p.next()
			fn := &Func{}
			switch {
			case p.peek() == ")":
			case p.peek() == "void" && p.peekN(1) == ")":
				p.next()
				fn.Prototyped = true
			default:
				fn.Prototyped = true
				for {
					if p.peek() == "..." {
						p.next()
						fn.Variadic = true
						break
					}
					t, err := p.typeName()
					if err != nil {
						return nil, err
					}
					fn.Params = append(fn.Params, t)
					if p.peek() != "," {
						break
					}
					p.next()
				}
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			suffixes = append(suffixes, func(t Type) Type {
				f := *fn
				f.Result = t
				return &f
			})
		default:
			return func(base Type) Type {
				t := base
				for i := 0; i < ptrs; i++ {
					t = &Pointer{Elem: t}
				}
				for i := len(suffixes) - 1; i >= 0; i-- {
					t = suffixes[i](t)
				}
				return inner(t)
			}, nil
		}
	}
}
