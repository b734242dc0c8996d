package unlinked

import (
	"errors"
	"strings"

	"github.com/gobwas/glob"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

// AnyFile matches every file name.
const AnyFile = "*"

// Filter selects files by base name using case-insensitive glob patterns
// such as "*.pdf" or "*.{ps,djvu}".
type Filter struct {
	patterns []string
	globs    []glob.Glob
}

// NewFilter compiles patterns. No patterns matches every file.
func NewFilter(patterns ...string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := checkBalanced(p); err != nil {
			return nil, domain.NewValidationError("filter", "invalid pattern "+p+": "+err.Error())
		}
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, domain.NewValidationError("filter", "invalid pattern "+p+": "+err.Error())
		}
		f.patterns = append(f.patterns, p)
		f.globs = append(f.globs, g)
	}
	if len(f.globs) == 0 {
		f.patterns = []string{AnyFile}
		f.globs = []glob.Glob{glob.MustCompile(AnyFile)}
	}
	return f, nil
}

// checkBalanced rejects unterminated "{" and "[" groups, which glob.Compile
// accepts and then treats as literals.
func checkBalanced(p string) error {
	braces, inClass := 0, false
	for i := 0; i < len(p); i++ {
		switch c := p[i]; {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '{':
			braces++
		case c == '}':
			if braces == 0 {
				return errors.New("unexpected '}'")
			}
			braces--
		}
	}
	switch {
	case inClass:
		return errors.New("unterminated '['")
	case braces > 0:
		return errors.New("unterminated '{'")
	}
	return nil
}

// Match reports whether name matches any pattern.
func (f *Filter) Match(name string) bool {
	name = strings.ToLower(name)
	for _, g := range f.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled patterns.
func (f *Filter) Patterns() []string {
	out := make([]string, len(f.patterns))
	copy(out, f.patterns)
	return out
}
