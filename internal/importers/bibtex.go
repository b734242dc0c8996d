package importers

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

var bibtexEntryStart = regexp.MustCompile(`(?m)^\s*@[A-Za-z]+\s*[{(]`)

// BibTeX reads @type{key, field = {value}} entries. String macros and
// concatenation are not expanded; @comment, @preamble and @string blocks are
// skipped.
type BibTeX struct{}

var _ Importer = BibTeX{}

func (BibTeX) Name() string { return "BibTeX" }

func (BibTeX) Extensions() []string { return []string{".bib"} }

func (BibTeX) IsRecognizedFormat(r io.Reader) (bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, SniffSize))
	if err != nil {
		return false, err
	}
	return bibtexEntryStart.Match(data), nil
}

func (BibTeX) Parse(r io.Reader) ([]*domain.Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bibtex: %w", err)
	}
	p := &bibParser{src: []rune(string(data))}
	return p.entries()
}

type bibParser struct {
	src []rune
	pos int
}

func (p *bibParser) fail(msg string) error {
	return domain.NewParseError("bibtex", fmt.Sprintf("%s at offset %d", msg, p.pos), nil)
}

func (p *bibParser) eof() bool { return p.pos >= len(p.src) }

func (p *bibParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *bibParser) entries() ([]*domain.Entry, error) {
	var out []*domain.Entry
	for {
		for !p.eof() && p.src[p.pos] != '@' {
			p.pos++
		}
		if p.eof() {
			return out, nil
		}
		p.pos++

		entryType := p.ident()
		p.skipSpace()
		if entryType == "" || p.eof() || (p.src[p.pos] != '{' && p.src[p.pos] != '(') {
			continue
		}
		closer := '}'
		if p.src[p.pos] == '(' {
			closer = ')'
		}
		p.pos++

		switch strings.ToLower(entryType) {
		case "comment", "preamble", "string":
			if err := p.skipBlock(closer); err != nil {
				return nil, err
			}
			continue
		}

		e, err := p.entry(entryType, closer)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}

func (p *bibParser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if !(unicode.IsLetter(c) || unicode.IsDigit(c) || strings.ContainsRune("_-:.+/", c)) {
			break
		}
		p.pos++
	}
	return string(p.src[start:p.pos])
}

func (p *bibParser) skipBlock(closer rune) error {
	depth := 0
	for ; !p.eof(); p.pos++ {
		switch c := p.src[p.pos]; {
		case c == '{':
			depth++
		case c == '}' && depth > 0:
			depth--
		case c == closer && depth == 0:
			p.pos++
			return nil
		}
	}
	return p.fail("unterminated block")
}

func (p *bibParser) entry(entryType string, closer rune) (*domain.Entry, error) {
	e := domain.NewEntry(entryType)

	start := p.pos
	for !p.eof() && p.src[p.pos] != ',' && p.src[p.pos] != closer {
		p.pos++
	}
	if p.eof() {
		return nil, p.fail("unterminated entry")
	}
	e.CitationKey = strings.TrimSpace(string(p.src[start:p.pos]))

	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.fail("unterminated entry")
		}
		switch p.src[p.pos] {
		case closer:
			p.pos++
			return e, nil
		case ',':
			p.pos++
			continue
		}

		name := p.ident()
		if name == "" {
			return nil, p.fail("expected field name")
		}
		p.skipSpace()
		if p.eof() || p.src[p.pos] != '=' {
			return nil, p.fail(fmt.Sprintf("expected '=' after %q", name))
		}
		p.pos++
		p.skipSpace()

		value, err := p.value(closer)
		if err != nil {
			return nil, err
		}
		e.SetField(name, strings.Join(strings.Fields(value), " "))
	}
}

func (p *bibParser) value(closer rune) (string, error) {
	if p.eof() {
		return "", p.fail("expected field value")
	}
	switch p.src[p.pos] {
	case '{':
		p.pos++
		start, depth := p.pos, 0
		for ; !p.eof(); p.pos++ {
			switch p.src[p.pos] {
			case '{':
				depth++
			case '}':
				if depth == 0 {
					v := string(p.src[start:p.pos])
					p.pos++
					return v, nil
				}
				depth--
			}
		}
		return "", p.fail("unterminated braced value")
	case '"':
		p.pos++
		start, depth := p.pos, 0
		for ; !p.eof(); p.pos++ {
			switch p.src[p.pos] {
			case '{':
				depth++
			case '}':
				depth--
			case '"':
				if depth == 0 && p.src[p.pos-1] != '\\' {
					v := string(p.src[start:p.pos])
					p.pos++
					return v, nil
				}
			}
		}
		return "", p.fail("unterminated quoted value")
	default:
		start := p.pos
		for !p.eof() && p.src[p.pos] != ',' && p.src[p.pos] != closer {
			p.pos++
		}
		return strings.TrimSpace(string(p.src[start:p.pos])), nil
	}
}
