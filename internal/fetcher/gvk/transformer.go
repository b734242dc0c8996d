package gvk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyQuery is returned for a query with no search terms.
	ErrEmptyQuery = errors.New("empty query")

	// ErrUnsupportedQuery is returned for a query GVK cannot express.
	ErrUnsupportedQuery = errors.New("unsupported query")
)

// SearchKeys are the GVK index keys accepted as field names. A term with no
// key searches "all".
var SearchKeys = []string{"all", "tit", "per", "thm", "slw", "txt", "num", "kon", "ppn", "bkl", "erj"}

// fieldKeys maps user-facing field names to GVK keys.
var fieldKeys = map[string]string{
	"author":  "per",
	"editor":  "per",
	"title":   "tit",
	"journal": "zti",
	"year":    "erj",
	"subject": "slw",
	"isbn":    "num",
	"issn":    "num",
	"ppn":     "ppn",
	"default": "all",
	"any":     "all",
}

var (
	yearPattern      = regexp.MustCompile(`^\d{4}$`)
	yearRangePattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)
)

// QueryTransformer rewrites a user search expression into a GVK CQL query.
//
// Terms are "field:value", "field:\"quoted value\"" or bare words; terms are
// joined with AND unless an explicit AND, OR or NOT stands between them.
type QueryTransformer struct{}

// Transform converts query to CQL over pica.* indexes.
func (QueryTransformer) Transform(query string) (string, error) {
	tokens, err := tokenize(query)
	if err != nil {
		return "", err
	}

	var (
		parts   []string
		pending string
	)
	for _, tok := range tokens {
		if !tok.quoted && tok.field == "" {
			if op, ok := operator(tok.value); ok {
				if len(parts) == 0 {
					if op == "not" {
						return "", fmt.Errorf("%w: NOT needs a term on its left", ErrUnsupportedQuery)
					}
					continue
				}
				pending = op
				continue
			}
		}

		clause := tok.clause()
		if len(parts) > 0 {
			if pending == "" {
				pending = "and"
			}
			parts = append(parts, pending)
		}
		parts = append(parts, clause)
		pending = ""
	}

	if len(parts) == 0 {
		return "", ErrEmptyQuery
	}
	return strings.Join(parts, " "), nil
}

func operator(word string) (string, bool) {
	switch word {
	case "AND":
		return "and", true
	case "OR":
		return "or", true
	case "NOT":
		return "not", true
	}
	return "", false
}

type token struct {
	field  string
	value  string
	quoted bool
}

// clause renders the token as a pica.* search clause.
func (t token) clause() string {
	key := "all"
	if t.field != "" {
		key = resolveKey(t.field)
	}

	if key == "erj" && !t.quoted {
		if yearPattern.MatchString(t.value) {
			return "pica.erj=" + t.value
		}
		if m := yearRangePattern.FindStringSubmatch(t.value); m != nil {
			return fmt.Sprintf("(pica.erj>=%s and pica.erj<=%s)", m[1], m[2])
		}
	}
	return fmt.Sprintf("pica.%s=%s", key, quote(t.value))
}

func resolveKey(field string) string {
	f := strings.ToLower(field)
	if k, ok := fieldKeys[f]; ok {
		return k
	}
	for _, k := range SearchKeys {
		if f == k {
			return k
		}
	}
	return "all"
}

func quote(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return `"` + value + `"`
}

// tokenize splits on whitespace outside double quotes. A token may be a
// field prefix followed by a quoted value.
func tokenize(query string) ([]token, error) {
	var (
		tokens []token
		i      int
	)
	for i < len(query) {
		for i < len(query) && isSpace(query[i]) {
			i++
		}
		if i >= len(query) {
			break
		}

		start := i
		var field string
		for i < len(query) && !isSpace(query[i]) && query[i] != '"' && query[i] != ':' {
			i++
		}
		if i < len(query) && query[i] == ':' {
			field = query[start:i]
			i++
			start = i
		} else {
			i = start
		}

		if i < len(query) && query[i] == '"' {
			end := strings.IndexByte(query[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated quote", ErrUnsupportedQuery)
			}
			value := query[i+1 : i+1+end]
			i += end + 2
			if strings.TrimSpace(value) != "" {
				tokens = append(tokens, token{field: field, value: value, quoted: true})
			}
			continue
		}

		for i < len(query) && !isSpace(query[i]) {
			i++
		}
		value := query[start:i]
		if value == "" {
			continue
		}
		tokens = append(tokens, token{field: field, value: value})
	}
	return tokens, nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
