package gvk

import (
	"strings"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

// fields whose values may legitimately contain '@'.
var keepMarker = map[string]bool{
	FieldURL: true,
	FieldDOI: true,
}

// Cleanup normalizes a parsed GVK entry: it strips the PICA non-sorting
// marker '@', collapses whitespace, drops empty fields and folds the
// subtitle into the title as "Title: Subtitle".
func Cleanup(e *domain.Entry) {
	for name, value := range e.Fields() {
		if !keepMarker[name] {
			value = strings.ReplaceAll(value, "@", "")
		}
		e.SetField(name, strings.Join(strings.Fields(value), " "))
	}

	subtitle, ok := e.Field(domain.FieldSubtitle)
	if !ok {
		return
	}
	if title := e.Title(); title != "" {
		e.SetField(domain.FieldTitle, title+": "+subtitle)
	} else {
		e.SetField(domain.FieldTitle, subtitle)
	}
	e.ClearField(domain.FieldSubtitle)
}
